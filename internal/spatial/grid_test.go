package spatial

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/yegors/co-rwsl/internal/geo"
)

func TestUpsertMoveRemove(t *testing.T) {
	g := NewGrid(100)

	g.Upsert("a", geo.Point{X: 10, Y: 10})
	g.Upsert("b", geo.Point{X: 150, Y: 10})
	if g.Len() != 2 {
		t.Fatalf("Len = %d, want 2", g.Len())
	}

	// Move a into b's cell
	g.Upsert("a", geo.Point{X: 160, Y: 20})
	if got := g.Stats().Cells; got != 1 {
		t.Errorf("cells after move = %d, want 1", got)
	}

	g.Remove("a")
	g.Remove("missing")
	if _, ok := g.Position("a"); ok {
		t.Error("a still indexed after Remove")
	}
	if diff := cmp.Diff([]string{"b"}, g.QueryRadius(geo.Point{X: 150, Y: 10}, 1)); diff != "" {
		t.Errorf("QueryRadius mismatch (-want +got):\n%s", diff)
	}
}

func TestNegativeCoordinatesUseFloor(t *testing.T) {
	g := NewGrid(100)
	g.Upsert("neg", geo.Point{X: -0.5, Y: -0.5})
	g.Upsert("pos", geo.Point{X: 0.5, Y: 0.5})

	if got := g.Stats().Cells; got != 2 {
		t.Errorf("cells = %d, want 2 (floor must split around zero)", got)
	}
	if diff := cmp.Diff([]string{"neg", "pos"}, g.QueryRadius(geo.Point{}, 1)); diff != "" {
		t.Errorf("QueryRadius mismatch (-want +got):\n%s", diff)
	}
}

func TestQueryRadiusMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	positions := make(map[string]geo.Point)
	for i := 0; i < 400; i++ {
		positions[fmt.Sprintf("ac%03d", i)] = geo.Point{
			X: rng.Float64()*4000 - 2000,
			Y: rng.Float64()*4000 - 2000,
		}
	}

	g := NewGrid(DefaultCellSize)
	g.Rebuild(positions)

	for i := 0; i < 50; i++ {
		center := geo.Point{X: rng.Float64()*4000 - 2000, Y: rng.Float64()*4000 - 2000}
		radius := rng.Float64() * 600

		var want []string
		for id, p := range positions {
			if geo.Distance(center, p) <= radius {
				want = append(want, id)
			}
		}
		sort.Strings(want)

		got := g.QueryRadius(center, radius)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("query %d mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestQueryBounds(t *testing.T) {
	g := NewGrid(50)
	g.Rebuild(map[string]geo.Point{
		"in":     {X: 10, Y: 10},
		"edge":   {X: 100, Y: 0},
		"out":    {X: 101, Y: 0},
		"corner": {X: -20, Y: -20},
	})

	got := g.QueryBounds(geo.Bounds{MinX: -20, MinY: -20, MaxX: 100, MaxY: 50})
	if diff := cmp.Diff([]string{"corner", "edge", "in"}, got); diff != "" {
		t.Errorf("QueryBounds mismatch (-want +got):\n%s", diff)
	}
	if got := g.QueryBounds(geo.Bounds{MinX: 10, MaxX: 0}); got != nil {
		t.Errorf("inverted bounds = %v, want nil", got)
	}
}

func TestRebuildReplacesEverything(t *testing.T) {
	g := NewGrid(100)
	g.Rebuild(map[string]geo.Point{"old": {X: 0, Y: 0}})
	g.Rebuild(map[string]geo.Point{"new": {X: 500, Y: 500}})

	if _, ok := g.Position("old"); ok {
		t.Error("old id survived rebuild")
	}
	stats := g.Stats()
	if stats.Entries != 1 || stats.Cells != 1 || stats.MaxPerCell != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestHugeRadiusScansOccupiedCells(t *testing.T) {
	g := NewGrid(10)
	g.Upsert("far", geo.Point{X: 90000, Y: -90000})
	if got := g.QueryRadius(geo.Point{}, 200000); len(got) != 1 {
		t.Errorf("QueryRadius = %v", got)
	}
}

func TestNonFiniteQueriesMatchNothing(t *testing.T) {
	g := NewGrid(10)
	g.Upsert("a", geo.Point{X: 5, Y: 5})

	if got := g.QueryRadius(geo.Point{}, math.Inf(1)); got != nil {
		t.Errorf("infinite radius = %v", got)
	}
	if got := g.QueryRadius(geo.Point{}, math.NaN()); got != nil {
		t.Errorf("NaN radius = %v", got)
	}
	if got := g.QueryRadius(geo.Point{X: math.NaN()}, 10); got != nil {
		t.Errorf("NaN center = %v", got)
	}
	if got := g.QueryBounds(geo.Bounds{MinX: math.Inf(-1), MinY: 0, MaxX: 10, MaxY: 10}); got != nil {
		t.Errorf("infinite bounds = %v", got)
	}

	// Finite but enormous ranges clamp instead of overflowing
	if got := g.QueryRadius(geo.Point{}, 1e300); len(got) != 1 || got[0] != "a" {
		t.Errorf("huge radius = %v", got)
	}
	if got := g.QueryBounds(geo.Bounds{MinX: -1e300, MinY: -1e300, MaxX: 1e300, MaxY: 1e300}); len(got) != 1 {
		t.Errorf("huge bounds = %v", got)
	}
}
