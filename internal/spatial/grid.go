package spatial

import (
	"math"
	"sort"

	"github.com/yegors/co-rwsl/internal/geo"
)

// DefaultCellSize is the reference grid resolution in meters
const DefaultCellSize = 100.0

type cellKey struct {
	X, Y int64
}

// Stats summarizes grid occupancy
type Stats struct {
	CellSize      float64 `json:"cell_size_m"`
	Cells         int     `json:"cells"`
	Entries       int     `json:"entries"`
	MaxPerCell    int     `json:"max_per_cell"`
	AvgPerCell    float64 `json:"avg_per_cell"`
	LastRebuildIn int     `json:"last_rebuild_entries"`
}

// Grid is a uniform grid index over plane positions. It is not safe for concurrent use;
// the engine rebuilds and queries it inside a single cycle.
type Grid struct {
	cellSize  float64
	cells     map[cellKey]map[string]geo.Point
	positions map[string]geo.Point
	lastBatch int
}

// NewGrid creates an empty grid. Non-positive sizes fall back to DefaultCellSize.
func NewGrid(cellSize float64) *Grid {
	if cellSize <= 0 || math.IsNaN(cellSize) {
		cellSize = DefaultCellSize
	}
	return &Grid{
		cellSize:  cellSize,
		cells:     make(map[cellKey]map[string]geo.Point),
		positions: make(map[string]geo.Point),
	}
}

// CellSize returns the grid resolution in meters
func (g *Grid) CellSize() float64 {
	return g.cellSize
}

// Len returns the number of indexed ids
func (g *Grid) Len() int {
	return len(g.positions)
}

// maxCell bounds cell indices so key ranges and their products fit in int64
const maxCell = 1 << 30

func (g *Grid) cellIndex(v float64) int64 {
	c := math.Floor(v / g.cellSize)
	if math.IsNaN(c) {
		return 0
	}
	return int64(math.Max(-maxCell, math.Min(maxCell, c)))
}

func (g *Grid) keyFor(p geo.Point) cellKey {
	return cellKey{X: g.cellIndex(p.X), Y: g.cellIndex(p.Y)}
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Upsert inserts or moves an id
func (g *Grid) Upsert(id string, p geo.Point) {
	if old, ok := g.positions[id]; ok {
		oldKey := g.keyFor(old)
		if oldKey == g.keyFor(p) {
			g.cells[oldKey][id] = p
			g.positions[id] = p
			return
		}
		g.removeFromCell(oldKey, id)
	}

	key := g.keyFor(p)
	cell, ok := g.cells[key]
	if !ok {
		cell = make(map[string]geo.Point)
		g.cells[key] = cell
	}
	cell[id] = p
	g.positions[id] = p
}

// Remove deletes an id; unknown ids are ignored
func (g *Grid) Remove(id string) {
	p, ok := g.positions[id]
	if !ok {
		return
	}
	g.removeFromCell(g.keyFor(p), id)
	delete(g.positions, id)
}

func (g *Grid) removeFromCell(key cellKey, id string) {
	cell, ok := g.cells[key]
	if !ok {
		return
	}
	delete(cell, id)
	if len(cell) == 0 {
		delete(g.cells, key)
	}
}

// Position returns the indexed position of an id
func (g *Grid) Position(id string) (geo.Point, bool) {
	p, ok := g.positions[id]
	return p, ok
}

// Rebuild replaces the whole index with the given positions
func (g *Grid) Rebuild(positions map[string]geo.Point) {
	g.cells = make(map[cellKey]map[string]geo.Point, len(g.cells))
	g.positions = make(map[string]geo.Point, len(positions))
	for id, p := range positions {
		g.Upsert(id, p)
	}
	g.lastBatch = len(positions)
}

// QueryRadius returns ids within radius meters of center (inclusive), sorted. A
// negative or non-finite radius or center matches nothing.
func (g *Grid) QueryRadius(center geo.Point, radius float64) []string {
	if radius < 0 || !finite(radius, center.X, center.Y) {
		return nil
	}
	minKey := g.keyFor(geo.Point{X: center.X - radius, Y: center.Y - radius})
	maxKey := g.keyFor(geo.Point{X: center.X + radius, Y: center.Y + radius})

	var ids []string
	g.scan(minKey, maxKey, func(id string, p geo.Point) {
		if geo.Distance(center, p) <= radius {
			ids = append(ids, id)
		}
	})
	sort.Strings(ids)
	return ids
}

// QueryBounds returns ids inside the box (edges included), sorted. Inverted or
// non-finite bounds match nothing.
func (g *Grid) QueryBounds(b geo.Bounds) []string {
	if b.MaxX < b.MinX || b.MaxY < b.MinY || !finite(b.MinX, b.MinY, b.MaxX, b.MaxY) {
		return nil
	}
	minKey := g.keyFor(geo.Point{X: b.MinX, Y: b.MinY})
	maxKey := g.keyFor(geo.Point{X: b.MaxX, Y: b.MaxY})

	var ids []string
	g.scan(minKey, maxKey, func(id string, p geo.Point) {
		if b.Contains(p) {
			ids = append(ids, id)
		}
	})
	sort.Strings(ids)
	return ids
}

// scan visits entries of every cell in the key range. Wide ranges fall back to walking
// the occupied cells so a huge radius never iterates empty space.
func (g *Grid) scan(minKey, maxKey cellKey, visit func(string, geo.Point)) {
	span := (maxKey.X - minKey.X + 1) * (maxKey.Y - minKey.Y + 1)
	if span > int64(len(g.cells)) {
		for key, cell := range g.cells {
			if key.X < minKey.X || key.X > maxKey.X || key.Y < minKey.Y || key.Y > maxKey.Y {
				continue
			}
			for id, p := range cell {
				visit(id, p)
			}
		}
		return
	}

	for x := minKey.X; x <= maxKey.X; x++ {
		for y := minKey.Y; y <= maxKey.Y; y++ {
			for id, p := range g.cells[cellKey{X: x, Y: y}] {
				visit(id, p)
			}
		}
	}
}

// Stats returns occupancy statistics
func (g *Grid) Stats() Stats {
	s := Stats{
		CellSize:      g.cellSize,
		Cells:         len(g.cells),
		Entries:       len(g.positions),
		LastRebuildIn: g.lastBatch,
	}
	for _, cell := range g.cells {
		if len(cell) > s.MaxPerCell {
			s.MaxPerCell = len(cell)
		}
	}
	if s.Cells > 0 {
		s.AvgPerCell = float64(s.Entries) / float64(s.Cells)
	}
	return s
}
