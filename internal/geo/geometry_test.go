package geo

import (
	"math"
	"testing"
)

func TestProjectOnSegment(t *testing.T) {
	a := Point{X: 0, Y: 0}
	b := Point{X: 0, Y: 1000}

	right := ProjectOnSegment(Point{X: 30, Y: 400}, a, b)
	if right.Along != 400 || right.Cross != 30 || right.Side != 1 {
		t.Errorf("right projection = %+v", right)
	}

	left := ProjectOnSegment(Point{X: -12, Y: -50}, a, b)
	if left.Along != -50 || left.Cross != 12 || left.Side != -1 {
		t.Errorf("left projection = %+v", left)
	}
}

func TestDistanceToSegment(t *testing.T) {
	a := Point{X: 0, Y: 0}
	b := Point{X: 100, Y: 0}

	tests := []struct {
		p    Point
		want float64
	}{
		{Point{X: 50, Y: 20}, 20},
		{Point{X: -30, Y: 40}, 50},
		{Point{X: 103, Y: -4}, 5},
	}
	for _, tt := range tests {
		if got := DistanceToSegment(tt.p, a, b); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("DistanceToSegment(%v) = %f, want %f", tt.p, got, tt.want)
		}
	}
}

func TestSegmentIntersection(t *testing.T) {
	p, ok := SegmentIntersection(Point{X: -100, Y: 0}, Point{X: 100, Y: 0}, Point{X: 0, Y: -100}, Point{X: 0, Y: 100})
	if !ok || math.Abs(p.X) > 1e-9 || math.Abs(p.Y) > 1e-9 {
		t.Errorf("crossing = %v, %v", p, ok)
	}

	if _, ok := SegmentIntersection(Point{X: 0, Y: 0}, Point{X: 100, Y: 0}, Point{X: 0, Y: 10}, Point{X: 100, Y: 10}); ok {
		t.Error("parallel segments reported as crossing")
	}
	if _, ok := SegmentIntersection(Point{X: 0, Y: 0}, Point{X: 10, Y: 0}, Point{X: 50, Y: -10}, Point{X: 50, Y: 10}); ok {
		t.Error("disjoint segments reported as crossing")
	}
}

func TestInSector(t *testing.T) {
	center := Point{}
	axis := 0.0 // north
	half := math.Pi / 4

	tests := []struct {
		name string
		p    Point
		want bool
	}{
		{"inside", Point{X: 0, Y: 100}, true},
		{"too close", Point{X: 0, Y: 20}, false},
		{"too far", Point{X: 0, Y: 250}, false},
		{"outside cone", Point{X: 100, Y: 10}, false},
		{"cone edge", Translate(center, math.Pi/4, 100), true},
		{"inner edge", Point{X: 0, Y: 50}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InSector(tt.p, center, 50, 200, axis, half+1e-12); got != tt.want {
				t.Errorf("InSector(%v) = %v, want %v", tt.p, got, tt.want)
			}
		})
	}
}

func TestInRectangle(t *testing.T) {
	center := Point{}
	// 100 m long along east, 60 m wide
	bearing := math.Pi / 2

	if !InRectangle(Point{X: 45, Y: 25}, center, 100, 60, bearing) {
		t.Error("point inside rectangle rejected")
	}
	if InRectangle(Point{X: 25, Y: 45}, center, 100, 60, bearing) {
		t.Error("point outside rectangle accepted")
	}
}

func TestTranslate(t *testing.T) {
	p := Translate(Point{X: 10, Y: 10}, math.Pi/2, 100)
	if math.Abs(p.X-110) > 1e-9 || math.Abs(p.Y-10) > 1e-9 {
		t.Errorf("Translate east = %v", p)
	}
}
