package geo

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

var gimpo = LatLon{Lat: 37.5583, Lon: 126.7906}

func newTestProjector(t *testing.T) *Projector {
	t.Helper()
	p, err := NewProjector(gimpo)
	if err != nil {
		t.Fatalf("NewProjector: %v", err)
	}
	return p
}

func TestRoundTripNearReference(t *testing.T) {
	p := newTestProjector(t)
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 2000; i++ {
		lat := gimpo.Lat + (rng.Float64()-0.5)*1.0
		lon := gimpo.Lon + (rng.Float64()-0.5)*1.0

		pt, err := p.ToPlane(lat, lon)
		if err != nil {
			t.Fatalf("ToPlane(%f, %f): %v", lat, lon, err)
		}
		back, err := p.ToWGS84(pt)
		if err != nil {
			t.Fatalf("ToWGS84(%v): %v", pt, err)
		}
		if math.Abs(back.Lat-lat) > 1e-5 || math.Abs(back.Lon-lon) > 1e-5 {
			t.Fatalf("round trip (%f, %f) -> (%f, %f)", lat, lon, back.Lat, back.Lon)
		}
	}
}

func TestOriginMapsToZero(t *testing.T) {
	p := newTestProjector(t)
	pt, err := p.ToPlane(gimpo.Lat, gimpo.Lon)
	if err != nil {
		t.Fatal(err)
	}
	if pt.X != 0 || pt.Y != 0 {
		t.Errorf("origin = %v, want (0,0)", pt)
	}
}

func TestPlaneAxes(t *testing.T) {
	p := newTestProjector(t)

	north, _ := p.ToPlane(gimpo.Lat+0.01, gimpo.Lon)
	if north.Y <= 0 || math.Abs(north.X) > 1e-6 {
		t.Errorf("north offset = %v", north)
	}
	// 0.01 deg of latitude is about 1112 m
	if math.Abs(north.Y-1111.95) > 1 {
		t.Errorf("north distance = %f", north.Y)
	}

	east, _ := p.ToPlane(gimpo.Lat, gimpo.Lon+0.01)
	if east.X <= 0 || math.Abs(east.Y) > 1e-6 {
		t.Errorf("east offset = %v", east)
	}
}

func TestInvalidInputFailsFast(t *testing.T) {
	p := newTestProjector(t)

	tests := []struct {
		name     string
		lat, lon float64
	}{
		{"nan lat", math.NaN(), 126.8},
		{"nan lon", 37.5, math.NaN()},
		{"inf lon", 37.5, math.Inf(1)},
		{"lat too high", 91, 126.8},
		{"lon too low", 37.5, -181},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.ToPlane(tt.lat, tt.lon)
			if !errors.Is(err, ErrInvalidCoordinate) {
				t.Errorf("err = %v, want ErrInvalidCoordinate", err)
			}
		})
	}

	if _, err := p.ToWGS84(Point{X: math.NaN(), Y: 0}); !errors.Is(err, ErrInvalidCoordinate) {
		t.Errorf("ToWGS84(NaN) err = %v", err)
	}
	if _, err := NewProjector(LatLon{Lat: 95, Lon: 0}); err == nil {
		t.Error("NewProjector accepted latitude 95")
	}
}

func TestDistanceSymmetry(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 500; i++ {
		a := Point{X: rng.Float64()*20000 - 10000, Y: rng.Float64()*20000 - 10000}
		b := Point{X: rng.Float64()*20000 - 10000, Y: rng.Float64()*20000 - 10000}
		if Distance(a, b) != Distance(b, a) {
			t.Fatalf("distance not symmetric for %v %v", a, b)
		}
		if Distance(a, a) != 0 {
			t.Fatalf("distance(a, a) != 0 for %v", a)
		}
	}
}

func TestBearingRange(t *testing.T) {
	origin := Point{}
	tests := []struct {
		to   Point
		want float64
	}{
		{Point{X: 0, Y: 10}, 0},
		{Point{X: 10, Y: 0}, math.Pi / 2},
		{Point{X: 0, Y: -10}, math.Pi},
		{Point{X: -10, Y: 0}, 3 * math.Pi / 2},
	}
	for _, tt := range tests {
		got := Bearing(origin, tt.to)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Bearing to %v = %f, want %f", tt.to, got, tt.want)
		}
		if got < 0 || got >= 2*math.Pi {
			t.Errorf("Bearing out of range: %f", got)
		}
	}
}
