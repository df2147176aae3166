package rwsl

import (
	"testing"
	"time"

	"github.com/yegors/co-rwsl/internal/airport"
	"github.com/yegors/co-rwsl/internal/geo"
	"github.com/yegors/co-rwsl/pkg/logger"
)

// The test field has runway 18/36 running north-south through the reference point and
// runway 09/27 crossing it at the origin. Direction 36 lands northbound from the south end.
var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

const ixID = "18/36|09/27"

func testConfig(extra ...airport.RunwayConfig) airport.Config {
	v := 0.0
	cfg := airport.Config{
		ID:                "TEST",
		Name:              "Test Field",
		ReferencePoint:    airport.LatLonPtr(37.5, 126.8),
		MagneticVariation: &v,
		Runways: []airport.RunwayConfig{
			{ID: "18/36", Width: 45, Directions: map[string]airport.DirectionConfig{
				"18": {Threshold: airport.LatLonPtr(37.51, 126.8)},
				"36": {Threshold: airport.LatLonPtr(37.49, 126.8)},
			}},
			{ID: "09/27", Width: 45, Directions: map[string]airport.DirectionConfig{
				"09": {Threshold: airport.LatLonPtr(37.5, 126.795)},
				"27": {Threshold: airport.LatLonPtr(37.5, 126.805)},
			}},
		},
		Fixtures: []airport.FixtureConfig{
			{ID: "REL-36A", Type: airport.FixtureREL, Runway: "18/36", Direction: "36", OffsetAlong: 600, OffsetCross: -60},
			{ID: "THL-36", Type: airport.FixtureTHL, Runway: "18/36", Direction: "36", OffsetAlong: 100},
			{ID: "RIL-X", Type: airport.FixtureRIL, Intersection: ixID, Position: airport.LatLonPtr(37.5, 126.8)},
		},
	}
	cfg.Runways = append(cfg.Runways, extra...)
	return cfg
}

func testGeometry(t *testing.T, extra ...airport.RunwayConfig) *airport.Geometry {
	t.Helper()
	cfg := testConfig(extra...)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	g, err := airport.NewGeometry(&cfg, logger.NewNop())
	if err != nil {
		t.Fatalf("NewGeometry: %v", err)
	}
	return g
}

func nopLogger() *logger.Logger {
	return logger.NewNop()
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *airport.Geometry) {
	t.Helper()
	g := testGeometry(t)
	return NewEngine(g, Config{}, logger.NewNop(), opts...), g
}

// threshold36 is the south end of runway 18/36
func threshold36(t *testing.T, g *airport.Geometry) geo.Point {
	t.Helper()
	d, ok := g.Direction("36")
	if !ok {
		t.Fatal("direction 36 missing")
	}
	return d.Threshold
}

func fixturePos(t *testing.T, g *airport.Geometry, id string) geo.Point {
	t.Helper()
	for _, fx := range g.Fixtures {
		if fx.ID == id {
			return fx.Position
		}
	}
	t.Fatalf("fixture %s missing", id)
	return geo.Point{}
}

type snapOpt func(*AircraftSnapshot)

func withVS(fpm float64) snapOpt {
	return func(s *AircraftSnapshot) { s.VerticalSpeed = &fpm }
}

func withType(t string) snapOpt {
	return func(s *AircraftSnapshot) { s.AircraftType = t }
}

func withRunway(r string) snapOpt {
	return func(s *AircraftSnapshot) { s.AssignedRunway = r }
}

func snapAt(t *testing.T, g *airport.Geometry, id string, p geo.Point, alt, spd, hdg float64, ts time.Time, opts ...snapOpt) AircraftSnapshot {
	t.Helper()
	ll, err := g.Projector.ToWGS84(p)
	if err != nil {
		t.Fatalf("ToWGS84: %v", err)
	}
	s := AircraftSnapshot{
		ID:        id,
		Callsign:  id,
		Latitude:  ll.Lat,
		Longitude: ll.Lon,
		Altitude:  alt,
		Speed:     spd,
		Heading:   hdg,
		Active:    true,
		Timestamp: ts,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func conflictsOfType(events []ConflictEvent, typ ConflictType) []ConflictEvent {
	var out []ConflictEvent
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func stateOf(out Output, id string) AircraftState {
	for _, a := range out.Aircraft {
		if a.ID == id {
			return a.State
		}
	}
	return ""
}
