package rwsl

import (
	"strings"
	"testing"

	"github.com/yegors/co-rwsl/internal/airport"
	"github.com/yegors/co-rwsl/internal/geo"
	"github.com/yegors/co-rwsl/pkg/logger"
)

func TestRELPassThrough(t *testing.T) {
	e, g := newTestEngine(t)

	out := e.Process([]AircraftSnapshot{
		snapAt(t, g, "PASS", geo.Point{X: 0, Y: -540}, 0, 60, 0, t0),
	}, t0)

	rel := out.Lights["REL-36A"]
	if rel.Active {
		t.Fatalf("REL active during pass-through: %+v", rel)
	}
	if rel.Reason != "Safe pass-through by PASS" {
		t.Errorf("reason = %q", rel.Reason)
	}
}

func TestRELDeceleratedArrival(t *testing.T) {
	e, g := newTestEngine(t)
	fx := fixturePos(t, g, "REL-36A")
	dec := snapAt(t, g, "DEC", geo.Point{X: 0, Y: -300}, 0, 25, 0, t0, withVS(-200))

	out := e.Process([]AircraftSnapshot{dec}, t0)
	if got := stateOf(out, "DEC"); got != StateLandingRoll {
		t.Fatalf("DEC state = %s", got)
	}
	rel := out.Lights["REL-36A"]
	if rel.Active || rel.Reason != "Arrival DEC decelerated, runway safe" {
		t.Errorf("REL = %+v", rel)
	}

	// The decelerated arrival overrides a taxi trigger
	taxi := snapAt(t, g, "TX", geo.Point{X: fx.X - 120, Y: fx.Y}, 0, 15, 90, t0)
	out = e.Process([]AircraftSnapshot{dec, taxi}, t0)
	rel = out.Lights["REL-36A"]
	if rel.Active || rel.Reason != "Arrival DEC decelerated, runway safe" {
		t.Errorf("REL with taxi traffic = %+v", rel)
	}

	// A second arrival on short final still lights it
	th := threshold36(t, g)
	arr := snapAt(t, g, "ARR", geo.Point{X: th.X, Y: th.Y - 300}, 100, 130, 0, t0, withVS(-700))
	out = e.Process([]AircraftSnapshot{dec, taxi, arr}, t0)
	rel = out.Lights["REL-36A"]
	if !rel.Active || rel.Severity != SeverityCritical || !strings.HasPrefix(rel.Reason, "Arriving aircraft ARR") {
		t.Errorf("REL with arrival = %+v", rel)
	}
}

func TestRELTaxiRuleGatedByRunwayTraffic(t *testing.T) {
	e, g := newTestEngine(t)
	fx := fixturePos(t, g, "REL-36A")

	out := e.Process([]AircraftSnapshot{
		snapAt(t, g, "PASS", geo.Point{X: 0, Y: -540}, 0, 60, 0, t0),
		snapAt(t, g, "TX", geo.Point{X: fx.X - 120, Y: fx.Y}, 0, 15, 90, t0),
	}, t0)

	rel := out.Lights["REL-36A"]
	if rel.Active || rel.Reason != "Safe pass-through by PASS" {
		t.Errorf("REL = %+v", rel)
	}
}

func TestRELAirborneDeparture(t *testing.T) {
	e, g := newTestEngine(t)

	out := e.Process([]AircraftSnapshot{
		snapAt(t, g, "DEPD", geo.Point{X: 0, Y: 2500}, 500, 160, 0, t0, withVS(1500), withRunway("36")),
	}, t0)

	rel := out.Lights["REL-36A"]
	if rel.Active || rel.Reason != "Departure DEPD airborne" {
		t.Errorf("REL = %+v", rel)
	}
}

func TestRELTaxiSector(t *testing.T) {
	tests := []struct {
		name   string
		offset geo.Point
		speed  float64
		active bool
	}{
		{"inside sector", geo.Point{X: -120}, 15, true},
		{"inside inner radius", geo.Point{X: -30}, 15, false},
		{"beyond outer radius", geo.Point{X: -250}, 15, false},
		{"runway side", geo.Point{X: 120}, 15, false},
		{"too slow", geo.Point{X: -120}, 8, false},
		{"too fast", geo.Point{X: -120}, 55, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, g := newTestEngine(t)
			fx := fixturePos(t, g, "REL-36A")
			p := geo.Point{X: fx.X + tt.offset.X, Y: fx.Y + tt.offset.Y}

			out := e.Process([]AircraftSnapshot{snapAt(t, g, "TX", p, 0, tt.speed, 90, t0)}, t0)
			if got := out.Lights["REL-36A"].Active; got != tt.active {
				t.Errorf("active = %v, want %v (%s)", got, tt.active, out.Lights["REL-36A"].Reason)
			}
		})
	}
}

func TestRELShortFinalIsCritical(t *testing.T) {
	e, g := newTestEngine(t)
	th := threshold36(t, g)

	out := e.Process([]AircraftSnapshot{
		snapAt(t, g, "ARR", geo.Point{X: th.X, Y: th.Y - 300}, 100, 130, 0, t0, withVS(-700)),
	}, t0)
	rel := out.Lights["REL-36A"]
	if !rel.Active || rel.Severity != SeverityCritical || rel.ApproachPhase != PhaseShortFinal {
		t.Errorf("REL = %+v", rel)
	}
	if rel.Command == nil || rel.Command.FlashPattern != FlashFast || rel.Command.DelayMs != 0 {
		t.Errorf("command = %+v", rel.Command)
	}
}

func TestRELDisabled(t *testing.T) {
	cfg := testConfig()
	off := false
	cfg.RWSL.REL.Enabled = &off
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	g, err := airport.NewGeometry(&cfg, logger.NewNop())
	if err != nil {
		t.Fatalf("NewGeometry: %v", err)
	}
	e := NewEngine(g, Config{}, logger.NewNop())

	out := e.Process([]AircraftSnapshot{
		snapAt(t, g, "DEP1", geo.Point{X: 0, Y: -900}, 0, 60, 0, t0),
	}, t0)
	if rel := out.Lights["REL-36A"]; rel.Active || rel.Reason != "REL disabled" {
		t.Errorf("REL = %+v", rel)
	}
}
