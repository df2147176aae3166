package rwsl

import (
	"fmt"
	"sort"

	"github.com/yegors/co-rwsl/internal/airport"
	"github.com/yegors/co-rwsl/internal/geo"
	"github.com/yegors/co-rwsl/internal/physics"
)

// REL rule parameters
const (
	passThroughSeconds   = 2.5
	departedAltitudeFt   = 200.0
	deceleratedArrivalKt = 34.0
	taxiMinSpeedKt       = 10.0
	taxiMaxSpeedKt       = 50.0
	arrivalCoverage      = physics.MileToMeters
	shortFinalDistance   = 500.0
)

// relTrigger is one reason a fixture should be lit
type relTrigger struct {
	severity Severity
	reason   string
	phase    string
}

// relEvaluator decides REL fixtures for one runway in one cycle
type relEvaluator struct {
	c  *cycle
	rw *airport.Runway
}

func (e relEvaluator) onRunway(a *aircraft) bool {
	return a.Altitude <= GroundAltitudeFt && e.rw.Contains(a.pos)
}

func (e relEvaluator) assigned(a *aircraft) bool {
	return e.c.geom.MatchesRunway(a.AssignedRunway, e.rw)
}

func isDeceleratedArrival(a *aircraft) bool {
	return a.state == StateLandingRoll && a.Speed <= deceleratedArrivalKt
}

// evaluateREL returns the decision for one REL fixture
func evaluateREL(c *cycle, fx *airport.Fixture) LightState {
	state := LightState{FixtureID: fx.ID, Type: airport.FixtureREL, RunwayID: fx.RunwayID, DirectionID: fx.DirectionID}

	if !c.geom.REL.Enabled {
		state.Reason = "REL disabled"
		return state
	}
	rw, ok := c.geom.Runway(fx.RunwayID)
	if !ok {
		state.Reason = "unknown runway"
		return state
	}
	e := relEvaluator{c: c, rw: rw}

	var triggers []relTrigger
	cleared := make(map[string]bool)
	var passThrough, decelerated, departed []string
	highSpeed := false

	// Departure rule
	for _, a := range c.fleet {
		if !e.onRunway(a) && !e.assigned(a) {
			continue
		}
		if a.Altitude > departedAltitudeFt && a.state == StateAirborne && e.assigned(a) {
			departed = append(departed, a.ID)
			continue
		}
		if a.Altitude > GroundAltitudeFt {
			continue
		}
		if isDeceleratedArrival(a) {
			cleared[a.ID] = true
			decelerated = append(decelerated, a.ID)
			continue
		}
		if a.state != StateTakeoffRoll && a.Speed < HighSpeedKt {
			continue
		}
		highSpeed = true

		ttr := geo.Distance(a.pos, fx.Position) / (a.Speed * physics.KnotsToMs)
		if ttr <= passThroughSeconds {
			cleared[a.ID] = true
			passThrough = append(passThrough, a.ID)
			continue
		}
		reason := fmt.Sprintf("High-speed traffic %s on runway %s, %.1fs to fixture", a.ID, rw.ID, ttr)
		if a.state == StateTakeoffRoll {
			reason = fmt.Sprintf("Departing aircraft %s on runway %s, %.1fs to fixture", a.ID, rw.ID, ttr)
		}
		triggers = append(triggers, relTrigger{severity: SeverityHigh, reason: reason})
	}

	// A decelerated arrival on this runway overrides the departure and taxi rules
	if len(decelerated) > 0 {
		triggers = nil
	} else if len(triggers) == 0 && len(departed) > 0 {
		return finishREL(c, state, nil, fmt.Sprintf("Departure %s airborne", departed[0]))
	}

	// Taxi crossing rule
	if !highSpeed && len(decelerated) == 0 {
		rel := c.geom.REL
		for _, id := range c.grid.QueryRadius(fx.Position, rel.Outer) {
			a := c.byID[id]
			if a == nil || cleared[id] || a.Altitude > GroundAltitudeFt {
				continue
			}
			if a.Speed < taxiMinSpeedKt || a.Speed > taxiMaxSpeedKt {
				continue
			}
			if !geo.InSector(a.pos, fx.Position, rel.Inner, rel.Outer, fx.ApproachBearing, rel.HalfAngle) {
				continue
			}
			triggers = append(triggers, relTrigger{
				severity: SeverityMedium,
				reason:   fmt.Sprintf("Taxiing aircraft %s approaching runway %s at %.0fkt", a.ID, rw.ID, a.Speed),
			})
		}
	}

	// Arrival rule
	for _, a := range c.fleet {
		if cleared[a.ID] || (a.state != StateApproach && a.state != StateLandingRoll) {
			continue
		}
		d := thresholdDistance(rw, a.pos)
		if d > arrivalCoverage {
			continue
		}
		sev := SeverityHigh
		if d < shortFinalDistance {
			sev = SeverityCritical
		}
		phase := approachPhase(d)
		triggers = append(triggers, relTrigger{
			severity: sev,
			reason:   fmt.Sprintf("Arriving aircraft %s %.0fm from runway %s (%s)", a.ID, d, rw.ID, phase),
			phase:    phase,
		})
	}

	if len(triggers) > 0 {
		return finishREL(c, state, triggers, "")
	}

	switch {
	case len(decelerated) > 0:
		return finishREL(c, state, nil, fmt.Sprintf("Arrival %s decelerated, runway safe", decelerated[0]))
	case len(passThrough) > 0:
		return finishREL(c, state, nil, fmt.Sprintf("Safe pass-through by %s", passThrough[0]))
	}
	return finishREL(c, state, nil, "No conflicting traffic")
}

// finishREL picks the most urgent trigger. Ties keep rule order: departure, taxi, arrival.
func finishREL(c *cycle, state LightState, triggers []relTrigger, idle string) LightState {
	if len(triggers) == 0 {
		state.Reason = idle
		return state
	}
	sort.SliceStable(triggers, func(i, j int) bool {
		return triggers[i].severity.Rank() > triggers[j].severity.Rank()
	})
	top := triggers[0]

	state = activate(state, top.severity, c.geom.REL.ActivationDelay, top.reason)
	state.ApproachPhase = top.phase
	return state
}

func thresholdDistance(rw *airport.Runway, p geo.Point) float64 {
	d0 := geo.Distance(p, rw.Directions[0].Threshold)
	d1 := geo.Distance(p, rw.Directions[1].Threshold)
	if d1 < d0 {
		return d1
	}
	return d0
}
