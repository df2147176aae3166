package rwsl

import (
	"fmt"
	"time"

	"github.com/yegors/co-rwsl/internal/airport"
	"github.com/yegors/co-rwsl/internal/geo"
)

const rilLookahead = 30.0 // seconds

// evaluateRIL lights an intersection while crossing traffic conflicts there, or while
// fast traffic is about to reach it with another aircraft inside the critical zone
func evaluateRIL(c *cycle, fx *airport.Fixture) LightState {
	state := LightState{FixtureID: fx.ID, Type: airport.FixtureRIL, RunwayID: fx.RunwayID}
	if !c.geom.RIL {
		state.Reason = "RIL disabled"
		return state
	}
	ix, ok := c.geom.Intersection(fx.IntersectionID)
	if !ok {
		state.Reason = "unknown intersection"
		return state
	}

	for _, ev := range c.conflicts {
		if ev.Type == ConflictCrossing && ev.IntersectionID == ix.ID {
			return activate(state, ev.Severity, c.geom.REL.ActivationDelay,
				fmt.Sprintf("Crossing conflict at %s: %s", ix.ID, ev.RecommendedAction))
		}
	}

	inside := c.grid.QueryRadius(ix.Position, ix.Radius)
	for _, a := range c.fleet {
		if a.Altitude > GroundAltitudeFt || a.Speed < HighSpeedKt {
			continue
		}
		eta := geo.Distance(a.pos, ix.Position) / speedMs(a)
		if eta > rilLookahead {
			continue
		}
		for _, id := range inside {
			other := c.byID[id]
			if other == nil || id == a.ID || other.Altitude > GroundAltitudeFt {
				continue
			}
			return activate(state, SeverityHigh, c.geom.REL.ActivationDelay,
				fmt.Sprintf("%s reaches %s in %.0fs with %s inside", a.ID, ix.ID, eta, other.ID))
		}
	}

	state.Reason = "Intersection clear"
	return state
}

// activate marks a decision active and attaches the command for its severity
func activate(state LightState, sev Severity, delay time.Duration, reason string) LightState {
	state.Active = true
	state.Reason = reason
	state.Severity = sev
	state.Priority = priorityOf(sev)
	state.Command = buildCommand(sev, delay)
	return state
}
