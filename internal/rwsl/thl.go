package rwsl

import (
	"fmt"
	"math"
	"sort"

	"github.com/yegors/co-rwsl/internal/airport"
	"github.com/yegors/co-rwsl/internal/geo"
	"github.com/yegors/co-rwsl/internal/physics"
	"github.com/yegors/co-rwsl/internal/wake"
)

// THL rule parameters
const (
	departureReadyRange  = 300.0
	departureMaxSpeedKt  = 80.0
	alignmentTolerance   = 10.0
	thlCoverage          = 457.0 // 1500 ft
	landingFirstSep      = 120.0
	takeoffFirstSep      = 90.0
	oppositeDepartureSep = 180.0
	crossingClearance    = 5.0
	anticipationSpeedKt  = 80.0
	anticipationSeconds  = 8.0 + 5.0
)

// DepartureStatus is how close a departure is to starting its roll
type DepartureStatus string

const (
	DepartureHolding      DepartureStatus = "holding"
	DepartureLineupReady  DepartureStatus = "lineup_ready"
	DepartureTakeoffReady DepartureStatus = "takeoff_ready"
	DepartureRolling      DepartureStatus = "rolling"
)

// estimated seconds until the takeoff roll begins
var takeoffEstimate = map[DepartureStatus]float64{
	DepartureHolding:      120,
	DepartureLineupReady:  90,
	DepartureTakeoffReady: 30,
	DepartureRolling:      0,
}

type departure struct {
	a      *aircraft
	status DepartureStatus
}

type thlConflict struct {
	severity Severity
	reason   string
	ttc      float64
}

// departuresAt returns aircraft waiting at or rolling from a runway direction, sorted by id
func departuresAt(c *cycle, rw *airport.Runway, dir *airport.Direction) []departure {
	area := c.geom.THL
	heading := dir.Heading * math.Pi / 180
	areaCenter := geo.Translate(dir.Threshold, heading, area.AreaLength/2)

	var out []departure
	for _, a := range c.fleet {
		if a.Altitude > GroundAltitudeFt || a.Speed >= departureMaxSpeedKt {
			continue
		}
		if a.state == StateLandingRoll || a.state == StateApproach {
			continue
		}
		near := geo.Distance(a.pos, dir.Threshold) <= departureReadyRange ||
			geo.InRectangle(a.pos, areaCenter, area.AreaLength, area.AreaWidth, heading)
		if !near {
			continue
		}

		onRunway := rw.Contains(a.pos)
		aligned := physics.HeadingDifference(a.Heading, dir.Heading) <= alignmentTolerance

		var status DepartureStatus
		switch {
		case aligned && onRunway && (a.state == StateTakeoffRoll || (a.Speed >= ParkedSpeedKt && a.accel > 0)):
			status = DepartureRolling
		case a.state == StateTakeoffRoll:
			// rolling the other way, handled as an opposite departure
			continue
		case aligned && onRunway:
			status = DepartureTakeoffReady
		case onRunway:
			status = DepartureLineupReady
		default:
			status = DepartureHolding
		}
		out = append(out, departure{a: a, status: status})
	}
	return out
}

func shortfallSeverity(shortfall float64) Severity {
	switch {
	case shortfall > 60:
		return SeverityCritical
	case shortfall > 30:
		return SeverityHigh
	}
	return SeverityMedium
}

// anticipated reports whether an opposite-direction roll at rotation speed is far enough
// out that the separation is expected to resolve before the light matters. Landing
// traffic inside the coverage is never far enough out at that speed, so it is not checked.
func anticipated(other *aircraft, ttc float64) bool {
	return other.Speed >= anticipationSpeedKt && ttc > anticipationSeconds
}

func speedMs(a *aircraft) float64 {
	return a.Speed * physics.KnotsToMs
}

// thlConflicts lists the conflicts for one departure
func thlConflicts(c *cycle, rw *airport.Runway, dir *airport.Direction, dep departure) []thlConflict {
	var out []thlConflict
	takeoffT := takeoffEstimate[dep.status]
	occ := occupancyOf(c.occupancy, rw.ID)

	for _, other := range c.fleet {
		if other.ID == dep.a.ID {
			continue
		}

		// Landing traffic near this threshold
		if other.state == StateApproach || other.state == StateLandingRoll {
			d := geo.Distance(other.pos, dir.Threshold)
			if d > thlCoverage || other.Speed <= 0 {
				continue
			}
			landingT := d / speedMs(other)
			sep := math.Abs(takeoffT - landingT)

			required := takeoffFirstSep
			leader, follower := dep.a, other
			if landingT <= takeoffT {
				required = landingFirstSep
				leader, follower = other, dep.a
			}
			required = math.Max(required, wake.SeparationSeconds(leader.wake, follower.wake))
			if sep >= required {
				continue
			}
			out = append(out, thlConflict{
				severity: shortfallSeverity(required - sep),
				reason:   fmt.Sprintf("Hold %s: landing traffic %s in %.0fs, %.0fs short of separation", dep.a.ID, other.ID, landingT, required-sep),
				ttc:      landingT,
			})
			continue
		}

		if other.Altitude > GroundAltitudeFt || !rw.Contains(other.pos) {
			continue
		}
		proj := rw.Project(other.pos)

		// Opposite direction departure on the same runway
		if physics.HeadingDifference(other.Heading, dir.Heading+180) <= alignmentTolerance &&
			(other.state == StateTakeoffRoll || other.state == StateLineup || other.Speed >= HighSpeedKt) {
			closing := speedMs(other) + speedMs(dep.a)
			if closing < 1 {
				continue
			}
			ttc := geo.Distance(other.pos, dep.a.pos) / closing
			if ttc >= oppositeDepartureSep || anticipated(other, ttc) {
				continue
			}
			out = append(out, thlConflict{
				severity: shortfallSeverity(oppositeDepartureSep - ttc),
				reason:   fmt.Sprintf("Hold %s: opposite direction departure %s, closing in %.0fs", dep.a.ID, other.ID, ttc),
				ttc:      ttc,
			})
			continue
		}

		// Crossing traffic inside coverage
		if occ == nil || occupantTypeOf(occ, other.ID) != OccupancyTaxi {
			continue
		}
		if geo.Distance(other.pos, dir.Threshold) > thlCoverage {
			continue
		}
		remaining := (rw.HalfWidth() + proj.Cross) / math.Max(speedMs(other), 1)
		sev := SeverityMedium
		if dep.status == DepartureRolling || dep.status == DepartureTakeoffReady {
			sev = SeverityHigh
		}
		out = append(out, thlConflict{
			severity: sev,
			reason:   fmt.Sprintf("Hold %s: crossing traffic %s on runway %s", dep.a.ID, other.ID, rw.ID),
			ttc:      crossingClearance + remaining,
		})
	}
	return out
}

func occupantTypeOf(occ *RunwayOccupancy, id string) OccupancyType {
	for _, o := range occ.Occupants {
		if o.AircraftID == id {
			return o.Type
		}
	}
	return ""
}

// evaluateTHL decides one runway direction. Every THL fixture of that direction shares it.
func evaluateTHL(c *cycle, rw *airport.Runway, dir *airport.Direction) LightState {
	state := LightState{Type: airport.FixtureTHL, RunwayID: rw.ID, DirectionID: dir.ID}
	if !c.geom.THL.Enabled {
		state.Reason = "THL disabled"
		return state
	}

	deps := departuresAt(c, rw, dir)
	if len(deps) == 0 {
		state.Reason = "No departure at threshold"
		return state
	}

	var conflicts []thlConflict
	for _, dep := range deps {
		conflicts = append(conflicts, thlConflicts(c, rw, dir, dep)...)
	}
	if len(conflicts) == 0 {
		state.Reason = fmt.Sprintf("Departure %s clear (%s)", deps[0].a.ID, deps[0].status)
		return state
	}

	sort.SliceStable(conflicts, func(i, j int) bool {
		if conflicts[i].severity.Rank() != conflicts[j].severity.Rank() {
			return conflicts[i].severity.Rank() > conflicts[j].severity.Rank()
		}
		return conflicts[i].ttc < conflicts[j].ttc
	})
	top := conflicts[0]
	return activate(state, top.severity, c.geom.THL.ActivationDelay, top.reason)
}
