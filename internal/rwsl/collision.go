package rwsl

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/yegors/co-rwsl/internal/airport"
	"github.com/yegors/co-rwsl/internal/geo"
	"github.com/yegors/co-rwsl/internal/physics"
	"github.com/yegors/co-rwsl/internal/wake"
)

// Prediction and rule parameters
const (
	predictionHorizon   = 120 // seconds
	predictionStep      = 1   // seconds
	intentMargin        = 300.0
	crossingGapLimit    = 30.0
	simultaneousSpeedKt = 50.0
	simultaneousLateral = 300.0
	headOnAngle         = 150.0

	intrusionConfidence    = 0.85
	crossingConfidence     = 0.75
	wakeConfidence         = 0.8
	simultaneousConfidence = 0.9
	headOnConfidence       = 0.9
)

var intrusionActions = map[Severity]string{
	SeverityEmergency: "IMMEDIATE STOP - All aircraft hold position",
	SeverityCritical:  "Hold short of runway",
	SeverityHigh:      "Reduce speed - maintain separation",
	SeverityMedium:    "Monitor closely",
	SeverityLow:       "Continue monitoring",
}

// conflictDetector produces the conflict list for one cycle. It never changes lights.
type conflictDetector func(c *cycle) []ConflictEvent

// detectConflicts runs every rule family and returns the merged, ordered list
func detectConflicts(c *cycle) []ConflictEvent {
	var out []ConflictEvent
	out = append(out, detectIntrusions(c)...)
	out = append(out, detectCrossings(c)...)
	out = append(out, detectWake(c)...)
	out = append(out, detectSimultaneous(c)...)
	out = append(out, detectHeadOn(c)...)
	sortConflicts(out)
	return out
}

func sortConflicts(events []ConflictEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		ri, rj := events[i].Severity.Rank(), events[j].Severity.Rank()
		if ri != rj {
			return ri > rj
		}
		if events[i].TimeToConflict != events[j].TimeToConflict {
			return events[i].TimeToConflict < events[j].TimeToConflict
		}
		return events[i].ID < events[j].ID
	})
}

func conflictID(t ConflictType, scope string, ids ...string) string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	return fmt.Sprintf("%s:%s:%s", t, scope, strings.Join(sorted, ","))
}

func newConflict(c *cycle, t ConflictType, sev Severity, scope string, runways []string, ttc, confidence, sep float64, action string, ids ...string) ConflictEvent {
	return ConflictEvent{
		ID:                  conflictID(t, scope, ids...),
		Type:                t,
		Severity:            sev,
		AircraftIDs:         ids,
		RunwayIDs:           runways,
		PredictedTime:       c.now.Add(time.Duration(ttc * float64(time.Second))),
		TimeToConflict:      ttc,
		Confidence:          confidence,
		RecommendedAction:   action,
		EstimatedSeparation: sep,
	}
}

// requiredSeparation grows with the faster aircraft's speed in knots
func requiredSeparation(maxSpeedKt float64) float64 {
	return 500 * (1 + (maxSpeedKt-100)/500)
}

func riskSeverity(risk float64) Severity {
	switch {
	case risk >= 1.5:
		return SeverityEmergency
	case risk >= 1.2:
		return SeverityCritical
	case risk >= 0.8:
		return SeverityHigh
	case risk >= 0.4:
		return SeverityMedium
	}
	return SeverityLow
}

// track is a constant-velocity prediction of one aircraft
type track struct {
	pos geo.Point
	vel physics.Vector2D
	alt float64
	vs  float64 // fpm
}

func newTrack(a *aircraft) track {
	return track{pos: a.pos, vel: physics.VelocityMs(a.Speed, a.Heading), alt: a.Altitude, vs: a.vs()}
}

func (t track) at(sec float64) (geo.Point, float64) {
	p := geo.Point{X: t.pos.X + t.vel.X*sec, Y: t.pos.Y + t.vel.Y*sec}
	alt := math.Max(0, t.alt+t.vs*sec/60)
	return p, alt
}

func inZone(rw *airport.Runway, p geo.Point, alt float64) bool {
	return alt <= GroundAltitudeFt && rw.Contains(p)
}

// intruderCandidates returns aircraft on final or about to enter the runway, excluding
// the runway's own occupants
func intruderCandidates(c *cycle, rw *airport.Runway, occupants map[string]bool) []*aircraft {
	seen := make(map[string]bool)
	var out []*aircraft

	for _, id := range c.grid.QueryBounds(rw.Bounds().Expand(intentMargin)) {
		a := c.byID[id]
		if a == nil || occupants[id] || a.Altitude > GroundAltitudeFt || a.Speed >= HighSpeedKt {
			continue
		}
		proj := rw.Project(a.pos)
		if proj.Cross-rw.HalfWidth() > intentMargin || proj.Along < -intentMargin || proj.Along > rw.Length+intentMargin {
			continue
		}
		seen[id] = true
		out = append(out, a)
	}
	for _, a := range c.fleet {
		if seen[a.ID] || occupants[a.ID] {
			continue
		}
		if a.Altitude > GroundAltitudeFt && a.Altitude <= ApproachCeilingFt && a.vs() < DescendingFpm {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func detectIntrusions(c *cycle) []ConflictEvent {
	var out []ConflictEvent

	for _, rw := range c.geom.Runways {
		occ := occupancyOf(c.occupancy, rw.ID)
		if occ == nil || !occ.Occupied {
			continue
		}
		occupants := make(map[string]bool, len(occ.Occupants))
		for _, o := range occ.Occupants {
			occupants[o.AircraftID] = true
		}
		candidates := intruderCandidates(c, rw, occupants)

		for _, o := range occ.Occupants {
			occupant := c.byID[o.AircraftID]
			for _, cand := range candidates {
				if ev, ok := predictIntrusion(c, rw, occupant, cand); ok {
					out = append(out, ev)
				}
			}
		}
	}
	return out
}

// predictIntrusion steps both aircraft forward and checks whether they share the
// runway zone closer than the required separation
func predictIntrusion(c *cycle, rw *airport.Runway, occupant, intruder *aircraft) (ConflictEvent, bool) {
	to, ti := newTrack(occupant), newTrack(intruder)
	required := requiredSeparation(math.Max(occupant.Speed, intruder.Speed))

	minSep := math.Inf(1)
	minT := 0.0
	overlap := false
	for step := 0; step <= predictionHorizon; step += predictionStep {
		sec := float64(step)
		po, ao := to.at(sec)
		pi, ai := ti.at(sec)
		if !inZone(rw, po, ao) || !inZone(rw, pi, ai) {
			continue
		}
		overlap = true
		if d := geo.Distance(po, pi); d < minSep {
			minSep, minT = d, sec
		}
	}
	if !overlap || minSep >= required {
		return ConflictEvent{}, false
	}

	risk := (1 - minSep/required) + math.Max(0, 1-minT/60)
	sev := riskSeverity(risk)
	action := fmt.Sprintf("%s - %s, %s", intrusionActions[sev], occupant.ID, intruder.ID)
	return newConflict(c, ConflictRunwayIntrusion, sev, rw.ID, []string{rw.ID}, minT, intrusionConfidence, minSep, action, occupant.ID, intruder.ID), true
}

// crossingSeverity grades the arrival gap at an intersection
func crossingSeverity(gap, earliest float64) Severity {
	switch {
	case gap < 10 && earliest <= 5:
		return SeverityCritical
	case gap < 20:
		return SeverityHigh
	}
	return SeverityMedium
}

func detectCrossings(c *cycle) []ConflictEvent {
	var out []ConflictEvent

	for _, ix := range c.geom.Intersections {
		type arrival struct {
			a *aircraft
			t float64
		}
		var arrivals []arrival
		for _, id := range c.grid.QueryRadius(ix.Position, ix.Radius) {
			a := c.byID[id]
			if a == nil || a.state == StateAirborne || a.Speed <= 0 {
				continue
			}
			d := geo.Distance(a.pos, ix.Position)
			arrivals = append(arrivals, arrival{a: a, t: d / (a.Speed * physics.KnotsToMs)})
		}

		for i := 0; i < len(arrivals); i++ {
			for j := i + 1; j < len(arrivals); j++ {
				first, second := arrivals[i], arrivals[j]
				if second.t < first.t {
					first, second = second, first
				}
				gap := second.t - first.t
				if gap >= crossingGapLimit {
					continue
				}
				sev := crossingSeverity(gap, first.t)
				action := fmt.Sprintf("Hold %s or expedite %s", second.a.ID, first.a.ID)
				ev := newConflict(c, ConflictCrossing, sev, ix.ID, []string{ix.Runways[0], ix.Runways[1]},
					first.t, crossingConfidence, gap*10, action, first.a.ID, second.a.ID)
				ev.IntersectionID = ix.ID
				out = append(out, ev)
			}
		}
	}
	return out
}

func wakeSeverity(ratio float64) Severity {
	switch {
	case ratio < 0.5:
		return SeverityCritical
	case ratio < 0.7:
		return SeverityHigh
	case ratio < 0.9:
		return SeverityMedium
	}
	return SeverityLow
}

func detectWake(c *cycle) []ConflictEvent {
	var out []ConflictEvent

	for _, rw := range c.geom.Runways {
		occ := occupancyOf(c.occupancy, rw.ID)
		if occ == nil || len(occ.Occupants) < 2 {
			continue
		}
		for _, lead := range occ.Occupants {
			if lead.Type != OccupancyTakeoff && lead.Type != OccupancyLanding {
				continue
			}
			leader := c.byID[lead.AircraftID]
			forward := movingTowardEnd(rw, leader.Heading)

			// Closest aircraft behind the leader in its direction of travel
			var follow *Occupant
			best := math.Inf(1)
			for i := range occ.Occupants {
				f := &occ.Occupants[i]
				if f.AircraftID == lead.AircraftID || f.Type == OccupancyTaxi {
					continue
				}
				behind := lead.Along - f.Along
				if !forward {
					behind = -behind
				}
				if behind <= 0 || behind >= best {
					continue
				}
				best, follow = behind, f
			}
			if follow == nil {
				continue
			}

			follower := c.byID[follow.AircraftID]
			required := wake.SeparationNM(leader.wake, follower.wake) * physics.NMToMeters
			ratio := best / required
			if ratio >= 1 {
				continue
			}
			action := fmt.Sprintf("Wake separation %s behind %s: hold for %.0f NM", follower.ID, leader.ID, required/physics.NMToMeters)
			out = append(out, newConflict(c, ConflictWake, wakeSeverity(ratio), rw.ID, []string{rw.ID},
				0, wakeConfidence, best, action, leader.ID, follower.ID))
		}
	}
	return out
}

func detectSimultaneous(c *cycle) []ConflictEvent {
	var out []ConflictEvent

	for i, a := range c.geom.Runways {
		for _, b := range c.geom.Runways[i+1:] {
			if !isParallel(c.geom, a.ID, b.ID) {
				continue
			}
			fastA := fastOccupants(c, a.ID)
			fastB := fastOccupants(c, b.ID)
			for _, x := range fastA {
				for _, y := range fastB {
					px, py := a.Project(x.pos), a.Project(y.pos)
					lateral := math.Abs(px.Side*px.Cross - py.Side*py.Cross)
					if lateral >= simultaneousLateral {
						continue
					}
					out = append(out, newConflict(c, ConflictSimultaneous, SeverityHigh, a.ID+"+"+b.ID, []string{a.ID, b.ID},
						0, simultaneousConfidence, geo.Distance(x.pos, y.pos), "Stagger takeoff times", x.ID, y.ID))
				}
			}
		}
	}
	return out
}

func isParallel(g *airport.Geometry, a, b string) bool {
	for _, id := range g.Parallels(a) {
		if id == b {
			return true
		}
	}
	return false
}

func fastOccupants(c *cycle, runwayID string) []*aircraft {
	occ := occupancyOf(c.occupancy, runwayID)
	if occ == nil {
		return nil
	}
	var out []*aircraft
	for _, o := range occ.Occupants {
		if o.Speed > simultaneousSpeedKt {
			out = append(out, c.byID[o.AircraftID])
		}
	}
	return out
}

func detectHeadOn(c *cycle) []ConflictEvent {
	var out []ConflictEvent

	for _, rw := range c.geom.Runways {
		occ := occupancyOf(c.occupancy, rw.ID)
		if occ == nil {
			continue
		}
		for i := 0; i < len(occ.Occupants); i++ {
			for j := i + 1; j < len(occ.Occupants); j++ {
				oa, ob := occ.Occupants[i], occ.Occupants[j]
				a, b := c.byID[oa.AircraftID], c.byID[ob.AircraftID]
				if a.Speed < HighSpeedKt || b.Speed < HighSpeedKt {
					continue
				}
				if physics.HeadingDifference(a.Heading, b.Heading) <= headOnAngle {
					continue
				}
				// Closing when the one nearer the start moves toward the end
				rear, front := oa, ob
				rearAC := a
				if rear.Along > front.Along {
					rear, front = front, rear
					rearAC = b
				}
				if !movingTowardEnd(rw, rearAC.Heading) {
					continue
				}
				gap := front.Along - rear.Along
				closing := (a.Speed + b.Speed) * physics.KnotsToMs
				ttc := gap / closing

				var sev Severity
				switch {
				case ttc < 30:
					sev = SeverityCritical
				case ttc < 60:
					sev = SeverityHigh
				default:
					continue
				}
				out = append(out, newConflict(c, ConflictHeadOn, sev, rw.ID, []string{rw.ID},
					ttc, headOnConfidence, gap, "Stop - opposite direction traffic on runway", a.ID, b.ID))
			}
		}
	}
	return out
}
