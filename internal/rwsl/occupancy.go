package rwsl

import (
	"math"
	"time"

	"github.com/yegors/co-rwsl/internal/airport"
	"github.com/yegors/co-rwsl/internal/physics"
)

const (
	occupancySpeedKt   = 50.0
	stationaryExitTime = 120 * time.Second
)

// occupantType maps an occupant's speed and vertical trend to an operation
func occupantType(a *aircraft) OccupancyType {
	switch {
	case a.Speed >= occupancySpeedKt:
		if a.vs() > 0 {
			return OccupancyTakeoff
		}
		return OccupancyLanding
	case a.Speed >= ParkedSpeedKt:
		return OccupancyTaxi
	}
	return OccupancyLineup
}

// movingTowardEnd reports whether a heading points from the runway start toward its end
func movingTowardEnd(rw *airport.Runway, heading float64) bool {
	return physics.HeadingDifference(heading, rw.Bearing*180/math.Pi) <= 90
}

// remainingLength returns the runway length left ahead of an aircraft in its direction of travel
func remainingLength(rw *airport.Runway, along, heading float64) float64 {
	remaining := along
	if movingTowardEnd(rw, heading) {
		remaining = rw.Length - along
	}
	return math.Max(0, remaining)
}

// computeOccupancy builds the occupancy of every runway from scratch. aircraft must be
// sorted by id.
func computeOccupancy(geom *airport.Geometry, fleet []*aircraft, now time.Time) []RunwayOccupancy {
	out := make([]RunwayOccupancy, 0, len(geom.Runways))

	for _, rw := range geom.Runways {
		occ := RunwayOccupancy{RunwayID: rw.ID, Occupants: []Occupant{}}
		var fastest *aircraft
		var fastestProj float64

		for _, a := range fleet {
			if a.Altitude > GroundAltitudeFt || !rw.Contains(a.pos) {
				continue
			}
			proj := rw.Project(a.pos)
			occ.Occupants = append(occ.Occupants, Occupant{
				AircraftID: a.ID,
				Type:       occupantType(a),
				Along:      proj.Along,
				Cross:      proj.Cross,
				Speed:      a.Speed,
			})
			if fastest == nil || a.Speed > fastest.Speed {
				fastest = a
				fastestProj = proj.Along
			}
		}

		if fastest != nil {
			occ.Occupied = true
			occ.DominantType = occupantType(fastest)

			entry := now
			exitIn := stationaryExitTime
			if fastest.Speed >= ParkedSpeedKt {
				remaining := remainingLength(rw, fastestProj, fastest.Heading)
				exitIn = time.Duration(remaining / (fastest.Speed * physics.KnotsToMs) * float64(time.Second))
			}
			exit := now.Add(exitIn)
			occ.EntryTime = &entry
			occ.EstimatedExit = &exit
		}
		out = append(out, occ)
	}
	return out
}

// occupancyOf finds one runway's occupancy in a cycle result
func occupancyOf(occ []RunwayOccupancy, runwayID string) *RunwayOccupancy {
	for i := range occ {
		if occ[i].RunwayID == runwayID {
			return &occ[i]
		}
	}
	return nil
}
