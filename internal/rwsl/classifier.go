package rwsl

import (
	"time"

	"github.com/yegors/co-rwsl/internal/physics"
)

var emergencySquawks = map[string]bool{
	"7500": true, // unlawful interference
	"7600": true, // radio failure
	"7700": true, // general emergency
}

type sample struct {
	at    time.Time
	speed float64 // knots
}

// Classifier assigns operational states and keeps the short speed history used to
// estimate acceleration. It is the only engine component with per-aircraft memory.
type Classifier struct {
	history    map[string][]sample
	window     time.Duration
	maxSamples int
}

// NewClassifier creates a classifier retaining at most window worth of history and at most
// maxSamples samples per aircraft. Non-positive values select the defaults.
func NewClassifier(window time.Duration, maxSamples int) *Classifier {
	if window <= 0 {
		window = MaxHistoryWindow
	}
	if maxSamples < 2 {
		maxSamples = MaxHistorySamples
	}
	return &Classifier{
		history:    make(map[string][]sample),
		window:     window,
		maxSamples: maxSamples,
	}
}

// Observe records a snapshot and returns the current acceleration estimate in m/s²
func (c *Classifier) Observe(s AircraftSnapshot) float64 {
	h := c.history[s.ID]
	next := sample{at: s.Timestamp, speed: s.Speed}

	if n := len(h); n > 0 && !s.Timestamp.After(h[n-1].at) {
		h[n-1] = next
	} else {
		h = append(h, next)
	}

	newest := h[len(h)-1].at
	drop := 0
	for drop < len(h)-1 && newest.Sub(h[drop].at) > c.window {
		drop++
	}
	if len(h)-drop > c.maxSamples {
		drop = len(h) - c.maxSamples
	}
	if drop > 0 {
		h = append(h[:0], h[drop:]...)
	}
	c.history[s.ID] = h

	return acceleration(h)
}

// Prune forgets every aircraft not present in the current batch
func (c *Classifier) Prune(present map[string]bool) {
	for id := range c.history {
		if !present[id] {
			delete(c.history, id)
		}
	}
}

// Tracked returns the number of aircraft with history
func (c *Classifier) Tracked() int {
	return len(c.history)
}

// Samples returns the number of retained samples for one aircraft
func (c *Classifier) Samples(id string) int {
	return len(c.history[id])
}

func acceleration(h []sample) float64 {
	if len(h) < 2 {
		return 0
	}
	prev, last := h[len(h)-2], h[len(h)-1]
	dt := last.at.Sub(prev.at).Seconds()
	if dt <= 0 {
		return 0
	}
	return (last.speed - prev.speed) * physics.KnotsToMs / dt
}

// Classify derives the operational state of one aircraft. Only the snapshot, whether it
// sits inside a runway occupancy rectangle and its acceleration are considered, so the
// result is deterministic for identical inputs.
func Classify(s AircraftSnapshot, onRunway bool, accel float64) AircraftState {
	if s.Emergency || emergencySquawks[s.Squawk] {
		return StateEmergency
	}

	vs := s.Vertical()
	if s.Altitude > GroundAltitudeFt {
		if s.Altitude <= ApproachCeilingFt && vs < DescendingFpm && s.Speed >= ApproachMinSpeedKt {
			return StateApproach
		}
		return StateAirborne
	}

	if s.Speed < ParkedSpeedKt {
		return StateParked
	}
	if !onRunway {
		return StateTaxi
	}

	switch {
	case s.Speed >= HighSpeedKt:
		if accel > 0 {
			return StateTakeoffRoll
		}
		return StateLandingRoll
	case s.Speed <= ApproachMinSpeedKt && vs < DescendingFpm:
		return StateLandingRoll
	case s.Speed < LineupSpeedKt:
		return StateLineup
	}
	// Between lineup and high speed on a runway is treated as a crossing
	return StateTaxi
}
