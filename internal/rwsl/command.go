package rwsl

import (
	"math"
	"time"
)

// Approach phases by distance to the nearest threshold
const (
	PhaseShortFinal   = "SHORT_FINAL"
	PhaseFinal        = "FINAL"
	PhaseIntermediate = "INTERMEDIATE"
	PhaseInitial      = "INITIAL"
)

func approachPhase(distance float64) string {
	switch {
	case distance < 500:
		return PhaseShortFinal
	case distance < 1000:
		return PhaseFinal
	case distance < 2000:
		return PhaseIntermediate
	}
	return PhaseInitial
}

func urgencyOf(sev Severity) float64 {
	switch sev {
	case SeverityCritical, SeverityEmergency:
		return 1.0
	case SeverityHigh:
		return 0.8
	case SeverityMedium:
		return 0.5
	}
	return 0.2
}

func priorityOf(sev Severity) int {
	return int(math.Round(urgencyOf(sev) * 100))
}

// buildCommand turns a severity into a light command. A configured activation delay
// postpones every command except critical ones.
func buildCommand(sev Severity, activationDelay time.Duration) *LightCommand {
	u := urgencyOf(sev)

	flash := FlashSteady
	switch {
	case u > 0.8:
		flash = FlashFast
	case u > 0.6:
		flash = FlashMedium
	case u > 0.3:
		flash = FlashSlow
	}

	var delay, factor float64
	switch {
	case u >= 1.0:
		delay, factor = 0, 2
	case u >= 0.8:
		delay, factor = 500, 1.5
	case u >= 0.5:
		delay, factor = 1000, 1.2
	default:
		delay, factor = 2000, 1
	}
	if u < 1.0 {
		delay = math.Max(delay, float64(activationDelay.Milliseconds()))
	}

	return &LightCommand{
		Urgency:      u,
		Intensity:    math.Min(1, math.Max(0, 0.5+0.5*u)),
		FlashPattern: flash,
		DelayMs:      int(delay),
		DurationSec:  60 * factor,
	}
}
