package rwsl

import (
	"math"
	"testing"
	"time"
)

func TestBuildCommand(t *testing.T) {
	tests := []struct {
		sev      Severity
		delay    time.Duration
		flash    FlashPattern
		delayMs  int
		duration float64
		urgency  float64
	}{
		{SeverityEmergency, 0, FlashFast, 0, 120, 1},
		{SeverityCritical, 3 * time.Second, FlashFast, 0, 120, 1},
		{SeverityHigh, 0, FlashMedium, 500, 90, 0.8},
		{SeverityHigh, 750 * time.Millisecond, FlashMedium, 750, 90, 0.8},
		{SeverityMedium, 0, FlashSlow, 1000, 72, 0.5},
		{SeverityLow, 0, FlashSteady, 2000, 60, 0.2},
	}
	for _, tt := range tests {
		cmd := buildCommand(tt.sev, tt.delay)
		if cmd.FlashPattern != tt.flash || cmd.DelayMs != tt.delayMs {
			t.Errorf("%s/%v: flash %s delay %d, want %s %d", tt.sev, tt.delay, cmd.FlashPattern, cmd.DelayMs, tt.flash, tt.delayMs)
		}
		if math.Abs(cmd.DurationSec-tt.duration) > 1e-9 || math.Abs(cmd.Urgency-tt.urgency) > 1e-9 {
			t.Errorf("%s: duration %f urgency %f", tt.sev, cmd.DurationSec, cmd.Urgency)
		}
		if want := 0.5 + 0.5*tt.urgency; math.Abs(cmd.Intensity-want) > 1e-9 {
			t.Errorf("%s: intensity %f, want %f", tt.sev, cmd.Intensity, want)
		}
	}
}

func TestApproachPhase(t *testing.T) {
	tests := []struct {
		d    float64
		want string
	}{
		{0, PhaseShortFinal},
		{499, PhaseShortFinal},
		{500, PhaseFinal},
		{1999, PhaseIntermediate},
		{2000, PhaseInitial},
	}
	for _, tt := range tests {
		if got := approachPhase(tt.d); got != tt.want {
			t.Errorf("approachPhase(%v) = %s, want %s", tt.d, got, tt.want)
		}
	}
	if got := priorityOf(SeverityHigh); got != 80 {
		t.Errorf("priority(HIGH) = %d", got)
	}
}

func TestScoreAndStatus(t *testing.T) {
	budget := 900 * time.Millisecond
	tests := []struct {
		elapsed  time.Duration
		accuracy float64
		score    float64
		over     bool
		status   HealthStatus
	}{
		{0, 1, 100, false, StatusOnline},
		{budget, 1, 100, false, StatusOnline},
		{budget, 0.5, 75, false, StatusDegraded},
		{3 * budget, 1, 50, true, StatusWarning},
		{3 * budget, 0.2, 10, true, StatusCritical},
	}
	for _, tt := range tests {
		score := Score(tt.elapsed, budget, tt.accuracy)
		if math.Abs(score-tt.score) > 1e-9 {
			t.Errorf("Score(%v, %v) = %f, want %f", tt.elapsed, tt.accuracy, score, tt.score)
		}
		if got := StatusFor(score, tt.over); got != tt.status {
			t.Errorf("StatusFor(%f, %v) = %s, want %s", score, tt.over, got, tt.status)
		}
	}

	if got := StatusFor(95, true); got != StatusDegraded {
		t.Errorf("over budget status = %s", got)
	}
	if got := Score(0, 0, 1); got != 100 {
		t.Errorf("zero budget score = %f", got)
	}
}
