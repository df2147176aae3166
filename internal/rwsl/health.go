package rwsl

import (
	"math"
	"time"
)

// faultsBeforeCritical is the number of consecutive failed cycles that turn the status CRITICAL
const faultsBeforeCritical = 3

// healthTracker accumulates cycle metrics. It is owned by the engine and only used
// under the engine lock.
type healthTracker struct {
	budget time.Duration

	cycles         int64
	totalMs        float64
	maxMs          float64
	minMs          float64
	totalConflicts int64
	validSeen      int64
	totalSeen      int64
	errors         int64
	faults         int
}

// Score combines processing time against the budget and the share of usable snapshots
func Score(elapsed, budget time.Duration, accuracy float64) float64 {
	if budget <= 0 {
		budget = DefaultCycleBudget
	}
	timeScore := math.Max(0, 100-float64(elapsed)/float64(budget)*50)
	return math.Min(100, math.Max(0, timeScore+accuracy*50))
}

// StatusFor maps a score to a status. An over-budget cycle is at best DEGRADED.
func StatusFor(score float64, overBudget bool) HealthStatus {
	var status HealthStatus
	switch {
	case score >= 90:
		status = StatusOnline
	case score >= 70:
		status = StatusDegraded
	case score >= 50:
		status = StatusWarning
	default:
		status = StatusCritical
	}
	if overBudget && status == StatusOnline {
		status = StatusDegraded
	}
	return status
}

func (h *healthTracker) observe(elapsed time.Duration) float64 {
	ms := float64(elapsed) / float64(time.Millisecond)
	h.cycles++
	h.totalMs += ms
	if h.cycles == 1 || ms > h.maxMs {
		h.maxMs = ms
	}
	if h.cycles == 1 || ms < h.minMs {
		h.minMs = ms
	}
	return ms
}

// record accounts for a completed cycle
func (h *healthTracker) record(elapsed time.Duration, valid, total, conflicts int) Health {
	ms := h.observe(elapsed)
	h.totalConflicts += int64(conflicts)
	h.validSeen += int64(valid)
	h.totalSeen += int64(total)
	h.faults = 0

	accuracy := 1.0
	if total > 0 {
		accuracy = float64(valid) / float64(total)
	}
	over := elapsed > h.budget
	score := Score(elapsed, h.budget, accuracy)

	return Health{
		Status:        StatusFor(score, over),
		Score:         score,
		ProcessingMs:  ms,
		OverBudget:    over,
		ValidAircraft: valid,
		TotalAircraft: total,
		Metrics:       h.metrics(),
	}
}

// fault accounts for a cycle that ended in fail-safe
func (h *healthTracker) fault(elapsed time.Duration, total int, err error) Health {
	ms := h.observe(elapsed)
	h.totalSeen += int64(total)
	h.errors++
	h.faults++

	status := StatusDegraded
	if h.faults >= faultsBeforeCritical {
		status = StatusCritical
	}
	return Health{
		Status:        status,
		Score:         0,
		ProcessingMs:  ms,
		OverBudget:    elapsed > h.budget,
		TotalAircraft: total,
		FailSafe:      true,
		LastError:     err.Error(),
		Metrics:       h.metrics(),
	}
}

func (h *healthTracker) metrics() Metrics {
	m := Metrics{
		Cycles:            h.cycles,
		MaxProcessingMs:   h.maxMs,
		MinProcessingMs:   h.minMs,
		ErrorCount:        h.errors,
		ConsecutiveFaults: h.faults,
		DetectionRate:     1,
	}
	if h.cycles > 0 {
		m.AvgProcessingMs = h.totalMs / float64(h.cycles)
		m.AvgConflicts = float64(h.totalConflicts) / float64(h.cycles)
	}
	if h.totalSeen > 0 {
		m.DetectionRate = float64(h.validSeen) / float64(h.totalSeen)
	}
	return m
}
