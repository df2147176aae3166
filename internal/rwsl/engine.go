package rwsl

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/yegors/co-rwsl/internal/airport"
	"github.com/yegors/co-rwsl/internal/geo"
	"github.com/yegors/co-rwsl/internal/physics"
	"github.com/yegors/co-rwsl/internal/spatial"
	"github.com/yegors/co-rwsl/internal/wake"
	"github.com/yegors/co-rwsl/pkg/logger"
)

// FailSafeReason is the reason attached to every light after an internal fault
const FailSafeReason = "fail-safe"

// Config tunes the engine
type Config struct {
	CycleBudget    time.Duration
	GridCellSize   float64
	HistoryWindow  time.Duration
	HistorySamples int
}

// Option customizes an Engine
type Option func(*Engine)

// WithWakeCatalog replaces the built-in wake category table
func WithWakeCatalog(c *wake.Catalog) Option {
	return func(e *Engine) {
		if c != nil {
			e.wake = c
		}
	}
}

func withConflictDetector(d conflictDetector) Option {
	return func(e *Engine) {
		e.detect = d
	}
}

// cycle is the traffic picture shared by every rule during one Process call
type cycle struct {
	now       time.Time
	geom      *airport.Geometry
	fleet     []*aircraft // sorted by id
	byID      map[string]*aircraft
	grid      *spatial.Grid
	occupancy []RunwayOccupancy
	conflicts []ConflictEvent
}

// Engine turns telemetry batches into light decisions. Process is synchronous and only
// one cycle runs at a time.
type Engine struct {
	mu sync.Mutex

	geom       *airport.Geometry
	log        *logger.Logger
	wake       *wake.Catalog
	classifier *Classifier
	grid       *spatial.Grid
	detect     conflictDetector
	health     healthTracker
	lights     map[string]LightState // previous cycle, for activation timestamps
}

// NewEngine creates an engine for a compiled airport
func NewEngine(geom *airport.Geometry, cfg Config, log *logger.Logger, opts ...Option) *Engine {
	if cfg.CycleBudget <= 0 {
		cfg.CycleBudget = DefaultCycleBudget
	}
	if cfg.GridCellSize <= 0 {
		cfg.GridCellSize = spatial.DefaultCellSize
	}

	e := &Engine{
		geom:       geom,
		log:        log.Named("rwsl-engine"),
		wake:       wake.NewCatalog(),
		classifier: NewClassifier(cfg.HistoryWindow, cfg.HistorySamples),
		grid:       spatial.NewGrid(cfg.GridCellSize),
		detect:     detectConflicts,
		health:     healthTracker{budget: cfg.CycleBudget},
		lights:     make(map[string]LightState),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Geometry returns the airport the engine was built for
func (e *Engine) Geometry() *airport.Geometry {
	return e.geom
}

// GridStats returns the spatial index statistics of the last cycle
func (e *Engine) GridStats() spatial.Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.grid.Stats()
}

// Process runs one full decision cycle. It always returns a usable output; internal
// faults light every fixture.
func (e *Engine) Process(batch []AircraftSnapshot, now time.Time) (out Output) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("cycle panic: %v", r)
			e.log.Error("RWSL cycle failed, entering fail-safe",
				logger.Error(err),
				logger.Int("aircraft", len(batch)))
			out = e.failSafe(now, len(batch), time.Since(start), err)
		}
	}()

	c := e.prepare(batch, now)
	c.occupancy = computeOccupancy(e.geom, c.fleet, now)
	c.conflicts = e.detect(c)
	if c.conflicts == nil {
		c.conflicts = []ConflictEvent{}
	}

	lights := e.decide(c)
	e.stamp(lights, now)

	elapsed := time.Since(start)
	health := e.health.record(elapsed, len(c.fleet), len(batch), len(c.conflicts))
	if health.OverBudget {
		e.log.Warn("RWSL cycle over budget",
			logger.Duration("elapsed", elapsed),
			logger.Duration("budget", e.health.budget))
	}

	e.log.Debug("RWSL cycle complete",
		logger.Int("aircraft", len(c.fleet)),
		logger.Int("conflicts", len(c.conflicts)),
		logger.Duration("elapsed", elapsed))

	return Output{
		Timestamp: now,
		Lights:    copyLights(lights),
		Conflicts: c.conflicts,
		Occupancy: c.occupancy,
		Aircraft:  statuses(c.fleet),
		Health:    health,
	}
}

// ValidateSnapshot reports why a snapshot cannot be processed
func ValidateSnapshot(s AircraftSnapshot) error {
	if s.ID == "" {
		return fmt.Errorf("%w: empty id", ErrMalformedSnapshot)
	}
	if err := geo.ValidateLatLon(s.Latitude, s.Longitude); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMalformedSnapshot, s.ID, err)
	}
	if math.IsNaN(s.Altitude) || math.IsInf(s.Altitude, 0) {
		return fmt.Errorf("%w: %s: altitude %f", ErrMalformedSnapshot, s.ID, s.Altitude)
	}
	if math.IsNaN(s.Speed) || math.IsInf(s.Speed, 0) || s.Speed < 0 {
		return fmt.Errorf("%w: %s: speed %f", ErrMalformedSnapshot, s.ID, s.Speed)
	}
	if math.IsNaN(s.Heading) || math.IsInf(s.Heading, 0) || s.Heading < 0 {
		return fmt.Errorf("%w: %s: heading %f", ErrMalformedSnapshot, s.ID, s.Heading)
	}
	if vs := s.VerticalSpeed; vs != nil && (math.IsNaN(*vs) || math.IsInf(*vs, 0)) {
		return fmt.Errorf("%w: %s: vertical speed %f", ErrMalformedSnapshot, s.ID, *vs)
	}
	return nil
}

// prepare validates, projects, indexes and classifies the batch
func (e *Engine) prepare(batch []AircraftSnapshot, now time.Time) *cycle {
	byID := make(map[string]*aircraft, len(batch))
	for _, s := range batch {
		if err := ValidateSnapshot(s); err != nil {
			e.log.Warn("Excluding malformed snapshot", logger.String("id", s.ID), logger.Error(err))
			continue
		}
		pos, err := e.geom.Projector.ToPlane(s.Latitude, s.Longitude)
		if err != nil {
			e.log.Warn("Excluding unprojectable snapshot", logger.String("id", s.ID), logger.Error(err))
			continue
		}
		s.Heading = physics.NormalizeHeading(s.Heading)
		if s.Timestamp.IsZero() {
			s.Timestamp = now
		}
		if _, dup := byID[s.ID]; dup {
			e.log.Warn("Duplicate aircraft in batch, keeping the later entry", logger.String("id", s.ID))
		}
		byID[s.ID] = &aircraft{AircraftSnapshot: s, pos: pos}
	}

	fleet := make([]*aircraft, 0, len(byID))
	positions := make(map[string]geo.Point, len(byID))
	present := make(map[string]bool, len(byID))
	for id, a := range byID {
		fleet = append(fleet, a)
		positions[id] = a.pos
		present[id] = true
	}
	sort.Slice(fleet, func(i, j int) bool { return fleet[i].ID < fleet[j].ID })

	e.grid.Rebuild(positions)
	e.classifier.Prune(present)

	for _, a := range fleet {
		a.accel = e.classifier.Observe(a.AircraftSnapshot)
		if a.Altitude <= GroundAltitudeFt {
			if rws := e.geom.RunwaysAt(a.pos); len(rws) > 0 {
				a.runway = rws[0]
			}
		}
		a.state = Classify(a.AircraftSnapshot, a.runway != nil, a.accel)
		a.wake = e.wake.Lookup(a.AircraftType)
	}

	return &cycle{now: now, geom: e.geom, fleet: fleet, byID: byID, grid: e.grid}
}

// decide evaluates every fixture. THL fixtures sharing a direction share one decision.
func (e *Engine) decide(c *cycle) map[string]LightState {
	lights := make(map[string]LightState, len(e.geom.Fixtures))
	thl := make(map[string]LightState)

	for _, fx := range e.geom.Fixtures {
		switch fx.Type {
		case airport.FixtureREL:
			lights[fx.ID] = evaluateREL(c, fx)
		case airport.FixtureTHL:
			st, ok := thl[fx.DirectionID]
			if !ok {
				rw, _ := e.geom.Runway(fx.RunwayID)
				dir, _ := e.geom.Direction(fx.DirectionID)
				st = evaluateTHL(c, rw, dir)
				thl[fx.DirectionID] = st
			}
			st.FixtureID = fx.ID
			lights[fx.ID] = st
		case airport.FixtureRIL:
			lights[fx.ID] = evaluateRIL(c, fx)
		}
	}
	return lights
}

// stamp carries activation timestamps over from the previous cycle and replaces it
func (e *Engine) stamp(lights map[string]LightState, now time.Time) {
	for id, st := range lights {
		prev, had := e.lights[id]
		switch {
		case st.Active && had && prev.Active:
			st.ActivatedAt = prev.ActivatedAt
			st.DeactivatedAt = prev.DeactivatedAt
		case st.Active:
			at := now
			st.ActivatedAt = &at
			if had {
				st.DeactivatedAt = prev.DeactivatedAt
			}
		case had && prev.Active:
			at := now
			st.ActivatedAt = prev.ActivatedAt
			st.DeactivatedAt = &at
		case had:
			st.ActivatedAt = prev.ActivatedAt
			st.DeactivatedAt = prev.DeactivatedAt
		}
		lights[id] = st
	}
	e.lights = copyLights(lights)
}

// failSafe lights every fixture after an internal fault
func (e *Engine) failSafe(now time.Time, total int, elapsed time.Duration, err error) Output {
	lights := make(map[string]LightState, len(e.geom.Fixtures))
	for _, fx := range e.geom.Fixtures {
		st := LightState{FixtureID: fx.ID, Type: fx.Type, RunwayID: fx.RunwayID, DirectionID: fx.DirectionID}
		lights[fx.ID] = activate(st, SeverityCritical, 0, FailSafeReason)
	}
	e.stamp(lights, now)

	return Output{
		Timestamp: now,
		Lights:    copyLights(lights),
		Conflicts: []ConflictEvent{},
		Occupancy: []RunwayOccupancy{},
		Aircraft:  []AircraftStatus{},
		Health:    e.health.fault(elapsed, total, err),
	}
}

func copyLights(in map[string]LightState) map[string]LightState {
	out := make(map[string]LightState, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func statuses(fleet []*aircraft) []AircraftStatus {
	out := make([]AircraftStatus, 0, len(fleet))
	for _, a := range fleet {
		st := AircraftStatus{
			ID:           a.ID,
			Callsign:     a.Callsign,
			State:        a.state,
			Position:     a.pos,
			Latitude:     a.Latitude,
			Longitude:    a.Longitude,
			Altitude:     a.Altitude,
			Speed:        a.Speed,
			Heading:      a.Heading,
			Acceleration: a.accel,
			WakeCategory: a.wake,
		}
		if a.runway != nil {
			st.RunwayID = a.runway.ID
		}
		out = append(out, st)
	}
	return out
}
