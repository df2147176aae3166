// Package monitor runs the decision loop: it polls the surveillance feed, feeds the
// RWSL engine and fans each cycle's output out to the dashboard, the event history and
// the black-box recorder.
package monitor

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/brunoga/deep"

	"github.com/yegors/co-rwsl/internal/adsb"
	"github.com/yegors/co-rwsl/internal/recorder"
	"github.com/yegors/co-rwsl/internal/rwsl"
	"github.com/yegors/co-rwsl/internal/storage/sqlite"
	"github.com/yegors/co-rwsl/internal/websocket"
	"github.com/yegors/co-rwsl/pkg/logger"
)

// Source supplies raw surveillance data
type Source interface {
	FetchData(ctx context.Context) (*adsb.RawAircraftData, error)
}

// Simulator injects simulated traffic into each cycle
type Simulator interface {
	UpdatePositions(now time.Time)
	GenerateADSBData() []adsb.ADSBTarget
}

// WebSocketServer defines the interface for a WebSocket server
type WebSocketServer interface {
	Broadcast(message *websocket.Message)
}

// EventStore persists conflicts, light transitions and health samples
type EventStore interface {
	RecordConflicts(conflicts []rwsl.ConflictEvent, now time.Time) (int, error)
	RecordTransitions(transitions []sqlite.LightTransition) error
	RecordHealth(h rwsl.Health, now time.Time) error
}

// CycleRecorder keeps the black-box record
type CycleRecorder interface {
	Record(rec recorder.CycleRecord) error
	Flush() error
}

// Config tunes the loop
type Config struct {
	Interval       time.Duration
	MaxPositionAge time.Duration
	FieldElevation float64 // feet MSL, subtracted from reported altitudes
	AlertSeverity  rwsl.Severity
	HealthEvery    int // cycles between stored health samples
	FlushEvery     int // cycles between recorder flushes
}

// Option wires an optional collaborator into the service
type Option func(*Service)

// WithSimulator merges simulated traffic into every cycle
func WithSimulator(sim Simulator) Option {
	return func(s *Service) { s.sim = sim }
}

// WithWebSocket broadcasts every cycle to dashboard clients
func WithWebSocket(ws WebSocketServer) Option {
	return func(s *Service) { s.wsServer = ws }
}

// WithEventStore persists conflicts, transitions and health
func WithEventStore(store EventStore) Option {
	return func(s *Service) { s.store = store }
}

// WithRecorder records every cycle
func WithRecorder(rec CycleRecorder) Option {
	return func(s *Service) { s.rec = rec }
}

// Status describes the surveillance feed as of the last cycle
type Status struct {
	LastFetch time.Time         `json:"last_fetch"`
	FetchOK   bool              `json:"fetch_ok"`
	LastError string            `json:"last_error,omitempty"`
	Cycles    int64             `json:"cycles"`
	Feed      adsb.ConvertStats `json:"feed"`
}

// Service is the decision loop
type Service struct {
	engine   *rwsl.Engine
	source   Source
	sim      Simulator
	wsServer WebSocketServer
	store    EventStore
	rec      CycleRecorder
	cfg      Config
	logger   *logger.Logger
	now      func() time.Time

	mu         sync.RWMutex
	latest     *rwsl.Output
	status     Status
	prevLights map[string]rwsl.LightState
	alerted    map[string]bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewService creates the decision loop
func NewService(engine *rwsl.Engine, source Source, cfg Config, log *logger.Logger, opts ...Option) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.AlertSeverity == "" {
		cfg.AlertSeverity = rwsl.SeverityHigh
	}
	s := &Service{
		engine:     engine,
		source:     source,
		cfg:        cfg,
		logger:     log.Named("monitor"),
		now:        time.Now,
		prevLights: make(map[string]rwsl.LightState),
		alerted:    make(map[string]bool),
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs one cycle immediately and then one per interval
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("Starting RWSL monitor",
		logger.Duration("interval", s.cfg.Interval),
		logger.String("alert_severity", string(s.cfg.AlertSeverity)),
	)

	if _, err := s.RunCycle(ctx); err != nil {
		s.logger.Error("Initial cycle failed", logger.Error(err))
	}

	s.wg.Add(1)
	go s.loop(ctx)
	return nil
}

// Stop stops the loop and waits for the current cycle to finish
func (s *Service) Stop() {
	s.logger.Info("Stopping RWSL monitor")
	close(s.stopCh)
	s.wg.Wait()
	if s.rec != nil {
		if err := s.rec.Flush(); err != nil {
			s.logger.Error("Failed to flush recorder", logger.Error(err))
		}
	}
	s.logger.Info("RWSL monitor stopped")
}

func (s *Service) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.RunCycle(ctx); err != nil {
				s.logger.Error("Cycle skipped", logger.Error(err))
			}
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// RunCycle fetches, decides and publishes one cycle. A fetch failure skips the cycle:
// the engine is never fed an empty batch on error, so the last decision stays in force.
func (s *Service) RunCycle(ctx context.Context) (rwsl.Output, error) {
	now := s.now()

	var targets []adsb.ADSBTarget
	if s.source != nil {
		raw, err := s.source.FetchData(ctx)
		if err != nil {
			s.setFetchStatus(now, err)
			return rwsl.Output{}, err
		}
		targets = raw.Aircraft
	}
	if s.sim != nil {
		s.sim.UpdatePositions(now)
		simulated := s.sim.GenerateADSBData()
		targets = append(targets, simulated...)
		if len(simulated) > 0 {
			s.logger.Debug("Injected simulated aircraft", logger.Int("count", len(simulated)))
		}
	}

	snapshots, stats := adsb.ToSnapshots(targets, now, s.cfg.MaxPositionAge, s.cfg.FieldElevation)
	out := s.engine.Process(snapshots, now)

	s.mu.Lock()
	transitions := diffLights(s.prevLights, out.Lights, now)
	alerts := s.newAlerts(out.Conflicts)
	s.prevLights = out.Lights
	s.latest = &out
	s.status.LastFetch = now
	s.status.FetchOK = true
	s.status.LastError = ""
	s.status.Cycles++
	s.status.Feed = stats
	cycles := s.status.Cycles
	s.mu.Unlock()

	if out.Health.FailSafe {
		s.logger.Warn("Engine in fail-safe", logger.String("error", out.Health.LastError))
	}
	for _, tr := range transitions {
		s.logger.Info("Light transition",
			logger.String("fixture", tr.FixtureID),
			logger.Bool("active", tr.Active),
			logger.String("severity", tr.Severity),
			logger.String("reason", tr.Reason))
	}

	if s.wsServer != nil {
		s.wsServer.Broadcast(websocket.StateMessage(out))
		for _, ev := range alerts {
			s.wsServer.Broadcast(websocket.ConflictAlertMessage(ev))
		}
	}

	s.persist(out, transitions, cycles, now)

	if s.rec != nil {
		err := s.rec.Record(recorder.CycleRecord{
			Time:      now,
			Snapshots: snapshots,
			Lights:    out.Lights,
			Conflicts: out.Conflicts,
			Health:    out.Health,
		})
		if err != nil {
			s.logger.Error("Failed to record cycle", logger.Error(err))
		} else if s.cfg.FlushEvery > 0 && cycles%int64(s.cfg.FlushEvery) == 0 {
			if err := s.rec.Flush(); err != nil {
				s.logger.Error("Failed to flush recorder", logger.Error(err))
			}
		}
	}

	return out, nil
}

func (s *Service) persist(out rwsl.Output, transitions []sqlite.LightTransition, cycles int64, now time.Time) {
	if s.store == nil {
		return
	}
	var errs []error
	if len(transitions) > 0 {
		errs = append(errs, s.store.RecordTransitions(transitions))
	}
	if n, err := s.store.RecordConflicts(out.Conflicts, now); err != nil {
		errs = append(errs, err)
	} else if n > 0 {
		s.logger.Debug("Stored new conflict episodes", logger.Int("count", n))
	}
	if s.cfg.HealthEvery > 0 && cycles%int64(s.cfg.HealthEvery) == 0 {
		errs = append(errs, s.store.RecordHealth(out.Health, now))
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Error("Failed to persist cycle", logger.Error(err))
	}
}

// newAlerts returns conflicts at or above the alert severity that were not present in
// the previous cycle. Caller holds s.mu.
func (s *Service) newAlerts(conflicts []rwsl.ConflictEvent) []rwsl.ConflictEvent {
	var alerts []rwsl.ConflictEvent
	current := make(map[string]bool, len(conflicts))
	for _, ev := range conflicts {
		if ev.Severity.Rank() < s.cfg.AlertSeverity.Rank() {
			continue
		}
		current[ev.ID] = true
		if !s.alerted[ev.ID] {
			alerts = append(alerts, ev)
		}
	}
	s.alerted = current
	return alerts
}

// diffLights lists fixtures whose active flag changed, sorted by fixture id
func diffLights(prev, next map[string]rwsl.LightState, now time.Time) []sqlite.LightTransition {
	var out []sqlite.LightTransition
	for id, st := range next {
		if prev[id].Active == st.Active {
			continue
		}
		out = append(out, sqlite.LightTransition{
			FixtureID: id,
			Type:      string(st.Type),
			Active:    st.Active,
			Severity:  string(st.Severity),
			Reason:    st.Reason,
			Time:      now,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FixtureID < out[j].FixtureID })
	return out
}

func (s *Service) setFetchStatus(now time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.LastFetch = now
	s.status.FetchOK = false
	s.status.LastError = err.Error()
}

// Latest returns a deep copy of the last cycle's output
func (s *Service) Latest() (rwsl.Output, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return rwsl.Output{}, false
	}
	return deep.MustCopy(*s.latest), true
}

// Light returns the current state of one fixture
func (s *Service) Light(id string) (rwsl.LightState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return rwsl.LightState{}, false
	}
	st, ok := s.latest.Lights[id]
	if !ok {
		return rwsl.LightState{}, false
	}
	return deep.MustCopy(st), true
}

// Status returns the feed status
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Engine returns the engine driven by this loop
func (s *Service) Engine() *rwsl.Engine {
	return s.engine
}
