package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/yegors/co-rwsl/internal/adsb"
	"github.com/yegors/co-rwsl/internal/airport"
	"github.com/yegors/co-rwsl/internal/geo"
	"github.com/yegors/co-rwsl/internal/recorder"
	"github.com/yegors/co-rwsl/internal/rwsl"
	"github.com/yegors/co-rwsl/internal/simulation"
	"github.com/yegors/co-rwsl/internal/storage/sqlite"
	"github.com/yegors/co-rwsl/internal/websocket"
	"github.com/yegors/co-rwsl/pkg/logger"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func testGeometry(t *testing.T) *airport.Geometry {
	t.Helper()
	v := 0.0
	cfg := airport.Config{
		ID:                "TEST",
		Name:              "Test Field",
		ReferencePoint:    airport.LatLonPtr(37.5, 126.8),
		MagneticVariation: &v,
		Runways: []airport.RunwayConfig{
			{ID: "18/36", Width: 45, Directions: map[string]airport.DirectionConfig{
				"18": {Threshold: airport.LatLonPtr(37.51, 126.8)},
				"36": {Threshold: airport.LatLonPtr(37.49, 126.8)},
			}},
			{ID: "09/27", Width: 45, Directions: map[string]airport.DirectionConfig{
				"09": {Threshold: airport.LatLonPtr(37.5, 126.795)},
				"27": {Threshold: airport.LatLonPtr(37.5, 126.805)},
			}},
		},
		Fixtures: []airport.FixtureConfig{
			{ID: "REL-36A", Type: airport.FixtureREL, Runway: "18/36", Direction: "36", OffsetAlong: 600, OffsetCross: -60},
			{ID: "RIL-X", Type: airport.FixtureRIL, Intersection: "18/36|09/27", Position: airport.LatLonPtr(37.5, 126.8)},
		},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	g, err := airport.NewGeometry(&cfg, logger.NewNop())
	if err != nil {
		t.Fatalf("NewGeometry: %v", err)
	}
	return g
}

func f(v float64) *float64 { return &v }

// taxiTarget places a surface target at a plane position
func taxiTarget(t *testing.T, g *airport.Geometry, hex string, p geo.Point, gs, track float64) adsb.ADSBTarget {
	t.Helper()
	ll, err := g.Projector.ToWGS84(p)
	if err != nil {
		t.Fatalf("ToWGS84: %v", err)
	}
	return adsb.ADSBTarget{
		Hex:     hex,
		Flight:  hex,
		AltBaro: adsb.Altitude{Ground: true, Reported: true},
		GS:      f(gs),
		Track:   f(track),
		Lat:     f(ll.Lat),
		Lon:     f(ll.Lon),
	}
}

type fakeSource struct {
	mu      sync.Mutex
	targets []adsb.ADSBTarget
	err     error
}

func (s *fakeSource) set(targets []adsb.ADSBTarget, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets, s.err = targets, err
}

func (s *fakeSource) FetchData(ctx context.Context) (*adsb.RawAircraftData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return &adsb.RawAircraftData{Aircraft: s.targets}, nil
}

type fakeBroadcaster struct {
	mu       sync.Mutex
	messages []*websocket.Message
}

func (b *fakeBroadcaster) Broadcast(m *websocket.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, m)
}

func (b *fakeBroadcaster) types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, m := range b.messages {
		out = append(out, m.Type)
	}
	return out
}

type fakeStore struct {
	transitions []sqlite.LightTransition
	conflicts   int
	health      int
}

func (s *fakeStore) RecordConflicts(c []rwsl.ConflictEvent, now time.Time) (int, error) {
	s.conflicts += len(c)
	return len(c), nil
}

func (s *fakeStore) RecordTransitions(tr []sqlite.LightTransition) error {
	s.transitions = append(s.transitions, tr...)
	return nil
}

func (s *fakeStore) RecordHealth(h rwsl.Health, now time.Time) error {
	s.health++
	return nil
}

type fakeRecorder struct {
	records []recorder.CycleRecord
	flushes int
}

func (r *fakeRecorder) Record(rec recorder.CycleRecord) error {
	r.records = append(r.records, rec)
	return nil
}

func (r *fakeRecorder) Flush() error {
	r.flushes++
	return nil
}

type harness struct {
	svc   *Service
	src   *fakeSource
	ws    *fakeBroadcaster
	store *fakeStore
	rec   *fakeRecorder
	geom  *airport.Geometry
	clock time.Time
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	g := testGeometry(t)
	h := &harness{
		src:   &fakeSource{},
		ws:    &fakeBroadcaster{},
		store: &fakeStore{},
		rec:   &fakeRecorder{},
		geom:  g,
		clock: t0,
	}
	engine := rwsl.NewEngine(g, rwsl.Config{}, logger.NewNop())
	cfg := Config{Interval: time.Second, MaxPositionAge: 10 * time.Second, HealthEvery: 2, FlushEvery: 2}
	opts = append([]Option{WithWebSocket(h.ws), WithEventStore(h.store), WithRecorder(h.rec)}, opts...)
	h.svc = NewService(engine, h.src, cfg, logger.NewNop(), opts...)
	h.svc.now = func() time.Time { return h.clock }
	return h
}

func (h *harness) crossing(t *testing.T) []adsb.ADSBTarget {
	return []adsb.ADSBTarget{
		taxiTarget(t, h.geom, "ABC001", geo.Point{X: 0, Y: 160}, 20, 180),
		taxiTarget(t, h.geom, "ABC002", geo.Point{X: -78, Y: 0}, 20, 90),
	}
}

func TestRunCycleFansOut(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.src.set(h.crossing(t), nil)
	out, err := h.svc.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	want := []string{websocket.MessageTypeState}
	for _, ev := range out.Conflicts {
		if ev.Severity.Rank() >= rwsl.SeverityHigh.Rank() {
			want = append(want, websocket.MessageTypeConflictAlert)
		}
	}
	if len(want) < 2 {
		t.Fatalf("expected a HIGH crossing conflict, got %+v", out.Conflicts)
	}
	if diff := cmp.Diff(want, h.ws.types()); diff != "" {
		t.Errorf("broadcasts mismatch (-want +got):\n%s", diff)
	}
	if len(h.store.transitions) != 1 || h.store.transitions[0].FixtureID != "RIL-X" || !h.store.transitions[0].Active {
		t.Errorf("transitions = %+v", h.store.transitions)
	}
	if len(h.rec.records) != 1 || len(h.rec.records[0].Snapshots) != 2 {
		t.Errorf("recorded %d cycles", len(h.rec.records))
	}

	// The same conflict next cycle is not alerted again, and nothing transitions
	h.clock = h.clock.Add(time.Second)
	if _, err := h.svc.RunCycle(ctx); err != nil {
		t.Fatal(err)
	}
	want = append(want, websocket.MessageTypeState)
	if diff := cmp.Diff(want, h.ws.types()); diff != "" {
		t.Errorf("broadcasts mismatch (-want +got):\n%s", diff)
	}
	if len(h.store.transitions) != 1 {
		t.Errorf("unexpected transitions: %+v", h.store.transitions)
	}
	if h.store.health != 1 || h.rec.flushes != 1 {
		t.Errorf("health samples %d, flushes %d after two cycles", h.store.health, h.rec.flushes)
	}

	// Traffic clears, the intersection light goes out
	h.clock = h.clock.Add(time.Second)
	h.src.set(nil, nil)
	if _, err := h.svc.RunCycle(ctx); err != nil {
		t.Fatal(err)
	}
	last := h.store.transitions[len(h.store.transitions)-1]
	if last.FixtureID != "RIL-X" || last.Active {
		t.Errorf("last transition = %+v", last)
	}
	if st := h.svc.Status(); st.Cycles != 3 || !st.FetchOK {
		t.Errorf("status = %+v", st)
	}
}

func TestFetchErrorSkipsCycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.src.set(h.crossing(t), nil)
	first, err := h.svc.RunCycle(ctx)
	if err != nil {
		t.Fatal(err)
	}

	h.clock = h.clock.Add(time.Second)
	h.src.set(nil, errors.New("connection refused"))
	if _, err := h.svc.RunCycle(ctx); err == nil {
		t.Fatal("expected fetch error")
	}

	latest, ok := h.svc.Latest()
	if !ok || !latest.Timestamp.Equal(first.Timestamp) {
		t.Errorf("latest output replaced after failed fetch: %v", latest.Timestamp)
	}
	if !latest.Lights["RIL-X"].Active {
		t.Error("last decision should stay in force")
	}
	st := h.svc.Status()
	if st.FetchOK || st.LastError != "connection refused" || st.Cycles != 1 {
		t.Errorf("status = %+v", st)
	}
	if len(h.rec.records) != 1 {
		t.Errorf("recorded %d cycles, want 1", len(h.rec.records))
	}
}

func TestLatestIsACopy(t *testing.T) {
	h := newHarness(t)
	h.src.set(h.crossing(t), nil)
	if _, err := h.svc.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}

	got, _ := h.svc.Latest()
	st := got.Lights["RIL-X"]
	st.Active = false
	got.Lights["RIL-X"] = st
	got.Conflicts[0].Severity = rwsl.SeverityLow

	again, _ := h.svc.Latest()
	if !again.Lights["RIL-X"].Active || again.Conflicts[0].Severity == rwsl.SeverityLow {
		t.Error("mutating a returned output changed the stored one")
	}
	if light, ok := h.svc.Light("RIL-X"); !ok || !light.Active {
		t.Errorf("Light(RIL-X) = %+v, %v", light, ok)
	}
	if _, ok := h.svc.Light("NOPE"); ok {
		t.Error("unknown fixture found")
	}
}

func TestSimulatedTrafficJoinsCycle(t *testing.T) {
	sim := simulation.NewService(logger.NewNop())
	h := newHarness(t, WithSimulator(sim))

	if _, err := sim.CreateAircraft(simulation.CreateRequest{Lat: 37.495, Lon: 126.8, Altitude: 0, Heading: 0, Speed: 15}); err != nil {
		t.Fatalf("CreateAircraft: %v", err)
	}
	out, err := h.svc.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if out.Health.TotalAircraft != 1 || len(out.Aircraft) != 1 {
		t.Errorf("health %+v, aircraft %+v", out.Health, out.Aircraft)
	}
}

func TestElevatedFieldAltitudes(t *testing.T) {
	h := newHarness(t)
	h.svc.cfg.FieldElevation = 5431

	rolling := taxiTarget(t, h.geom, "ROLL1", geo.Point{X: 0, Y: -200}, 100, 0)
	rolling.AltBaro = adsb.Altitude{Feet: 5431, Reported: true}
	final := taxiTarget(t, h.geom, "FINAL1", geo.Point{X: 0, Y: -4000}, 140, 0)
	final.AltBaro = adsb.Altitude{Feet: 6231, Reported: true}
	final.BaroRate = f(-700)
	h.src.set([]adsb.ADSBTarget{rolling, final}, nil)

	out, err := h.svc.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	got := make(map[string]rwsl.AircraftStatus)
	for _, a := range out.Aircraft {
		got[a.ID] = a
	}

	tests := []struct {
		id     string
		state  rwsl.AircraftState
		alt    float64
		runway string
	}{
		{"roll1", rwsl.StateLandingRoll, 0, "18/36"},
		{"final1", rwsl.StateApproach, 800, ""},
	}
	for _, tt := range tests {
		a, ok := got[tt.id]
		if !ok {
			t.Errorf("%s missing from output", tt.id)
			continue
		}
		if a.State != tt.state || a.Altitude != tt.alt || a.RunwayID != tt.runway {
			t.Errorf("%s: state %s alt %.0f runway %q, want %s %.0f %q",
				tt.id, a.State, a.Altitude, a.RunwayID, tt.state, tt.alt, tt.runway)
		}
	}
}

func TestStartStop(t *testing.T) {
	h := newHarness(t)
	h.svc.cfg.Interval = 10 * time.Millisecond
	if err := h.svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	h.svc.Stop()
	if st := h.svc.Status(); st.Cycles < 2 {
		t.Errorf("cycles = %d", st.Cycles)
	}
}

func TestParseFilters(t *testing.T) {
	f, err := ParseFilters(map[string]any{"runways": []any{"18/36"}, "min_severity": "high"})
	if err != nil {
		t.Fatal(err)
	}
	want := &websocket.ClientFilters{RunwayIDs: map[string]bool{"18/36": true}, MinSeverity: rwsl.SeverityHigh}
	if diff := cmp.Diff(want, f); diff != "" {
		t.Errorf("filters mismatch (-want +got):\n%s", diff)
	}

	for _, bad := range []map[string]any{
		{"runways": "18/36"},
		{"runways": []any{36}},
		{"min_severity": "loud"},
	} {
		if _, err := ParseFilters(bad); err == nil {
			t.Errorf("ParseFilters(%v) should fail", bad)
		}
	}
}
