package sqlite

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/yegors/co-rwsl/internal/rwsl"
	"github.com/yegors/co-rwsl/pkg/logger"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func newTestStorage(t *testing.T) *EventStorage {
	t.Helper()
	db, err := Open(DailyPath(t.TempDir(), t0))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s, err := NewEventStorage(db, logger.NewNop())
	if err != nil {
		t.Fatalf("NewEventStorage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func crossing(sev rwsl.Severity, sep float64) rwsl.ConflictEvent {
	return rwsl.ConflictEvent{
		ID:                  "CROSSING_TRAFFIC:18/36|09/27:NORTH,WEST",
		Type:                rwsl.ConflictCrossing,
		Severity:            sev,
		AircraftIDs:         []string{"WEST", "NORTH"},
		RunwayIDs:           []string{"18/36", "09/27"},
		IntersectionID:      "18/36|09/27",
		RecommendedAction:   "Hold NORTH or expedite WEST",
		EstimatedSeparation: sep,
	}
}

func TestConflictEpisodes(t *testing.T) {
	s := newTestStorage(t)

	n, err := s.RecordConflicts([]rwsl.ConflictEvent{crossing(rwsl.SeverityMedium, 150)}, t0)
	if err != nil || n != 1 {
		t.Fatalf("first cycle: n=%d err=%v", n, err)
	}
	n, err = s.RecordConflicts([]rwsl.ConflictEvent{crossing(rwsl.SeverityCritical, 60)}, t0.Add(time.Second))
	if err != nil || n != 0 {
		t.Fatalf("second cycle: n=%d err=%v", n, err)
	}
	n, err = s.RecordConflicts([]rwsl.ConflictEvent{crossing(rwsl.SeverityHigh, 90)}, t0.Add(2*time.Second))
	if err != nil || n != 0 {
		t.Fatalf("third cycle: n=%d err=%v", n, err)
	}

	records, err := s.RecentConflicts(10, t0)
	if err != nil {
		t.Fatalf("RecentConflicts: %v", err)
	}
	want := []ConflictRecord{{
		ID:                1,
		ConflictID:        "CROSSING_TRAFFIC:18/36|09/27:NORTH,WEST",
		Type:              "CROSSING_TRAFFIC",
		Severity:          "HIGH",
		MaxSeverity:       "CRITICAL",
		AircraftIDs:       []string{"WEST", "NORTH"},
		RunwayIDs:         []string{"18/36", "09/27"},
		IntersectionID:    "18/36|09/27",
		RecommendedAction: "Hold NORTH or expedite WEST",
		MinSeparation:     60,
		FirstSeen:         t0,
		LastSeen:          t0.Add(2 * time.Second),
		Cycles:            3,
	}}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}

	// A gap ends the episode; the next sighting starts a new one
	if _, err := s.RecordConflicts(nil, t0.Add(3*time.Second)); err != nil {
		t.Fatal(err)
	}
	n, err = s.RecordConflicts([]rwsl.ConflictEvent{crossing(rwsl.SeverityMedium, 150)}, t0.Add(4*time.Second))
	if err != nil || n != 1 {
		t.Fatalf("after gap: n=%d err=%v", n, err)
	}
	records, err = s.RecentConflicts(10, t0.Add(4*time.Second))
	if err != nil || len(records) != 1 || records[0].Cycles != 1 {
		t.Errorf("since filter: %+v, %v", records, err)
	}
}

func TestTransitionsAndHealth(t *testing.T) {
	s := newTestStorage(t)

	err := s.RecordTransitions([]LightTransition{
		{FixtureID: "REL-36A", Type: "REL", Active: true, Severity: "HIGH", Reason: "Departing aircraft DEP1", Time: t0},
		{FixtureID: "THL-36", Type: "THL", Active: true, Severity: "CRITICAL", Reason: "Hold", Time: t0},
		{FixtureID: "REL-36A", Type: "REL", Active: false, Reason: "No conflicting traffic", Time: t0.Add(5 * time.Second)},
	})
	if err != nil {
		t.Fatalf("RecordTransitions: %v", err)
	}
	got, err := s.TransitionsByFixture("REL-36A", 10)
	if err != nil {
		t.Fatalf("TransitionsByFixture: %v", err)
	}
	if len(got) != 2 || got[0].Active || !got[1].Active || !got[0].Time.Equal(t0.Add(5*time.Second)) {
		t.Errorf("transitions = %+v", got)
	}

	for i := 0; i < 3; i++ {
		h := rwsl.Health{Status: rwsl.StatusOnline, Score: 100 - float64(i), ProcessingMs: 1.5, ValidAircraft: 4, TotalAircraft: 5}
		if err := s.RecordHealth(h, t0.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("RecordHealth: %v", err)
		}
	}
	samples, err := s.LatestHealth(2)
	if err != nil {
		t.Fatalf("LatestHealth: %v", err)
	}
	if len(samples) != 2 || samples[0].Score != 98 || samples[0].Status != "ONLINE" || samples[0].TotalAircraft != 5 {
		t.Errorf("samples = %+v", samples)
	}
}

func TestPruneDaily(t *testing.T) {
	dir := t.TempDir()
	for _, day := range []string{"2026-03-01", "2026-03-10", "2026-03-14"} {
		if err := os.WriteFile(filepath.Join(dir, "co-rwsl-"+day+".db"), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "co-rwsl-notes.db"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	removed, err := PruneDaily(dir, 7, t0, logger.NewNop())
	if err != nil {
		t.Fatalf("PruneDaily: %v", err)
	}
	if len(removed) != 1 || filepath.Base(removed[0]) != "co-rwsl-2026-03-01.db" {
		t.Errorf("removed = %v", removed)
	}
	if _, err := os.Stat(filepath.Join(dir, "co-rwsl-notes.db")); err != nil {
		t.Errorf("unrelated file removed: %v", err)
	}
}
