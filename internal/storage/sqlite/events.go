package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/yegors/co-rwsl/internal/rwsl"
	"github.com/yegors/co-rwsl/pkg/logger"
)

// ConflictRecord is one persisted conflict episode. Consecutive cycles reporting the
// same conflict extend the episode instead of adding rows.
type ConflictRecord struct {
	ID                int64     `json:"id"`
	ConflictID        string    `json:"conflict_id"`
	Type              string    `json:"type"`
	Severity          string    `json:"severity"`
	MaxSeverity       string    `json:"max_severity"`
	AircraftIDs       []string  `json:"aircraft_ids"`
	RunwayIDs         []string  `json:"runway_ids"`
	IntersectionID    string    `json:"intersection_id,omitempty"`
	RecommendedAction string    `json:"recommended_action"`
	MinSeparation     float64   `json:"min_separation"`
	FirstSeen         time.Time `json:"first_seen"`
	LastSeen          time.Time `json:"last_seen"`
	Cycles            int       `json:"cycles"`
}

// LightTransition is one change of a fixture between lit and off
type LightTransition struct {
	ID        int64     `json:"id"`
	FixtureID string    `json:"fixture_id"`
	Type      string    `json:"type"`
	Active    bool      `json:"active"`
	Severity  string    `json:"severity,omitempty"`
	Reason    string    `json:"reason"`
	Time      time.Time `json:"time"`
}

// HealthSample is a periodic snapshot of engine health
type HealthSample struct {
	ID            int64     `json:"id"`
	Time          time.Time `json:"time"`
	Status        string    `json:"status"`
	Score         float64   `json:"score"`
	ProcessingMs  float64   `json:"processing_ms"`
	ValidAircraft int       `json:"valid_aircraft"`
	TotalAircraft int       `json:"total_aircraft"`
	FailSafe      bool      `json:"fail_safe"`
}

type activeConflict struct {
	rowID  int64
	rank   int
	minSep float64
}

// EventStorage persists conflicts, light transitions and health samples
type EventStorage struct {
	db     *sql.DB
	logger *logger.Logger

	mu     sync.Mutex
	active map[string]activeConflict // conflicts seen in the previous cycle
}

// NewEventStorage creates the event tables on db
func NewEventStorage(db *sql.DB, log *logger.Logger) (*EventStorage, error) {
	storageLogger := log.Named("sqlite")
	if err := initDatabase(db, storageLogger); err != nil {
		return nil, err
	}
	return &EventStorage{
		db:     db,
		logger: storageLogger,
		active: make(map[string]activeConflict),
	}, nil
}

// Close closes the database connection
func (s *EventStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// initDatabase initializes the database schema
func initDatabase(db *sql.DB, log *logger.Logger) error {
	log.Info("Initializing database schema")

	statements := []struct{ stmt, what string }{
		{`
		CREATE TABLE IF NOT EXISTS conflict_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conflict_id TEXT NOT NULL,
			type TEXT NOT NULL,
			severity TEXT NOT NULL,
			max_severity TEXT NOT NULL,
			aircraft_ids TEXT NOT NULL,
			runway_ids TEXT NOT NULL,
			intersection_id TEXT,
			recommended_action TEXT,
			min_separation REAL,
			first_seen INTEGER NOT NULL,
			last_seen INTEGER NOT NULL,
			cycles INTEGER NOT NULL DEFAULT 1
		)`, "conflict_events table"},
		{`
		CREATE TABLE IF NOT EXISTS light_transitions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			fixture_id TEXT NOT NULL,
			type TEXT NOT NULL,
			active INTEGER NOT NULL,
			severity TEXT,
			reason TEXT,
			time INTEGER NOT NULL
		)`, "light_transitions table"},
		{`
		CREATE TABLE IF NOT EXISTS health_samples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			time INTEGER NOT NULL,
			status TEXT NOT NULL,
			score REAL NOT NULL,
			processing_ms REAL NOT NULL,
			valid_aircraft INTEGER NOT NULL,
			total_aircraft INTEGER NOT NULL,
			fail_safe INTEGER NOT NULL
		)`, "health_samples table"},
		{`CREATE INDEX IF NOT EXISTS idx_conflict_events_last_seen ON conflict_events(last_seen)`, "index on conflict_events.last_seen"},
		{`CREATE INDEX IF NOT EXISTS idx_light_transitions_fixture ON light_transitions(fixture_id, time)`, "index on light_transitions.fixture_id"},
		{`CREATE INDEX IF NOT EXISTS idx_health_samples_time ON health_samples(time)`, "index on health_samples.time"},
	}
	for _, s := range statements {
		if _, err := db.Exec(s.stmt); err != nil {
			return fmt.Errorf("failed to create %s: %w", s.what, err)
		}
	}
	return nil
}

// RecordConflicts stores one cycle's conflicts and returns how many new episodes began
func (s *EventStorage) RecordConflicts(conflicts []rwsl.ConflictEvent, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ts := now.UnixMilli()
	next := make(map[string]activeConflict, len(conflicts))
	inserted := 0

	for _, ev := range conflicts {
		if _, dup := next[ev.ID]; dup {
			continue
		}
		prev, ongoing := s.active[ev.ID]
		if ongoing {
			cur := prev
			if r := ev.Severity.Rank(); r > cur.rank {
				cur.rank = r
			}
			if ev.EstimatedSeparation < cur.minSep {
				cur.minSep = ev.EstimatedSeparation
			}
			_, err := tx.Exec(`
				UPDATE conflict_events
				SET severity = ?, max_severity = ?, recommended_action = ?, min_separation = ?,
					last_seen = ?, cycles = cycles + 1
				WHERE id = ?`,
				string(ev.Severity), string(severityOfRank(cur.rank)), ev.RecommendedAction, cur.minSep, ts, cur.rowID)
			if err != nil {
				return 0, fmt.Errorf("failed to update conflict %s: %w", ev.ID, err)
			}
			next[ev.ID] = cur
			continue
		}

		res, err := tx.Exec(`
			INSERT INTO conflict_events (
				conflict_id, type, severity, max_severity, aircraft_ids, runway_ids, intersection_id,
				recommended_action, min_separation, first_seen, last_seen, cycles
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			ev.ID, string(ev.Type), string(ev.Severity), string(ev.Severity),
			strings.Join(ev.AircraftIDs, ","), strings.Join(ev.RunwayIDs, ","), ev.IntersectionID,
			ev.RecommendedAction, ev.EstimatedSeparation, ts, ts)
		if err != nil {
			return 0, fmt.Errorf("failed to insert conflict %s: %w", ev.ID, err)
		}
		rowID, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("failed to get conflict row id: %w", err)
		}
		next[ev.ID] = activeConflict{rowID: rowID, rank: ev.Severity.Rank(), minSep: ev.EstimatedSeparation}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit conflicts: %w", err)
	}
	s.active = next

	if inserted > 0 {
		s.logger.Debug("Stored new conflict episodes", logger.Int("count", inserted))
	}
	return inserted, nil
}

// RecordTransitions stores light changes
func (s *EventStorage) RecordTransitions(transitions []LightTransition) error {
	if len(transitions) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, t := range transitions {
		_, err := tx.Exec(`
			INSERT INTO light_transitions (fixture_id, type, active, severity, reason, time)
			VALUES (?, ?, ?, ?, ?, ?)`,
			t.FixtureID, t.Type, boolToInt(t.Active), t.Severity, t.Reason, t.Time.UnixMilli())
		if err != nil {
			return fmt.Errorf("failed to insert transition for %s: %w", t.FixtureID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transitions: %w", err)
	}
	return nil
}

// RecordHealth stores one health sample
func (s *EventStorage) RecordHealth(h rwsl.Health, now time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO health_samples (time, status, score, processing_ms, valid_aircraft, total_aircraft, fail_safe)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		now.UnixMilli(), string(h.Status), h.Score, h.ProcessingMs, h.ValidAircraft, h.TotalAircraft, boolToInt(h.FailSafe))
	if err != nil {
		return fmt.Errorf("failed to insert health sample: %w", err)
	}
	return nil
}

// RecentConflicts returns conflict episodes last seen at or after since, newest first
func (s *EventStorage) RecentConflicts(limit int, since time.Time) ([]ConflictRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT id, conflict_id, type, severity, max_severity, aircraft_ids, runway_ids,
			COALESCE(intersection_id, ''), COALESCE(recommended_action, ''), COALESCE(min_separation, 0),
			first_seen, last_seen, cycles
		FROM conflict_events
		WHERE last_seen >= ?
		ORDER BY last_seen DESC, id DESC
		LIMIT ?`, since.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query conflicts: %w", err)
	}
	defer rows.Close()

	records := []ConflictRecord{}
	for rows.Next() {
		var r ConflictRecord
		var aircraft, runways string
		var first, last int64
		if err := rows.Scan(&r.ID, &r.ConflictID, &r.Type, &r.Severity, &r.MaxSeverity, &aircraft, &runways,
			&r.IntersectionID, &r.RecommendedAction, &r.MinSeparation, &first, &last, &r.Cycles); err != nil {
			return nil, fmt.Errorf("failed to scan conflict: %w", err)
		}
		r.AircraftIDs = splitList(aircraft)
		r.RunwayIDs = splitList(runways)
		r.FirstSeen = time.UnixMilli(first).UTC()
		r.LastSeen = time.UnixMilli(last).UTC()
		records = append(records, r)
	}
	return records, rows.Err()
}

// TransitionsByFixture returns the latest transitions of one fixture, newest first
func (s *EventStorage) TransitionsByFixture(fixtureID string, limit int) ([]LightTransition, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT id, fixture_id, type, active, COALESCE(severity, ''), COALESCE(reason, ''), time
		FROM light_transitions
		WHERE fixture_id = ?
		ORDER BY time DESC, id DESC
		LIMIT ?`, fixtureID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer rows.Close()

	transitions := []LightTransition{}
	for rows.Next() {
		var t LightTransition
		var active int
		var ts int64
		if err := rows.Scan(&t.ID, &t.FixtureID, &t.Type, &active, &t.Severity, &t.Reason, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		t.Active = active != 0
		t.Time = time.UnixMilli(ts).UTC()
		transitions = append(transitions, t)
	}
	return transitions, rows.Err()
}

// LatestHealth returns the newest health samples, newest first
func (s *EventStorage) LatestHealth(limit int) ([]HealthSample, error) {
	if limit <= 0 {
		limit = 60
	}
	rows, err := s.db.Query(`
		SELECT id, time, status, score, processing_ms, valid_aircraft, total_aircraft, fail_safe
		FROM health_samples
		ORDER BY time DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query health samples: %w", err)
	}
	defer rows.Close()

	samples := []HealthSample{}
	for rows.Next() {
		var h HealthSample
		var ts int64
		var failSafe int
		if err := rows.Scan(&h.ID, &ts, &h.Status, &h.Score, &h.ProcessingMs, &h.ValidAircraft, &h.TotalAircraft, &failSafe); err != nil {
			return nil, fmt.Errorf("failed to scan health sample: %w", err)
		}
		h.Time = time.UnixMilli(ts).UTC()
		h.FailSafe = failSafe != 0
		samples = append(samples, h)
	}
	return samples, rows.Err()
}

func severityOfRank(rank int) rwsl.Severity {
	for _, sev := range []rwsl.Severity{rwsl.SeverityLow, rwsl.SeverityMedium, rwsl.SeverityHigh, rwsl.SeverityCritical, rwsl.SeverityEmergency} {
		if sev.Rank() == rank {
			return sev
		}
	}
	return rwsl.SeverityLow
}

func splitList(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
