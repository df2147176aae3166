package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yegors/co-rwsl/pkg/logger"
	_ "modernc.org/sqlite"
)

const (
	dbPrefix   = "co-rwsl-"
	dbSuffix   = ".db"
	dateLayout = "2006-01-02"
)

// DailyPath returns the database file used for the given day
func DailyPath(basePath string, day time.Time) string {
	return filepath.Join(basePath, dbPrefix+day.Format(dateLayout)+dbSuffix)
}

// Open opens a SQLite database with the pragmas used throughout the service
func Open(dbPath string) (*sql.DB, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []struct{ stmt, what string }{
		{"PRAGMA journal_mode=WAL", "journal mode"},
		{"PRAGMA synchronous=NORMAL", "synchronous mode"},
		{"PRAGMA busy_timeout=5000", "busy timeout"},
		{"PRAGMA cache_size=10000", "cache size"},
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p.stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set %s: %w", p.what, err)
		}
	}
	return db, nil
}

// PruneDaily deletes daily databases older than retentionDays and returns the removed paths
func PruneDaily(basePath string, retentionDays int, now time.Time, log *logger.Logger) ([]string, error) {
	if retentionDays <= 0 {
		return nil, nil
	}
	matches, err := filepath.Glob(filepath.Join(basePath, dbPrefix+"*"+dbSuffix))
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}

	cutoff := now.AddDate(0, 0, -retentionDays).Format(dateLayout)
	var removed []string
	for _, path := range matches {
		day := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), dbPrefix), dbSuffix)
		if _, err := time.Parse(dateLayout, day); err != nil || day >= cutoff {
			continue
		}
		// WAL side files go with the database
		for _, p := range []string{path, path + "-wal", path + "-shm"} {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				return removed, fmt.Errorf("failed to remove %s: %w", p, err)
			}
		}
		log.Info("Removed expired database", logger.String("path", path))
		removed = append(removed, path)
	}
	return removed, nil
}
