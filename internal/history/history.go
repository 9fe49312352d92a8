// Package history keeps an optional local log of past migration runs in a
// sqlite file, so operators can see what was attempted on a machine without
// digging through report files.
package history

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // cgo-free sqlite driver
)

const busyTimeoutMS = 5000

// Run is one recorded migration attempt.
type Run struct {
	ID             int
	StartedAt      time.Time
	Duration       time.Duration
	SourceVersion  string
	TargetVersion  string
	Success        bool
	ScriptsApplied []string
	Error          string
}

// Store is a sqlite-backed run log.
type Store struct {
	db *sql.DB
}

// Open opens (and initializes) the history store at the given path.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", path, busyTimeoutMS)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS migration_runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  started_at TEXT NOT NULL,
  duration_ms INTEGER NOT NULL,
  source_version TEXT NOT NULL,
  target_version TEXT NOT NULL,
  success INTEGER NOT NULL,
  scripts_applied TEXT NOT NULL,
  error TEXT NOT NULL DEFAULT ''
)`)
	if err != nil {
		return fmt.Errorf("ensure history schema: %w", err)
	}
	return nil
}

// RecordRun appends one run to the log.
func (s *Store) RecordRun(r Run) error {
	_, err := s.db.Exec(
		`INSERT INTO migration_runs (started_at, duration_ms, source_version, target_version, success, scripts_applied, error)
 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.StartedAt.UTC().Format(time.RFC3339Nano),
		r.Duration.Milliseconds(),
		r.SourceVersion,
		r.TargetVersion,
		boolToInt(r.Success),
		strings.Join(r.ScriptsApplied, ","),
		r.Error,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// ListRuns returns all recorded runs, newest first.
func (s *Store) ListRuns() ([]Run, error) {
	rows, err := s.db.Query(
		`SELECT id, started_at, duration_ms, source_version, target_version, success, scripts_applied, error
   FROM migration_runs ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Run
	for rows.Next() {
		var (
			r          Run
			startedAt  string
			durationMS int64
			success    int
			applied    string
		)
		if err := rows.Scan(&r.ID, &startedAt, &durationMS, &r.SourceVersion, &r.TargetVersion, &success, &applied, &r.Error); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.Success = success != 0
		if applied != "" {
			r.ScriptsApplied = strings.Split(applied, ",")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
