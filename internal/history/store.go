// Package history persists run records to SQLite so past sessions can be
// reviewed after the loose image and video files have been moved away.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/meterblink/meterblink/internal/log"
	"github.com/meterblink/meterblink/pkg/attempt"
)

const (
	dirPermissions = 0o750

	connectTimeout = 5 * time.Second
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  TIMESTAMP NOT NULL,
	ended_at    TIMESTAMP,
	first_code  TEXT NOT NULL,
	last_code   TEXT NOT NULL,
	last_sent   TEXT NOT NULL DEFAULT '',
	codes_sent  INTEGER NOT NULL DEFAULT 0,
	stop_reason TEXT NOT NULL DEFAULT '',
	video_path  TEXT NOT NULL DEFAULT '',
	images      INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);
`

// Run is one persisted run record.
type Run struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	FirstCode  string     `json:"first_code"`
	LastCode   string     `json:"last_code"`
	LastSent   string     `json:"last_sent"`
	CodesSent  int        `json:"codes_sent"`
	StopReason string     `json:"stop_reason"`
	VideoPath  string     `json:"video_path"`
	Images     int        `json:"images"`
}

// Store wraps the SQLite connection. It also implements
// attempt.Notifier, recording runs as the orchestrator reports them.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the history database.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	// WAL keeps reads (the /runs endpoint) from blocking on the
	// orchestrator's writes.
	connStr := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("verifying history database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying history schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing history database: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// RunStarted inserts a new run record.
func (s *Store) RunStarted(r attempt.Run) {
	_, err := s.db.Exec(
		`INSERT INTO runs (id, started_at, first_code, last_code) VALUES (?, ?, ?, ?)`,
		r.ID, r.StartedAt.UTC(), r.FirstCode, r.LastCode,
	)
	if err != nil {
		log.Error("recording run start", "run_id", r.ID, "error", err)
	}
}

// CodeSent advances the run's last-sent marker. One update per code,
// roughly every 13 seconds; cheap enough to keep synchronous.
func (s *Store) CodeSent(runID, code string) {
	_, err := s.db.Exec(
		`UPDATE runs SET last_sent = ?, codes_sent = codes_sent + 1 WHERE id = ?`,
		code, runID,
	)
	if err != nil {
		log.Error("recording code", "run_id", runID, "code", code, "error", err)
	}
}

// RunFinished completes the run record.
func (s *Store) RunFinished(r attempt.Run) {
	_, err := s.db.Exec(
		`UPDATE runs SET ended_at = ?, last_sent = ?, codes_sent = ?, stop_reason = ?, video_path = ?, images = ? WHERE id = ?`,
		r.EndedAt.UTC(), r.LastSent, r.CodesSent, r.StopReason, r.VideoPath, r.Images, r.ID,
	)
	if err != nil {
		log.Error("recording run end", "run_id", r.ID, "error", err)
	}
}

// Recent returns the most recent runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, ended_at, first_code, last_code, last_sent, codes_sent, stop_reason, video_path, images
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var ended sql.NullTime
		if err := rows.Scan(&r.ID, &r.StartedAt, &ended, &r.FirstCode, &r.LastCode,
			&r.LastSent, &r.CodesSent, &r.StopReason, &r.VideoPath, &r.Images); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		if ended.Valid {
			t := ended.Time
			r.EndedAt = &t
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}
