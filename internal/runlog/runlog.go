// Package runlog archives completed suite runs in a local SQLite database.
// The JSON history store keeps a bounded per-test window; the archive keeps
// every run so regressions can be traced across builds long after the
// history window has rolled over. Archive failures are persistence errors:
// callers log them and continue, a run never fails because its record could
// not be written.
package runlog

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/sandtrap-sec/sandtrap/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	started_at   INTEGER NOT NULL,
	finished_at  INTEGER NOT NULL,
	mode         TEXT NOT NULL,
	verdict      TEXT NOT NULL,
	total        INTEGER NOT NULL,
	passed       INTEGER NOT NULL,
	failed       INTEGER NOT NULL,
	regressions  INTEGER NOT NULL,
	critical     INTEGER NOT NULL,
	partial      INTEGER NOT NULL,
	version      TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS run_regressions (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	test_id    TEXT NOT NULL,
	type       TEXT NOT NULL,
	severity   TEXT NOT NULL,
	confidence REAL NOT NULL,
	detail     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_run_regressions_run ON run_regressions(run_id);
`

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// RunSummary is one archived run.
type RunSummary struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  time.Time
	Mode        string
	Verdict     string
	Total       int
	Passed      int
	Failed      int
	Regressions int
	Critical    int
	Partial     bool
	Version     string
}

// RegressionRow is one regression recorded under a run.
type RegressionRow struct {
	TestID     string
	Type       string
	Severity   string
	Confidence float64
	Detail     string
}

// Store is the SQLite-backed run archive.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the archive at path and applies the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, &store.PersistenceError{Op: "load", Path: path, Err: err}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &store.PersistenceError{Op: "load", Path: path, Err: err}
	}
	// The archive is written by one process at a time; a single connection
	// sidesteps SQLITE_BUSY between the insert statements of one run.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, &store.PersistenceError{Op: "load", Path: path, Err: err}
	}
	return &Store{db: db, path: path}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Archive writes a run summary and its regression rows in one transaction.
func (s *Store) Archive(ctx context.Context, run RunSummary, regressions []RegressionRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &store.PersistenceError{Op: "save", Path: s.path, Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	partial := 0
	if run.Partial {
		partial = 1
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, finished_at, mode, verdict, total, passed, failed, regressions, critical, partial, version)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(), run.Mode, run.Verdict,
		run.Total, run.Passed, run.Failed, run.Regressions, run.Critical, partial, run.Version)
	if err != nil {
		return &store.PersistenceError{Op: "save", Path: s.path, Err: err}
	}

	for _, r := range regressions {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_regressions (run_id, test_id, type, severity, confidence, detail)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			run.ID, r.TestID, r.Type, r.Severity, r.Confidence, r.Detail)
		if err != nil {
			return &store.PersistenceError{Op: "save", Path: s.path, Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &store.PersistenceError{Op: "save", Path: s.path, Err: err}
	}
	return nil
}

// List returns the most recent runs, newest first, up to limit.
func (s *Store) List(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, mode, verdict, total, passed, failed, regressions, critical, partial, version
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, &store.PersistenceError{Op: "load", Path: s.path, Err: err}
	}
	defer func() { _ = rows.Close() }()

	var out []RunSummary
	for rows.Next() {
		var run RunSummary
		var started, finished int64
		var partial int
		if err := rows.Scan(&run.ID, &started, &finished, &run.Mode, &run.Verdict,
			&run.Total, &run.Passed, &run.Failed, &run.Regressions, &run.Critical,
			&partial, &run.Version); err != nil {
			return nil, &store.PersistenceError{Op: "load", Path: s.path, Err: err}
		}
		run.StartedAt = time.UnixMilli(started)
		run.FinishedAt = time.UnixMilli(finished)
		run.Partial = partial != 0
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, &store.PersistenceError{Op: "load", Path: s.path, Err: err}
	}
	return out, nil
}

// Regressions returns the regression rows archived under a run.
func (s *Store) Regressions(ctx context.Context, runID string) ([]RegressionRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT test_id, type, severity, confidence, detail
		 FROM run_regressions WHERE run_id = ? ORDER BY test_id`, runID)
	if err != nil {
		return nil, &store.PersistenceError{Op: "load", Path: s.path, Err: err}
	}
	defer func() { _ = rows.Close() }()

	var out []RegressionRow
	for rows.Next() {
		var r RegressionRow
		if err := rows.Scan(&r.TestID, &r.Type, &r.Severity, &r.Confidence, &r.Detail); err != nil {
			return nil, &store.PersistenceError{Op: "load", Path: s.path, Err: err}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &store.PersistenceError{Op: "load", Path: s.path, Err: err}
	}
	return out, nil
}

// FailStreak returns how many of the most recent archived runs, counted
// back from the newest, ended with a FAIL verdict.
func (s *Store) FailStreak(ctx context.Context, window int) (int, error) {
	runs, err := s.List(ctx, window)
	if err != nil {
		return 0, err
	}
	streak := 0
	for _, run := range runs {
		if run.Verdict != "FAIL" {
			break
		}
		streak++
	}
	return streak, nil
}
