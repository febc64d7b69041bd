// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package history keeps finished fitness runs in a local SQLite database so
// results can be compared across runs.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"agentfit/cli/internal/orchestrator"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("run not found")

// Entry is one stored run.
type Entry struct {
	RunID        string          `json:"runId"`
	StartedAt    time.Time       `json:"startedAt"`
	FinishedAt   time.Time       `json:"finishedAt"`
	Success      bool            `json:"success"`
	Suites       int             `json:"suites"`
	Checks       int             `json:"checks"`
	ChecksFailed int             `json:"checksFailed"`
	Issues       int             `json:"issues"`
	Report       string          `json:"report,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
}

// Store is a run history database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	// A single connection keeps :memory: databases alive across calls.
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	const query = `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		success INTEGER NOT NULL,
		suites INTEGER NOT NULL,
		checks INTEGER NOT NULL,
		checks_failed INTEGER NOT NULL,
		issues INTEGER NOT NULL,
		report TEXT NOT NULL DEFAULT '',
		result_json TEXT NOT NULL DEFAULT '{}'
	);
	CREATE INDEX IF NOT EXISTS runs_started_at ON runs(started_at);`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("migrate history: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Record stores a finished run. Recording the same run id again replaces it.
func (s *Store) Record(ctx context.Context, run orchestrator.Run) error {
	result, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}
	const query = `INSERT OR REPLACE INTO runs (
		run_id, started_at, finished_at, success, suites, checks, checks_failed, issues, report, result_json
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		run.RunID,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.FinishedAt.UTC().Format(time.RFC3339Nano),
		run.Summary.Success,
		run.Summary.Suites,
		run.Summary.Checks,
		run.Summary.ChecksFailed,
		run.Summary.Issues,
		run.Markdown,
		string(result),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// List returns the most recent runs first, without report and result bodies.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, started_at, finished_at, success, suites, checks, checks_failed, issues
		FROM runs
		ORDER BY started_at DESC, run_id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var (
			e              Entry
			started, ended string
		)
		if err := rows.Scan(&e.RunID, &started, &ended, &e.Success, &e.Suites, &e.Checks, &e.ChecksFailed, &e.Issues); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		e.StartedAt, e.FinishedAt = parseTime(started), parseTime(ended)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

// Get returns one run with its report and full result.
func (s *Store) Get(ctx context.Context, runID string) (Entry, error) {
	var (
		e              Entry
		started, ended string
		result         string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, started_at, finished_at, success, suites, checks, checks_failed, issues, report, result_json
		FROM runs
		WHERE run_id = ?`, runID).
		Scan(&e.RunID, &started, &ended, &e.Success, &e.Suites, &e.Checks, &e.ChecksFailed, &e.Issues, &e.Report, &result)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get run: %w", err)
	}
	e.StartedAt, e.FinishedAt = parseTime(started), parseTime(ended)
	e.Result = json.RawMessage(result)
	return e, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
