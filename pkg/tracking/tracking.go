// Package tracking is a small experiment store: named experiments hold runs,
// and runs hold params, metrics and text artifacts. It backs both the service
// monitor and the benchmark harness.
package tracking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Run states.
const (
	StatusRunning  = "RUNNING"
	StatusFinished = "FINISHED"
	StatusFailed   = "FAILED"
)

// ErrRunNotFound is returned for unknown run IDs.
var ErrRunNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS experiments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	experiment_id INTEGER NOT NULL REFERENCES experiments(id),
	name TEXT NOT NULL,
	status TEXT NOT NULL,
	start_time INTEGER NOT NULL,
	end_time INTEGER
);
CREATE INDEX IF NOT EXISTS idx_runs_experiment ON runs(experiment_id);
CREATE TABLE IF NOT EXISTS params (
	run_id TEXT NOT NULL REFERENCES runs(id),
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (run_id, key)
);
CREATE TABLE IF NOT EXISTS metrics (
	run_id TEXT NOT NULL REFERENCES runs(id),
	key TEXT NOT NULL,
	value REAL NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (run_id, key)
);
CREATE TABLE IF NOT EXISTS artifacts (
	run_id TEXT NOT NULL REFERENCES runs(id),
	path TEXT NOT NULL,
	content TEXT NOT NULL,
	PRIMARY KEY (run_id, path)
);
`

// Store is safe for concurrent use; SQLite serializes writers on one connection.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the store at dsn, e.g. "file:mlruns.db" or
// "file::memory:?cache=shared".
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open tracking db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init tracking schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) experimentID(ctx context.Context, name string) (int64, error) {
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO experiments (name, created_at) VALUES (?, ?)`, name, s.now().UnixMilli()); err != nil {
		return 0, fmt.Errorf("create experiment %q: %w", name, err)
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM experiments WHERE name = ?`, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("lookup experiment %q: %w", name, err)
	}
	return id, nil
}

// StartRun creates a running run in experiment, creating the experiment if needed.
func (s *Store) StartRun(ctx context.Context, experiment, name string) (*Run, error) {
	expID, err := s.experimentID(ctx, experiment)
	if err != nil {
		return nil, err
	}
	r := &Run{ID: uuid.NewString(), Name: name, Experiment: experiment, store: s}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, experiment_id, name, status, start_time) VALUES (?, ?, ?, ?, ?)`,
		r.ID, expID, name, StatusRunning, s.now().UnixMilli()); err != nil {
		return nil, fmt.Errorf("start run %q: %w", name, err)
	}
	return r, nil
}

// Run is one tracked execution.
type Run struct {
	ID         string
	Name       string
	Experiment string

	store *Store
}

func (r *Run) LogParam(ctx context.Context, key string, value any) error {
	_, err := r.store.db.ExecContext(ctx,
		`INSERT INTO params (run_id, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(run_id, key) DO UPDATE SET value = excluded.value`,
		r.ID, key, fmt.Sprint(value))
	if err != nil {
		return fmt.Errorf("log param %s: %w", key, err)
	}
	return nil
}

func (r *Run) LogParams(ctx context.Context, params map[string]any) error {
	for _, k := range sortedKeys(params) {
		if err := r.LogParam(ctx, k, params[k]); err != nil {
			return err
		}
	}
	return nil
}

// LogMetric records value under key; the latest value wins.
func (r *Run) LogMetric(ctx context.Context, key string, value float64) error {
	_, err := r.store.db.ExecContext(ctx,
		`INSERT INTO metrics (run_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(run_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		r.ID, key, value, r.store.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("log metric %s: %w", key, err)
	}
	return nil
}

func (r *Run) LogMetrics(ctx context.Context, metrics map[string]float64) error {
	for _, k := range sortedKeys(metrics) {
		if err := r.LogMetric(ctx, k, metrics[k]); err != nil {
			return err
		}
	}
	return nil
}

// LogText stores a text artifact at path, replacing any previous content.
func (r *Run) LogText(ctx context.Context, path, content string) error {
	_, err := r.store.db.ExecContext(ctx,
		`INSERT INTO artifacts (run_id, path, content) VALUES (?, ?, ?)
		 ON CONFLICT(run_id, path) DO UPDATE SET content = excluded.content`,
		r.ID, path, content)
	if err != nil {
		return fmt.Errorf("log artifact %s: %w", path, err)
	}
	return nil
}

// End closes the run with status.
func (r *Run) End(ctx context.Context, status string) error {
	res, err := r.store.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, end_time = ? WHERE id = ?`, status, r.store.now().UnixMilli(), r.ID)
	if err != nil {
		return fmt.Errorf("end run %s: %w", r.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
