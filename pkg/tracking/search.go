package tracking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RunInfo is a run with its params and metrics loaded.
type RunInfo struct {
	ID        string
	Name      string
	Status    string
	StartTime time.Time
	EndTime   time.Time
	Params    map[string]string
	Metrics   map[string]float64
}

// SearchRuns returns every run of experiment, newest first. An unknown
// experiment yields no runs.
func (s *Store) SearchRuns(ctx context.Context, experiment string) ([]RunInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.name, r.status, r.start_time, r.end_time
		FROM runs r JOIN experiments e ON e.id = r.experiment_id
		WHERE e.name = ?
		ORDER BY r.start_time DESC, r.rowid DESC`, experiment)
	if err != nil {
		return nil, fmt.Errorf("search runs: %w", err)
	}
	var runs []RunInfo
	for rows.Next() {
		var (
			ri    RunInfo
			start int64
			end   sql.NullInt64
		)
		if err := rows.Scan(&ri.ID, &ri.Name, &ri.Status, &start, &end); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan run: %w", err)
		}
		ri.StartTime = time.UnixMilli(start)
		if end.Valid {
			ri.EndTime = time.UnixMilli(end.Int64)
		}
		runs = append(runs, ri)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range runs {
		if runs[i].Params, err = s.params(ctx, runs[i].ID); err != nil {
			return nil, err
		}
		if runs[i].Metrics, err = s.metrics(ctx, runs[i].ID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (s *Store) params(ctx context.Context, runID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM params WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("load params: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (s *Store) metrics(ctx context.Context, runID string) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM metrics WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("load metrics: %w", err)
	}
	defer rows.Close()
	out := make(map[string]float64)
	for rows.Next() {
		var k string
		var v float64
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// Artifact returns a stored text artifact.
func (s *Store) Artifact(ctx context.Context, runID, path string) (string, error) {
	var content string
	err := s.db.QueryRowContext(ctx,
		`SELECT content FROM artifacts WHERE run_id = ? AND path = ?`, runID, path).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("artifact %s of run %s: %w", path, runID, ErrRunNotFound)
	}
	return content, err
}
