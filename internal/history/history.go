// Package history keeps a durable ledger of pipeline runs in SQLite. The
// engine records into it best-effort; the history command reads it back.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/amesworks/groundwork/internal/pipeline/engine"
	_ "modernc.org/sqlite"
)

// ErrNotFound reports a run absent from the ledger.
var ErrNotFound = errors.New("history: run not found")

// Run summarizes one recorded pipeline run.
type Run struct {
	RunID      string
	PipelineID string
	Status     string
	StartedAt  time.Time
	// FinishedAt is zero while the run is still open.
	FinishedAt time.Time
}

// StageRecord captures one stage execution within a run.
type StageRecord struct {
	RunID      string
	StageID    string
	Status     string
	Message    string
	Metrics    map[string]int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Store records runs in a SQLite database.
type Store struct {
	db *sql.DB
}

var _ engine.Recorder = (*Store)(nil)

// Open opens the ledger at path, creating it when absent, and applies
// pending migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("history: database path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: ping database: %w", err)
	}
	if err := applyMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// BeginRun opens a ledger entry for the run. A resumed run reuses its entry
// and reopens it.
func (s *Store) BeginRun(runID, pipelineID string, startedAt time.Time) error {
	if err := s.ready(); err != nil {
		return err
	}
	if runID == "" || pipelineID == "" {
		return fmt.Errorf("history: run and pipeline ids are required")
	}
	_, err := s.db.Exec(`
INSERT INTO runs (run_id, pipeline_id, status, started_at, finished_at)
VALUES (?, ?, 'running', ?, NULL)
ON CONFLICT (run_id) DO UPDATE SET status = 'running', finished_at = NULL
`, runID, pipelineID, toMillis(startedAt))
	if err != nil {
		return fmt.Errorf("history: begin run: %w", err)
	}
	return nil
}

// RecordStage appends one stage execution to the run's ledger entry.
func (s *Store) RecordStage(runID, stageID, status, message string, metrics map[string]int, startedAt, finishedAt time.Time) error {
	if err := s.ready(); err != nil {
		return err
	}
	if runID == "" || stageID == "" {
		return fmt.Errorf("history: run and stage ids are required")
	}
	encoded, err := encodeMetrics(metrics)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
INSERT INTO stage_runs (run_id, stage_id, status, message, metrics, started_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, runID, stageID, status, message, encoded, toMillis(startedAt), toMillis(finishedAt))
	if err != nil {
		return fmt.Errorf("history: record stage: %w", err)
	}
	return nil
}

// FinishRun settles the run's ledger entry with its final status.
func (s *Store) FinishRun(runID, status string, finishedAt time.Time) error {
	if err := s.ready(); err != nil {
		return err
	}
	res, err := s.db.Exec(
		"UPDATE runs SET status = ?, finished_at = ? WHERE run_id = ?",
		status, toMillis(finishedAt), runID,
	)
	if err != nil {
		return fmt.Errorf("history: finish run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("history: finish run: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Runs lists the most recent runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("history: limit must be positive")
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT run_id, pipeline_id, status, started_at, finished_at
FROM runs
ORDER BY started_at DESC, run_id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0, limit)
	for rows.Next() {
		var run Run
		var started int64
		var finished sql.NullInt64
		if err := rows.Scan(&run.RunID, &run.PipelineID, &run.Status, &started, &finished); err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		run.StartedAt = fromMillis(started)
		if finished.Valid {
			run.FinishedAt = fromMillis(finished.Int64)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate runs: %w", err)
	}
	return runs, nil
}

// StageRuns lists the stage executions of one run in recorded order.
func (s *Store) StageRuns(ctx context.Context, runID string) ([]StageRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM runs WHERE run_id = ?", runID).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("history: look up run: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT run_id, stage_id, status, message, metrics, started_at, finished_at
FROM stage_runs
WHERE run_id = ?
ORDER BY id
`, runID)
	if err != nil {
		return nil, fmt.Errorf("history: list stage runs: %w", err)
	}
	defer rows.Close()

	var records []StageRecord
	for rows.Next() {
		var rec StageRecord
		var metrics string
		var started, finished int64
		if err := rows.Scan(&rec.RunID, &rec.StageID, &rec.Status, &rec.Message, &metrics, &started, &finished); err != nil {
			return nil, fmt.Errorf("history: scan stage run: %w", err)
		}
		rec.Metrics, err = decodeMetrics(metrics)
		if err != nil {
			return nil, err
		}
		rec.StartedAt = fromMillis(started)
		rec.FinishedAt = fromMillis(finished)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate stage runs: %w", err)
	}
	return records, nil
}

func (s *Store) ready() error {
	if s == nil || s.db == nil {
		return fmt.Errorf("history: store is not open")
	}
	return nil
}

func encodeMetrics(metrics map[string]int) (string, error) {
	if len(metrics) == 0 {
		return "{}", nil
	}
	encoded, err := json.Marshal(metrics)
	if err != nil {
		return "", fmt.Errorf("history: marshal metrics: %w", err)
	}
	return string(encoded), nil
}

func decodeMetrics(value string) (map[string]int, error) {
	value = strings.TrimSpace(value)
	if value == "" || value == "{}" {
		return nil, nil
	}
	var metrics map[string]int
	if err := json.Unmarshal([]byte(value), &metrics); err != nil {
		return nil, fmt.Errorf("history: unmarshal metrics: %w", err)
	}
	return metrics, nil
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}
