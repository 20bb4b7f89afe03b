// internal/runstore/runstore.go

// Package runstore persists completed runs to PostgreSQL so past guides can
// be audited and regenerated.
package runstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/guidecap-cli/internal/guide"
)

// DBPool abstracts pgxpool.Pool so tests can substitute a mock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Run is the persisted summary of one automation run.
type Run struct {
	ID         string
	App        string
	Goal       string
	StartURL   string
	Completed  bool
	Steps      int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Store is the PostgreSQL run repository.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New verifies the connection and returns the store.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("runstore"),
	}, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    app         TEXT NOT NULL,
    goal        TEXT NOT NULL,
    start_url   TEXT NOT NULL,
    completed   BOOLEAN NOT NULL,
    steps       INTEGER NOT NULL,
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS run_steps (
    run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    step        INTEGER NOT NULL,
    kind        TEXT NOT NULL,
    target      TEXT,
    description TEXT NOT NULL,
    reasoning   TEXT,
    url         TEXT,
    success     BOOLEAN NOT NULL,
    screenshot  TEXT,
    recorded_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (run_id, step)
);
`

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// PersistRun writes the run summary and its step records in one transaction.
// Re-persisting the same run ID replaces the summary.
func (s *Store) PersistRun(ctx context.Context, run Run, records []guide.Record) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	upsert := `
        INSERT INTO runs (id, app, goal, start_url, completed, steps, started_at, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (id) DO UPDATE SET
            completed = EXCLUDED.completed,
            steps = EXCLUDED.steps,
            finished_at = EXCLUDED.finished_at;
    `
	if _, err := tx.Exec(ctx, upsert,
		run.ID, run.App, run.Goal, run.StartURL,
		run.Completed, run.Steps,
		run.StartedAt.UTC(), run.FinishedAt.UTC(),
	); err != nil {
		return fmt.Errorf("failed to upsert run: %w", err)
	}

	if len(records) > 0 {
		if err := s.persistSteps(ctx, tx, run.ID, records); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) persistSteps(ctx context.Context, tx pgx.Tx, runID string, records []guide.Record) error {
	rows := make([][]interface{}, len(records))
	for i, r := range records {
		rows[i] = []interface{}{
			runID, r.Step, r.Kind, r.Target,
			r.Description, r.Reasoning, r.URL,
			r.Success, r.ScreenshotPath,
			r.Timestamp.UTC(),
		}
	}

	copyCount, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"run_steps"},
		[]string{"run_id", "step", "kind", "target", "description", "reasoning", "url", "success", "screenshot", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to copy run steps: %w", err)
	}
	if int(copyCount) != len(records) {
		return fmt.Errorf("mismatch in copied step count: expected %d, got %d", len(records), copyCount)
	}
	return nil
}

// GetRun loads a run summary and its steps.
func (s *Store) GetRun(ctx context.Context, runID string) (Run, []guide.Record, error) {
	var run Run
	query := `
        SELECT id, app, goal, start_url, completed, steps, started_at, finished_at
        FROM runs
        WHERE id = $1;
    `
	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return Run{}, nil, fmt.Errorf("failed to query run: %w", err)
	}
	found := false
	for rows.Next() {
		if err := rows.Scan(&run.ID, &run.App, &run.Goal, &run.StartURL,
			&run.Completed, &run.Steps, &run.StartedAt, &run.FinishedAt); err != nil {
			rows.Close()
			return Run{}, nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		found = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Run{}, nil, fmt.Errorf("error during row iteration: %w", err)
	}
	if !found {
		return Run{}, nil, fmt.Errorf("run %s not found", runID)
	}

	records, err := s.getSteps(ctx, runID)
	if err != nil {
		return Run{}, nil, err
	}
	return run, records, nil
}

func (s *Store) getSteps(ctx context.Context, runID string) ([]guide.Record, error) {
	query := `
        SELECT step, kind, target, description, reasoning, url, success, screenshot, recorded_at
        FROM run_steps
        WHERE run_id = $1
        ORDER BY step ASC;
    `
	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run steps: %w", err)
	}
	defer rows.Close()

	var records []guide.Record
	for rows.Next() {
		var r guide.Record
		if err := rows.Scan(&r.Step, &r.Kind, &r.Target, &r.Description,
			&r.Reasoning, &r.URL, &r.Success, &r.ScreenshotPath, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan step row: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return records, nil
}
