// internal/runstore/runstore_test.go

package runstore

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/guidecap-cli/internal/guide"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

const sqlUpsertRun = `
        INSERT INTO runs (id, app, goal, start_url, completed, steps, started_at, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (id) DO UPDATE SET
            completed = EXCLUDED.completed,
            steps = EXCLUDED.steps,
            finished_at = EXCLUDED.finished_at;
    `

var stepColumns = []string{"run_id", "step", "kind", "target", "description", "reasoning", "url", "success", "screenshot", "recorded_at"}

func sampleRun() Run {
	return Run{
		ID:         uuid.NewString(),
		App:        "linear",
		Goal:       "Create a project",
		StartURL:   "https://linear.app",
		Completed:  true,
		Steps:      2,
		StartedAt:  time.Now().Add(-time.Minute),
		FinishedAt: time.Now(),
	}
}

func sampleRecords() []guide.Record {
	now := time.Now().UTC()
	return []guide.Record{
		{Step: 1, Kind: "click", Target: "[3]", Description: "Click New project", Success: true, Timestamp: now},
		{Step: 2, Kind: "type", Target: "[5]", Description: "Name the project", Success: true, Timestamp: now},
	}
}

func TestNewStore(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = New(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestEnsureSchema(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	mockPool.ExpectPing().WillReturnError(nil)
	store, err := New(context.Background(), mockPool, zap.NewNop())
	require.NoError(t, err)

	mockPool.ExpectExec(flexibleSQLMatcher(schemaSQL)).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPersistRun(t *testing.T) {
	ctx := context.Background()

	t.Run("should persist a run and its steps without rollback errors", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		observedZapCore, observedLogs := observer.New(zapcore.ErrorLevel)
		observedLogger := zap.New(observedZapCore)

		mockPool.ExpectPing().WillReturnError(nil)
		store, err := New(context.Background(), mockPool, observedLogger)
		require.NoError(t, err)

		run := sampleRun()
		records := sampleRecords()

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertRun)).
			WithArgs(
				run.ID, run.App, run.Goal, run.StartURL,
				run.Completed, run.Steps,
				run.StartedAt.UTC(), run.FinishedAt.UTC(),
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCopyFrom(pgx.Identifier{"run_steps"}, stepColumns).
			WillReturnResult(int64(len(records)))
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, store.PersistRun(ctx, run, records))
		assert.NoError(t, mockPool.ExpectationsWereMet())
		assert.Empty(t, observedLogs.All(), "Expected no errors logged on successful commit")
	})

	t.Run("should persist a run with no steps", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing().WillReturnError(nil)
		store, err := New(context.Background(), mockPool, zap.NewNop())
		require.NoError(t, err)

		run := sampleRun()
		run.Steps = 0

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertRun)).
			WithArgs(
				run.ID, run.App, run.Goal, run.StartURL,
				run.Completed, run.Steps,
				run.StartedAt.UTC(), run.FinishedAt.UTC(),
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, store.PersistRun(ctx, run, nil))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should handle transaction begin failure", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing().WillReturnError(nil)
		store, err := New(context.Background(), mockPool, zap.NewNop())
		require.NoError(t, err)

		beginErr := errors.New("cannot begin tx")
		mockPool.ExpectBegin().WillReturnError(beginErr)

		err = store.PersistRun(ctx, sampleRun(), nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, beginErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should rollback if copying steps fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing().WillReturnError(nil)
		store, err := New(context.Background(), mockPool, zap.NewNop())
		require.NoError(t, err)

		run := sampleRun()
		copyErr := errors.New("copy from failed")

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertRun)).
			WithArgs(
				run.ID, run.App, run.Goal, run.StartURL,
				run.Completed, run.Steps,
				run.StartedAt.UTC(), run.FinishedAt.UTC(),
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCopyFrom(pgx.Identifier{"run_steps"}, stepColumns).
			WillReturnError(copyErr)
		mockPool.ExpectRollback()

		err = store.PersistRun(ctx, run, sampleRecords())
		require.Error(t, err)
		assert.ErrorIs(t, err, copyErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should fail on copy count mismatch", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing().WillReturnError(nil)
		store, err := New(context.Background(), mockPool, zap.NewNop())
		require.NoError(t, err)

		run := sampleRun()

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertRun)).
			WithArgs(
				run.ID, run.App, run.Goal, run.StartURL,
				run.Completed, run.Steps,
				run.StartedAt.UTC(), run.FinishedAt.UTC(),
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCopyFrom(pgx.Identifier{"run_steps"}, stepColumns).
			WillReturnResult(1)
		mockPool.ExpectRollback()

		err = store.PersistRun(ctx, run, sampleRecords())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mismatch in copied step count")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestGetRun(t *testing.T) {
	ctx := context.Background()

	t.Run("should retrieve a run with its steps", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing().WillReturnError(nil)
		store, err := New(context.Background(), mockPool, zap.NewNop())
		require.NoError(t, err)

		runID := uuid.NewString()
		started := time.Now().UTC().Add(-time.Minute)
		finished := time.Now().UTC()

		runColumns := []string{"id", "app", "goal", "start_url", "completed", "steps", "started_at", "finished_at"}
		mockPool.ExpectQuery(flexibleSQLMatcher(`SELECT id, app, goal, start_url, completed, steps, started_at, finished_at FROM runs WHERE id = $1;`)).
			WithArgs(runID).
			WillReturnRows(pgxmock.NewRows(runColumns).
				AddRow(runID, "notion", "Share a page", "https://www.notion.so", true, 1, started, finished))

		stepCols := []string{"step", "kind", "target", "description", "reasoning", "url", "success", "screenshot", "recorded_at"}
		mockPool.ExpectQuery(flexibleSQLMatcher(`SELECT step, kind, target, description, reasoning, url, success, screenshot, recorded_at FROM run_steps WHERE run_id = $1 ORDER BY step ASC;`)).
			WithArgs(runID).
			WillReturnRows(pgxmock.NewRows(stepCols).
				AddRow(1, "click", "[2]", "Click Share", "The share menu opens here.", "https://www.notion.so/page", true, "step_1.png", finished))

		run, records, err := store.GetRun(ctx, runID)
		require.NoError(t, err)
		assert.Equal(t, "notion", run.App)
		assert.True(t, run.Completed)
		require.Len(t, records, 1)
		assert.Equal(t, "Click Share", records[0].Description)
		assert.Equal(t, "step_1.png", records[0].ScreenshotPath)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should error when the run does not exist", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing().WillReturnError(nil)
		store, err := New(context.Background(), mockPool, zap.NewNop())
		require.NoError(t, err)

		runID := uuid.NewString()
		runColumns := []string{"id", "app", "goal", "start_url", "completed", "steps", "started_at", "finished_at"}
		mockPool.ExpectQuery(flexibleSQLMatcher(`SELECT id, app, goal, start_url, completed, steps, started_at, finished_at FROM runs WHERE id = $1;`)).
			WithArgs(runID).
			WillReturnRows(pgxmock.NewRows(runColumns))

		_, _, err = store.GetRun(ctx, runID)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}
