package postgres

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/store"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// uniqueViolationCode is the SQLSTATE for unique_violation.
const uniqueViolationCode = "23505"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var executionRowColumns = []string{
	"task_id", "user_id", "service", "queue", "priority", "outcome", "error", "requeues",
	"submitted_at", "started_at", "finished_at",
}

func TestExecutionStoreRecord(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := NewExecutionStore(db, testLogger())
	now := time.Now()
	e := store.Execution{
		TaskID:      uuid.New(),
		UserID:      "u1",
		Service:     "log_service",
		Queue:       "interactive",
		Priority:    2,
		Outcome:     "succeeded",
		SubmittedAt: now.Add(-time.Second),
		StartedAt:   now.Add(-500 * time.Millisecond),
		FinishedAt:  now,
	}

	mock.ExpectExec("INSERT INTO task_executions").
		WithArgs(e.TaskID, "u1", "log_service", "interactive", 2, "succeeded", "", 0,
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Record(context.Background(), e))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutionStoreRecordDuplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("INSERT INTO task_executions").
		WillReturnError(&pgconn.PgError{Code: uniqueViolationCode})

	err = NewExecutionStore(db, testLogger()).Record(context.Background(), store.Execution{TaskID: uuid.New()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrDuplicate))
}

func TestExecutionStoreRecordRequiresTaskID(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	err = NewExecutionStore(db, testLogger()).Record(context.Background(), store.Execution{})
	assert.True(t, errors.Is(err, store.ErrInvalidEntity))
}

func TestExecutionStoreGet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := NewExecutionStore(db, testLogger())
	id := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery("FROM task_executions WHERE task_id").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(executionRowColumns).
			AddRow(id.String(), "u1", "scrape_service", "background", 5, "failed", "boom", 3, now, now, now))

	e, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, e.TaskID)
	assert.Equal(t, "failed", e.Outcome)
	assert.Equal(t, 3, e.Requeues)

	mock.ExpectQuery("FROM task_executions WHERE task_id").
		WillReturnRows(sqlmock.NewRows(executionRowColumns))

	_, err = s.Get(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, store.ErrExecutionNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutionStoreListByUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	now := time.Now().UTC()
	rows := sqlmock.NewRows(executionRowColumns).
		AddRow(uuid.NewString(), "u1", "log_service", "interactive", 2, "succeeded", "", 0, now, now, now).
		AddRow(uuid.NewString(), "u1", "log_service", "interactive", 2, "failed", "x", 0, now, now, now)
	mock.ExpectQuery("WHERE user_id = \\$1").WithArgs("u1", 50).WillReturnRows(rows)

	out, err := NewExecutionStore(db, testLogger()).ListByUser(context.Background(), "u1", 0)
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutionStoreObservesFinishedTasks(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	tk := task.New("u1", "log_service", nil)
	started := time.Now()

	mock.ExpectExec("INSERT INTO task_executions").
		WithArgs(tk.ID, "u1", "log_service", sqlmock.AnyArg(), tk.Priority, "failed",
			"handler failed", 0, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	NewExecutionStore(db, testLogger()).TaskFinished(ctx, task.Record{
		Task:       tk,
		Outcome:    task.OutcomeFailed,
		Err:        errors.New("handler failed"),
		StartedAt:  started,
		FinishedAt: started.Add(time.Millisecond),
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutionStoreSwallowsRecordErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("INSERT INTO task_executions").WillReturnError(errors.New("connection reset"))

	assert.NotPanics(t, func() {
		NewExecutionStore(db, testLogger()).TaskFinished(context.Background(), task.Record{
			Task:    task.New("u1", "log_service", nil),
			Outcome: task.OutcomeSucceeded,
		})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}
