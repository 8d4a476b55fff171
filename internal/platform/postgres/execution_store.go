package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/redact"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/store"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/task"
)

// recordTimeout bounds the insert made for each finished task.
const recordTimeout = 5 * time.Second

// maxErrorLength truncates stored error text.
const maxErrorLength = 2000

// ExecutionStore implements store.ExecutionStore on PostgreSQL. It also
// observes the task runner and records every finished task.
type ExecutionStore struct {
	task.NopObserver

	db     store.DBTX
	logger *slog.Logger
}

var (
	_ store.ExecutionStore = (*ExecutionStore)(nil)
	_ task.Observer        = (*ExecutionStore)(nil)
)

// NewExecutionStore creates an ExecutionStore.
func NewExecutionStore(db store.DBTX, logger *slog.Logger) *ExecutionStore {
	return &ExecutionStore{
		db:     db,
		logger: logger.With("component", "execution_store"),
	}
}

// Record implements store.ExecutionStore.
func (s *ExecutionStore) Record(ctx context.Context, e store.Execution) error {
	if e.TaskID == uuid.Nil {
		return store.NewStoreError(store.EntityExecution, "record", "task id is required", store.ErrInvalidEntity)
	}

	query := `
		INSERT INTO task_executions (
			task_id, user_id, service, queue, priority, outcome, error, requeues,
			submitted_at, started_at, finished_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.ExecContext(ctx, query,
		e.TaskID,
		e.UserID,
		e.Service,
		e.Queue,
		e.Priority,
		e.Outcome,
		e.Error,
		e.Requeues,
		e.SubmittedAt.UTC(),
		e.StartedAt.UTC(),
		e.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record execution: %w", MapError(err))
	}
	return nil
}

const executionColumns = `
	task_id, user_id, service, queue, priority, outcome, error, requeues,
	submitted_at, started_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row rowScanner) (*store.Execution, error) {
	var e store.Execution
	err := row.Scan(
		&e.TaskID,
		&e.UserID,
		&e.Service,
		&e.Queue,
		&e.Priority,
		&e.Outcome,
		&e.Error,
		&e.Requeues,
		&e.SubmittedAt,
		&e.StartedAt,
		&e.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Get implements store.ExecutionStore.
func (s *ExecutionStore) Get(ctx context.Context, taskID uuid.UUID) (*store.Execution, error) {
	query := `SELECT` + executionColumns + ` FROM task_executions WHERE task_id = $1`

	e, err := scanExecution(s.db.QueryRowContext(ctx, query, taskID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrExecutionNotFound
		}
		return nil, fmt.Errorf("failed to get execution: %w", MapError(err))
	}
	return e, nil
}

// ListByUser implements store.ExecutionStore.
func (s *ExecutionStore) ListByUser(ctx context.Context, userID string, limit int) ([]store.Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT` + executionColumns + `
		FROM task_executions
		WHERE user_id = $1
		ORDER BY finished_at DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var out []store.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate executions: %w", err)
	}
	return out, nil
}

// TaskFinished implements task.Observer. Failures are logged; they never
// affect the task.
func (s *ExecutionStore) TaskFinished(ctx context.Context, rec task.Record) {
	e := executionFromRecord(rec)

	// the task context may already be cancelled during shutdown
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	err := s.Record(ctx, e)
	switch {
	case err == nil:
	case IsUniqueViolation(err):
		s.logger.Debug("task execution already recorded", "task_id", e.TaskID)
	default:
		s.logger.Warn("failed to record task execution",
			"task_id", e.TaskID,
			"service", e.Service,
			"error", redact.Error(err))
	}
}

func executionFromRecord(rec task.Record) store.Execution {
	t := rec.Task
	e := store.Execution{
		TaskID:      t.ID,
		UserID:      t.UserID,
		Service:     t.ServiceName,
		Queue:       string(t.Queue()),
		Priority:    t.Priority,
		Outcome:     string(rec.Outcome),
		Requeues:    t.Requeues(),
		SubmittedAt: t.SubmitTime,
		StartedAt:   rec.StartedAt,
		FinishedAt:  rec.FinishedAt,
	}
	if rec.Err != nil {
		e.Error = redact.Error(rec.Err)
		if len(e.Error) > maxErrorLength {
			e.Error = e.Error[:maxErrorLength]
		}
	}
	return e
}
