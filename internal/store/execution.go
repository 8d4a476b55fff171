package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Execution is the history row written once per finished task. Pending
// tasks are never persisted.
type Execution struct {
	TaskID      uuid.UUID
	UserID      string
	Service     string
	Queue       string
	Priority    int
	Outcome     string
	Error       string
	Requeues    int
	SubmittedAt time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Duration is the time the task spent executing.
func (e Execution) Duration() time.Duration {
	return e.FinishedAt.Sub(e.StartedAt)
}

// ExecutionStore persists task execution history.
type ExecutionStore interface {
	// Record inserts one execution. Recording the same task twice returns
	// ErrDuplicate.
	Record(ctx context.Context, e Execution) error

	// Get returns the execution of one task or ErrExecutionNotFound.
	Get(ctx context.Context, taskID uuid.UUID) (*Execution, error)

	// ListByUser returns the user's most recent executions, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]Execution, error)
}
