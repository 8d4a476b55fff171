package task

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Common errors returned by the dispatch engine
var (
	// ErrQuotaExceeded is returned at submit time when the user already has
	// as many tasks in flight as their limit allows.
	ErrQuotaExceeded = errors.New("user task quota exceeded")

	// ErrNoHandlerFactory means no service is registered under the task's
	// service name.
	ErrNoHandlerFactory = errors.New("no handler factory registered")

	// ErrQueueShutdown is returned by every queue and runner operation after
	// shutdown has begun.
	ErrQueueShutdown = errors.New("task queue is shut down")

	// ErrRequeueLimit means a task bounced between worker partitions more
	// often than allowed and was discarded.
	ErrRequeueLimit = errors.New("task requeue limit reached")

	// ErrInvalidTask is returned for tasks that can never be dispatched.
	ErrInvalidTask = errors.New("invalid task")

	// ErrDuplicateService is returned when a service name is registered twice.
	ErrDuplicateService = errors.New("service already registered")

	// ErrExecutorClosed is returned when work is offered to a drained executor.
	ErrExecutorClosed = errors.New("executor is shut down")
)

// HandlerInvocationError wraps any error or panic raised by a handler while
// it processed a task.
type HandlerInvocationError struct {
	Service string
	UserID  string
	TaskID  uuid.UUID
	Err     error
	Panic   bool
}

func (e *HandlerInvocationError) Error() string {
	service := e.Service
	if service == "" {
		service = "callback"
	}
	if e.Panic {
		return fmt.Sprintf("handler %s panicked for user %s (task %s): %v", service, e.UserID, e.TaskID, e.Err)
	}
	return fmt.Sprintf("handler %s failed for user %s (task %s): %v", service, e.UserID, e.TaskID, e.Err)
}

func (e *HandlerInvocationError) Unwrap() error {
	return e.Err
}
