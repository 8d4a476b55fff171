package task

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SystemUserID is the owner of internally generated work. It is exempt from
// admission limits.
const SystemUserID = "system"

// Priority values. Lower values are more urgent.
const (
	DefaultPriority    = 10
	BackgroundPriority = 100
)

// DefaultNamespace is the transport namespace results are routed to when a
// destination does not name one.
const DefaultNamespace = "/UserSession"

// QueueName identifies which of the two pending queues a task was routed to.
type QueueName string

// Queue names
const (
	QueueInteractive QueueName = "interactive"
	QueueBackground  QueueName = "background"
)

// Destination addresses the connection that results for a task stream to.
type Destination struct {
	ConnectionID string
	Namespace    string
}

// Callback is a function invoked directly instead of a registered service.
type Callback func(ctx context.Context, payload map[string]any) error

// Invocation selects how the dispatcher runs a task. It is implemented only
// by SyncTask and AsyncTask.
type Invocation interface {
	callback() Callback
	sealed()
}

// SyncTask runs its handler on the bounded blocking executor.
type SyncTask struct {
	Callback Callback
}

// AsyncTask runs its handler inline on the worker goroutine.
type AsyncTask struct {
	Callback Callback
}

func (s SyncTask) callback() Callback  { return s.Callback }
func (SyncTask) sealed()               {}
func (a AsyncTask) callback() Callback { return a.Callback }
func (AsyncTask) sealed()              {}

// Task is one unit of dispatchable work. Its exported fields are not
// modified once the task has been enqueued.
type Task struct {
	ID          uuid.UUID
	ServiceName string
	UserID      string
	Priority    int
	Payload     map[string]any
	Destination *Destination
	Invocation  Invocation
	SubmitTime  time.Time

	// queue bookkeeping, guarded by the owning DualQueue
	seq      uint64
	queue    QueueName
	requeues int
	index    int
}

// New builds a task for the given user and service with default priority
// and asynchronous invocation.
func New(userID, serviceName string, payload map[string]any) *Task {
	if userID == "" {
		userID = SystemUserID
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return &Task{
		ID:          uuid.New(),
		ServiceName: serviceName,
		UserID:      userID,
		Priority:    DefaultPriority,
		Payload:     payload,
		Invocation:  AsyncTask{},
		SubmitTime:  time.Now(),
		index:       -1,
	}
}

// Validate reports whether the task can be dispatched at all.
func (t *Task) Validate() error {
	if t == nil {
		return fmt.Errorf("%w: nil task", ErrInvalidTask)
	}
	if t.UserID == "" {
		return fmt.Errorf("%w: empty user id", ErrInvalidTask)
	}
	if t.ServiceName == "" && t.callback() == nil {
		return fmt.Errorf("%w: task needs a service name or a callback", ErrInvalidTask)
	}
	return nil
}

// IsSync reports whether the task runs on the blocking executor.
func (t *Task) IsSync() bool {
	_, ok := t.Invocation.(SyncTask)
	return ok
}

// Queue returns the queue the task was originally submitted to.
func (t *Task) Queue() QueueName {
	return t.queue
}

// Requeues returns how many times a worker has handed the task back.
func (t *Task) Requeues() int {
	return t.requeues
}

func (t *Task) callback() Callback {
	if t.Invocation == nil {
		return nil
	}
	return t.Invocation.callback()
}

// less orders tasks by (Priority, SubmitTime, seq).
func less(a, b *Task) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if !a.SubmitTime.Equal(b.SubmitTime) {
		return a.SubmitTime.Before(b.SubmitTime)
	}
	return a.seq < b.seq
}
