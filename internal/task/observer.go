package task

import (
	"context"
	"time"
)

// Outcome classifies how a dequeued task ended.
type Outcome string

// Outcome values
const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeNoHandler Outcome = "no_handler"
	OutcomeDropped   Outcome = "dropped"
)

// Record describes one finished task.
type Record struct {
	Task       *Task
	Outcome    Outcome
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration is the time the task spent executing.
func (r Record) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Observer is notified of queue and dispatch events. Implementations must be
// safe for concurrent use and must not block for long; they run on the
// submitting or executing goroutine.
// Version: 1.0
type Observer interface {
	TaskSubmitted(t *Task)
	TaskRejected(userID string, queue QueueName, err error)
	TaskRequeued(t *Task)
	TaskFinished(ctx context.Context, rec Record)
}

// NopObserver ignores every event. Embed it to implement a subset of
// Observer.
type NopObserver struct{}

func (NopObserver) TaskSubmitted(*Task)                   {}
func (NopObserver) TaskRejected(string, QueueName, error) {}
func (NopObserver) TaskRequeued(*Task)                    {}
func (NopObserver) TaskFinished(context.Context, Record)  {}

// Observers fans events out to several observers in order.
type Observers []Observer

func (o Observers) TaskSubmitted(t *Task) {
	for _, obs := range o {
		obs.TaskSubmitted(t)
	}
}

func (o Observers) TaskRejected(userID string, queue QueueName, err error) {
	for _, obs := range o {
		obs.TaskRejected(userID, queue, err)
	}
}

func (o Observers) TaskRequeued(t *Task) {
	for _, obs := range o {
		obs.TaskRequeued(t)
	}
}

func (o Observers) TaskFinished(ctx context.Context, rec Record) {
	for _, obs := range o {
		obs.TaskFinished(ctx, rec)
	}
}
