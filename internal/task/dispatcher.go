package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/jatin-dot-py/matrx-microservice-template/internal/redact"
)

// Dispatcher resolves a dequeued task to a handler and invokes it. Every
// error and panic raised by the handler is contained in the returned error;
// admission is released for the task no matter how it ends.
type Dispatcher struct {
	registry  *Registry
	cache     *InstanceCache
	resolver  SinkResolver
	executor  *Executor
	admission *Admission
	observer  Observer
	logger    *slog.Logger
}

// NewDispatcher wires a dispatcher. A nil resolver routes every result to a
// NopSink and a nil observer discards events.
func NewDispatcher(
	registry *Registry,
	cache *InstanceCache,
	resolver SinkResolver,
	executor *Executor,
	admission *Admission,
	observer Observer,
	logger *slog.Logger,
) *Dispatcher {
	if resolver == nil {
		resolver = SinkResolverFunc(func(context.Context, *Task) Sink { return NopSink{} })
	}
	if observer == nil {
		observer = NopObserver{}
	}
	return &Dispatcher{
		registry:  registry,
		cache:     cache,
		resolver:  resolver,
		executor:  executor,
		admission: admission,
		observer:  observer,
		logger:    logger.With("component", "dispatcher"),
	}
}

// Dispatch runs t to completion. The returned error is informational: it has
// already been logged and reported to the task's sink.
func (d *Dispatcher) Dispatch(ctx context.Context, t *Task) (err error) {
	started := time.Now()
	logger := d.logger.With(
		"task_id", t.ID,
		"service", t.ServiceName,
		"user_id", t.UserID,
	)

	defer func() {
		d.admission.Release(t.UserID)
		d.observer.TaskFinished(ctx, Record{
			Task:       t,
			Outcome:    outcomeOf(err),
			Err:        err,
			StartedAt:  started,
			FinishedAt: time.Now(),
		})
	}()

	sink := d.resolver.ResolveSink(ctx, t)
	if sink == nil {
		sink = NopSink{}
	}

	handler, err := d.resolve(t, sink)
	if err != nil {
		logger.Error("no handler for task, discarding", "error", err)
		_ = sink.Error(ctx, fmt.Sprintf("unknown service %q", t.ServiceName), nil)
		return err
	}

	hc := HandlerContext{
		TaskID:      t.ID,
		UserID:      t.UserID,
		ServiceName: t.ServiceName,
		Destination: t.Destination,
		Sink:        sink,
		Logger:      logger,
	}

	switch t.Invocation.(type) {
	case SyncTask:
		err = d.executor.Run(ctx, func(ctx context.Context) error {
			return d.invoke(ctx, t, handler, hc)
		})
	default:
		err = d.invoke(ctx, t, handler, hc)
	}

	if err != nil {
		logger.Error("task failed", "error", redact.Error(err), "sync", t.IsSync())
		var invErr *HandlerInvocationError
		if errors.As(err, &invErr) {
			_ = sink.Error(ctx, redact.Error(invErr.Err), nil)
		}
		return err
	}

	logger.Debug("task completed", "duration_ms", time.Since(started).Milliseconds())
	return nil
}

// Discard finishes a dequeued task without running it.
func (d *Dispatcher) Discard(ctx context.Context, t *Task, reason error) {
	now := time.Now()
	d.admission.Release(t.UserID)

	d.logger.Error("task discarded",
		"task_id", t.ID,
		"service", t.ServiceName,
		"user_id", t.UserID,
		"requeues", t.requeues,
		"error", reason)

	sink := d.resolver.ResolveSink(ctx, t)
	if sink != nil {
		_ = sink.Error(ctx, "task could not be scheduled", nil)
	}

	d.observer.TaskFinished(ctx, Record{
		Task:       t,
		Outcome:    OutcomeDropped,
		Err:        reason,
		StartedAt:  now,
		FinishedAt: now,
	})
}

// resolve returns the callback as a handler or the cached service instance.
func (d *Dispatcher) resolve(t *Task, sink Sink) (Handler, error) {
	if cb := t.callback(); cb != nil {
		return HandlerFunc(func(ctx context.Context, payload map[string]any, _ HandlerContext) error {
			return cb(ctx, payload)
		}), nil
	}

	factory, err := d.registry.Lookup(t.ServiceName)
	if err != nil {
		return nil, err
	}
	return d.cache.GetOrCreate(t.UserID, t.ServiceName, factory, sink), nil
}

// invoke calls the handler, converting errors and panics into a
// HandlerInvocationError.
func (d *Dispatcher) invoke(ctx context.Context, t *Task, h Handler, hc HandlerContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panicked",
				"task_id", t.ID,
				"service", t.ServiceName,
				"user_id", t.UserID,
				"panic", r,
				"stack", string(debug.Stack()))
			err = &HandlerInvocationError{
				Service: t.ServiceName,
				UserID:  t.UserID,
				TaskID:  t.ID,
				Err:     fmt.Errorf("panic: %v", r),
				Panic:   true,
			}
		}
	}()

	if herr := h.Process(ctx, t.Payload, hc); herr != nil {
		return &HandlerInvocationError{
			Service: t.ServiceName,
			UserID:  t.UserID,
			TaskID:  t.ID,
			Err:     herr,
		}
	}
	return nil
}

func outcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSucceeded
	case errors.Is(err, ErrNoHandlerFactory):
		return OutcomeNoHandler
	case errors.Is(err, ErrRequeueLimit), errors.Is(err, ErrExecutorClosed):
		return OutcomeDropped
	default:
		return OutcomeFailed
	}
}
