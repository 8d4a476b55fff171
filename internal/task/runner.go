package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// TaskRunnerConfig holds configuration for the task runner
type TaskRunnerConfig struct {
	// ShortWorkers and LongWorkers size the worker partitions
	ShortWorkers int
	LongWorkers  int

	// ExecutorWorkers bounds concurrently running synchronous handlers
	ExecutorWorkers int

	// DefaultUserLimit is the per-user in-flight ceiling
	DefaultUserLimit int

	// UserSubmitRate and UserSubmitBurst configure the optional per-user
	// submission token bucket. A zero rate disables it.
	UserSubmitRate  float64
	UserSubmitBurst int

	// PollWait and BackgroundEvery tune how the dual queue balances
	// interactive and background work
	PollWait        time.Duration
	BackgroundEvery int

	// MaxRequeues and RequeueBackoff bound partition mismatch handling
	MaxRequeues    int
	RequeueBackoff time.Duration

	// LongRunningServices lists the services routed to the long partition
	LongRunningServices []string
}

// DefaultTaskRunnerConfig returns a TaskRunnerConfig with reasonable defaults
func DefaultTaskRunnerConfig() TaskRunnerConfig {
	pool := DefaultWorkerPoolConfig()
	queue := DefaultQueueConfig()
	return TaskRunnerConfig{
		ShortWorkers:        pool.ShortWorkers,
		LongWorkers:         pool.LongWorkers,
		ExecutorWorkers:     DefaultExecutorWorkers,
		DefaultUserLimit:    DefaultUserLimit,
		PollWait:            queue.PollWait,
		BackgroundEvery:     queue.BackgroundEvery,
		MaxRequeues:         pool.MaxRequeues,
		RequeueBackoff:      pool.RequeueBackoff,
		LongRunningServices: append([]string(nil), DefaultLongRunningServices...),
	}
}

// RunnerOption customizes a TaskRunner.
type RunnerOption func(*TaskRunner)

// WithObserver reports queue and dispatch events to o.
func WithObserver(o Observer) RunnerOption {
	return func(r *TaskRunner) {
		if o != nil {
			r.observer = o
		}
	}
}

// WithErrorHandler is called for every task that ends in an error.
func WithErrorHandler(fn func(t *Task, err error)) RunnerOption {
	return func(r *TaskRunner) {
		r.errHandler = fn
	}
}

// SubmitOption customizes a single submission.
type SubmitOption func(*Task)

// WithPriority overrides the default priority of an interactive task.
func WithPriority(priority int) SubmitOption {
	return func(t *Task) {
		t.Priority = priority
	}
}

// WithDestination addresses the connection results stream to.
func WithDestination(connectionID, namespace string) SubmitOption {
	return func(t *Task) {
		if namespace == "" {
			namespace = DefaultNamespace
		}
		t.Destination = &Destination{ConnectionID: connectionID, Namespace: namespace}
	}
}

// WithSync runs the handler on the blocking executor.
func WithSync() SubmitOption {
	return func(t *Task) {
		t.Invocation = SyncTask{Callback: t.callback()}
	}
}

// WithCallback invokes cb directly instead of a registered service.
func WithCallback(cb Callback) SubmitOption {
	return func(t *Task) {
		switch t.Invocation.(type) {
		case SyncTask:
			t.Invocation = SyncTask{Callback: cb}
		default:
			t.Invocation = AsyncTask{Callback: cb}
		}
	}
}

// Stats is a point-in-time view of the runner.
type Stats struct {
	Interactive     int            `json:"interactive"`
	Background      int            `json:"background"`
	InFlight        map[string]int `json:"in_flight"`
	CachedInstances int            `json:"cached_instances"`
	Running         bool           `json:"running"`
}

// TaskRunner owns the whole dispatch engine for one process: admission,
// queues, worker partitions, dispatcher, executor and instance cache.
// Producers and transports receive it explicitly.
type TaskRunner struct {
	config     TaskRunnerConfig
	registry   *Registry
	admission  *Admission
	queue      *DualQueue
	cache      *InstanceCache
	executor   *Executor
	dispatcher *Dispatcher
	pool       *WorkerPool
	observer   Observer
	errHandler func(t *Task, err error)
	logger     *slog.Logger

	mu       sync.Mutex
	started  bool
	stopped  bool
	stopErr  error
	stopOnce sync.Once
}

// NewTaskRunner creates a runner. The registry must be fully populated
// before tasks are dispatched; resolver may be nil when no transport is
// attached.
func NewTaskRunner(
	config TaskRunnerConfig,
	registry *Registry,
	resolver SinkResolver,
	logger *slog.Logger,
	opts ...RunnerOption,
) *TaskRunner {
	logger = logger.With("component", "task_runner")

	r := &TaskRunner{
		config:   config,
		registry: registry,
		observer: NopObserver{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.admission = NewAdmission(AdmissionConfig{
		DefaultLimit: config.DefaultUserLimit,
		SubmitRate:   config.UserSubmitRate,
		SubmitBurst:  config.UserSubmitBurst,
	})
	r.queue = NewDualQueue(r.admission, QueueConfig{
		PollWait:        config.PollWait,
		BackgroundEvery: config.BackgroundEvery,
	}, logger)
	r.cache = NewInstanceCache(logger)
	r.executor = NewExecutor(config.ExecutorWorkers, logger)
	r.dispatcher = NewDispatcher(registry, r.cache, resolver, r.executor, r.admission, r.observer, logger)
	r.pool = NewWorkerPool(
		r.queue,
		r.dispatcher,
		NewClassifier(config.LongRunningServices),
		WorkerPoolConfig{
			ShortWorkers:   config.ShortWorkers,
			LongWorkers:    config.LongWorkers,
			MaxRequeues:    config.MaxRequeues,
			RequeueBackoff: config.RequeueBackoff,
		},
		r.observer,
		logger,
	)
	if r.errHandler != nil {
		r.pool.SetErrorHandler(r.errHandler)
	}

	return r
}

// Submit queues an interactive task for userID. serviceName may be empty
// when a callback is supplied. It returns ErrQuotaExceeded when the user is
// at their limit and ErrQueueShutdown once the runner has stopped.
func (r *TaskRunner) Submit(
	ctx context.Context,
	userID, serviceName string,
	payload map[string]any,
	opts ...SubmitOption,
) (*Task, error) {
	t := r.build(userID, serviceName, payload, opts)
	return t, r.enqueue(ctx, t, QueueInteractive)
}

// SubmitBackground queues fire-and-forget work. Its priority is always
// BackgroundPriority, whatever the options say.
func (r *TaskRunner) SubmitBackground(
	ctx context.Context,
	userID, serviceName string,
	payload map[string]any,
	opts ...SubmitOption,
) (*Task, error) {
	t := r.build(userID, serviceName, payload, opts)
	t.Priority = BackgroundPriority
	return t, r.enqueue(ctx, t, QueueBackground)
}

func (r *TaskRunner) build(userID, serviceName string, payload map[string]any, opts []SubmitOption) *Task {
	t := New(userID, serviceName, payload)
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (r *TaskRunner) enqueue(ctx context.Context, t *Task, queue QueueName) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var err error
	if queue == QueueBackground {
		err = r.queue.EnqueueBackground(t)
	} else {
		err = r.queue.EnqueueInteractive(t)
	}
	if err != nil {
		r.observer.TaskRejected(t.UserID, queue, err)
		if errors.Is(err, ErrQuotaExceeded) {
			r.logger.Warn("task rejected",
				"user_id", t.UserID,
				"service", t.ServiceName,
				"queue", queue,
				"error", err)
		}
		return fmt.Errorf("failed to submit task: %w", err)
	}

	r.observer.TaskSubmitted(t)
	return nil
}

// Start launches the worker partitions.
func (r *TaskRunner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return ErrQueueShutdown
	}
	if r.started {
		return nil
	}
	r.started = true

	r.logger.Info("starting task runner",
		"short_workers", r.config.ShortWorkers,
		"long_workers", r.config.LongWorkers,
		"executor_workers", r.executor.Size(),
		"services", r.registry.Names())
	r.pool.Start()
	return nil
}

// Stop closes the queues, waits for running tasks until ctx ends and then
// drains the blocking executor. Pending tasks are abandoned. Stop is
// idempotent; later calls return the first call's result.
func (r *TaskRunner) Stop(ctx context.Context) error {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.stopped = true
		r.mu.Unlock()

		abandoned := r.queue.Close()
		if len(abandoned) > 0 {
			r.logger.Warn("abandoning pending tasks", "count", len(abandoned))
		}

		poolErr := r.pool.Stop(ctx)
		execErr := r.executor.Shutdown(ctx)
		r.stopErr = errors.Join(poolErr, execErr)

		r.logger.Info("task runner stopped", "error", r.stopErr)
	})
	return r.stopErr
}

// SetUserLimit changes the in-flight limit for userID. A limit of zero
// blocks new submissions without affecting running tasks.
func (r *TaskRunner) SetUserLimit(userID string, limit int) {
	r.admission.SetLimit(userID, limit)
	r.logger.Info("user limit updated", "user_id", userID, "limit", limit)
}

// UserLimit returns the effective limit for userID.
func (r *TaskRunner) UserLimit(userID string) int {
	return r.admission.Limit(userID)
}

// ResetService evicts the cached handler for (userID, event).
func (r *TaskRunner) ResetService(userID, event string) bool {
	return r.cache.Reset(userID, event)
}

// ResetUser evicts every cached handler of userID, typically when the
// user's session ends.
func (r *TaskRunner) ResetUser(userID string) int {
	r.admission.Forget(userID)
	return r.cache.ResetUser(userID)
}

// HasService reports whether serviceName is registered.
func (r *TaskRunner) HasService(serviceName string) bool {
	return r.registry.Has(serviceName)
}

// Stats returns a snapshot of queue depths and in-flight counts.
func (r *TaskRunner) Stats() Stats {
	interactive, background := r.queue.Len()

	r.mu.Lock()
	running := r.started && !r.stopped
	r.mu.Unlock()

	return Stats{
		Interactive:     interactive,
		Background:      background,
		InFlight:        r.admission.Snapshot(),
		CachedInstances: r.cache.Len(),
		Running:         running,
	}
}
