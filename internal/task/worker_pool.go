package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// PoolKind names a worker partition.
type PoolKind string

// Worker partitions
const (
	PoolShort PoolKind = "short"
	PoolLong  PoolKind = "long"
)

// DefaultLongRunningServices are the services routed to the long pool.
var DefaultLongRunningServices = []string{"transcription_service", "scrape_service"}

// Classifier decides which partition a task belongs to.
type Classifier struct {
	long map[string]struct{}
}

// NewClassifier builds a classifier from the long-running service names.
func NewClassifier(longRunning []string) *Classifier {
	c := &Classifier{long: make(map[string]struct{}, len(longRunning))}
	for _, name := range longRunning {
		c.long[name] = struct{}{}
	}
	return c
}

// IsLongRunning reports whether serviceName is classified long-running.
func (c *Classifier) IsLongRunning(serviceName string) bool {
	_, ok := c.long[serviceName]
	return ok
}

// Accepts reports whether a worker of kind may run t. Short workers refuse
// long-running services. Long workers refuse other named services but run
// raw callback tasks.
func (c *Classifier) Accepts(kind PoolKind, t *Task) bool {
	long := c.IsLongRunning(t.ServiceName)
	if kind == PoolShort {
		return !long
	}
	return long || t.ServiceName == ""
}

type poolKindKey struct{}

// PoolFromContext returns the partition of the worker running the task
// that owns ctx.
func PoolFromContext(ctx context.Context) (PoolKind, bool) {
	kind, ok := ctx.Value(poolKindKey{}).(PoolKind)
	return kind, ok
}

// taskDispatcher runs or discards dequeued tasks. *Dispatcher implements it.
type taskDispatcher interface {
	Dispatch(ctx context.Context, t *Task) error
	Discard(ctx context.Context, t *Task, reason error)
}

// WorkerPoolConfig holds configuration options for the worker pool
type WorkerPoolConfig struct {
	// ShortWorkers and LongWorkers size the two partitions. A partition of
	// zero workers makes the other partition accept every task. If both are
	// zero, one short worker is started.
	ShortWorkers int
	LongWorkers  int

	// MaxRequeues bounds how often a task may be handed back on a partition
	// mismatch before it is discarded. Zero means no bound.
	MaxRequeues int

	// RequeueBackoff pauses a worker after it hands a task back, so idle
	// workers of the wrong kind do not spin on the same task.
	RequeueBackoff time.Duration
}

// DefaultWorkerPoolConfig returns a WorkerPoolConfig with reasonable defaults
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		ShortWorkers:   10,
		LongWorkers:    5,
		MaxRequeues:    10000,
		RequeueBackoff: 100 * time.Millisecond,
	}
}

// WorkerPool runs the short and long worker partitions. Each worker pulls
// from the shared DualQueue and hands matching tasks to the dispatcher.
type WorkerPool struct {
	queue      *DualQueue
	dispatcher taskDispatcher
	classifier *Classifier
	config     WorkerPoolConfig
	observer   Observer

	// wg tracks active worker goroutines for clean shutdown
	wg sync.WaitGroup

	// ctx ends worker loops; taskCtx is handed to running tasks and is only
	// cancelled when a shutdown deadline passes.
	ctx        context.Context
	cancel     context.CancelFunc
	taskCtx    context.Context
	taskCancel context.CancelFunc

	mu      sync.Mutex
	started bool

	logger *slog.Logger

	// errorHandler is called when a task execution fails
	// If nil, errors are only logged by the dispatcher
	errorHandler func(t *Task, err error)
}

// NewWorkerPool creates a new worker pool with the specified configuration
func NewWorkerPool(
	queue *DualQueue,
	dispatcher taskDispatcher,
	classifier *Classifier,
	config WorkerPoolConfig,
	observer Observer,
	logger *slog.Logger,
) *WorkerPool {
	if config.ShortWorkers < 0 {
		config.ShortWorkers = 0
	}
	if config.LongWorkers < 0 {
		config.LongWorkers = 0
	}
	if config.ShortWorkers == 0 && config.LongWorkers == 0 {
		logger.Warn("no workers configured, using default",
			"default_short_workers", 1)
		config.ShortWorkers = 1
	}
	if observer == nil {
		observer = NopObserver{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	taskCtx, taskCancel := context.WithCancel(context.Background())

	return &WorkerPool{
		queue:      queue,
		dispatcher: dispatcher,
		classifier: classifier,
		config:     config,
		observer:   observer,
		ctx:        ctx,
		cancel:     cancel,
		taskCtx:    taskCtx,
		taskCancel: taskCancel,
		logger:     logger.With("component", "worker_pool"),
	}
}

// SetErrorHandler allows setting a custom error handler for task execution failures
func (p *WorkerPool) SetErrorHandler(handler func(t *Task, err error)) {
	p.errorHandler = handler
}

// Start launches the workers of both partitions. Calling it twice has no
// effect.
func (p *WorkerPool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	p.logger.Info("starting worker pool",
		"short_workers", p.config.ShortWorkers,
		"long_workers", p.config.LongWorkers)

	for i := 0; i < p.config.ShortWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i, PoolShort)
	}
	for i := 0; i < p.config.LongWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i, PoolLong)
	}
}

// Stop ends every worker loop. Tasks already running may finish until ctx
// ends; after that their context is cancelled and Stop returns ctx.Err().
func (p *WorkerPool) Stop(ctx context.Context) error {
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.taskCancel()
		p.logger.Info("worker pool stopped")
		return nil
	case <-ctx.Done():
		p.taskCancel()
		p.logger.Warn("worker pool stop deadline reached, abandoning running tasks")
		return ctx.Err()
	}
}

// accepts applies the classifier unless one partition is empty, in which
// case the other takes everything.
func (p *WorkerPool) accepts(kind PoolKind, t *Task) bool {
	if p.config.ShortWorkers == 0 || p.config.LongWorkers == 0 {
		return true
	}
	return p.classifier.Accepts(kind, t)
}

func (p *WorkerPool) worker(id int, kind PoolKind) {
	defer p.wg.Done()

	logger := p.logger.With("worker_id", id, "pool", kind)
	logger.Debug("worker started")

	for {
		t, err := p.queue.Dequeue(p.ctx)
		if err != nil {
			if errors.Is(err, ErrQueueShutdown) || p.ctx.Err() != nil {
				logger.Debug("worker stopping")
				return
			}
			logger.Error("dequeue failed", "error", err)
			continue
		}

		if !p.accepts(kind, t) {
			p.handBack(logger, t)
			continue
		}

		p.run(logger, kind, t)
	}
}

// handBack requeues a task this worker's partition does not serve.
func (p *WorkerPool) handBack(logger *slog.Logger, t *Task) {
	if p.config.MaxRequeues > 0 && t.requeues >= p.config.MaxRequeues {
		p.dispatcher.Discard(p.taskCtx, t, fmt.Errorf("%w: %d requeues", ErrRequeueLimit, t.requeues))
		return
	}

	if err := p.queue.Requeue(t); err != nil {
		logger.Warn("failed to requeue task", "task_id", t.ID, "error", err)
		return
	}
	p.observer.TaskRequeued(t)

	if p.config.RequeueBackoff > 0 {
		timer := time.NewTimer(p.config.RequeueBackoff)
		select {
		case <-p.ctx.Done():
		case <-timer.C:
		}
		timer.Stop()
	}
}

// run dispatches t. A panic escaping the dispatcher is logged and the
// worker keeps going.
func (p *WorkerPool) run(logger *slog.Logger, kind PoolKind, t *Task) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("worker recovered from panic",
				"task_id", t.ID,
				"panic", r,
				"stack", string(debug.Stack()))
			if p.errorHandler != nil {
				p.errorHandler(t, fmt.Errorf("panic in worker: %v", r))
			}
		}
	}()

	logger.Debug("processing task",
		"task_id", t.ID,
		"service", t.ServiceName,
		"user_id", t.UserID)

	ctx := context.WithValue(p.taskCtx, poolKindKey{}, kind)
	if err := p.dispatcher.Dispatch(ctx, t); err != nil && p.errorHandler != nil {
		p.errorHandler(t, err)
	}
}
