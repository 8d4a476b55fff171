package task

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultExecutorWorkers is the number of blocking handlers that may run at
// once when no size is configured.
const DefaultExecutorWorkers = 4

// Executor runs blocking handler calls on a bounded set of goroutines so a
// slow synchronous handler occupies an executor slot instead of growing
// without limit.
type Executor struct {
	sem    *semaphore.Weighted
	size   int64
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	logger *slog.Logger
}

// NewExecutor creates an executor with size slots.
func NewExecutor(size int, logger *slog.Logger) *Executor {
	if size <= 0 {
		logger.Warn("invalid executor size specified, using default",
			"specified_size", size,
			"default_size", DefaultExecutorWorkers)
		size = DefaultExecutorWorkers
	}
	return &Executor{
		sem:    semaphore.NewWeighted(int64(size)),
		size:   int64(size),
		logger: logger.With("component", "executor"),
	}
}

// Run executes fn in an executor slot and waits for it to return. It blocks
// until a slot is free or ctx ends.
func (e *Executor) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return ErrExecutorClosed
	}
	e.wg.Add(1)
	e.mu.RUnlock()
	defer e.wg.Done()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		defer e.sem.Release(1)
		done <- fn(ctx)
	}()
	return <-done
}

// Shutdown rejects new work and waits for running work to drain or ctx to
// end. It is safe to call more than once.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		e.logger.Debug("executor drained")
		return nil
	case <-ctx.Done():
		e.logger.Warn("executor shutdown timed out before drain")
		return ctx.Err()
	}
}

// Size returns the number of slots.
func (e *Executor) Size() int {
	return int(e.size)
}
