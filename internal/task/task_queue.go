package task

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"
)

// QueueConfig holds configuration options for the dual queue
type QueueConfig struct {
	// PollWait bounds how long Dequeue waits for interactive work before it
	// falls back to the background queue.
	PollWait time.Duration

	// BackgroundEvery forces one background dequeue after this many
	// consecutive interactive dequeues made while background work was
	// waiting. Zero disables the forced turn.
	BackgroundEvery int
}

// DefaultQueueConfig returns a QueueConfig with reasonable defaults
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		PollWait:        time.Second,
		BackgroundEvery: 8,
	}
}

// taskHeap is a min-heap of tasks ordered by (Priority, SubmitTime, seq).
type taskHeap []*Task

func (h taskHeap) Len() int           { return len(h) }
func (h taskHeap) Less(i, j int) bool { return less(h[i], h[j]) }
func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*Task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// DualQueue holds pending tasks in an interactive and a background heap.
// Admission checks and heap mutations happen under one lock, which is never
// held while a task executes.
type DualQueue struct {
	mu          sync.Mutex
	interactive taskHeap
	background  taskHeap
	admission   *Admission
	seq         uint64
	notify      chan struct{}
	closed      bool
	streak      int
	config      QueueConfig
	logger      *slog.Logger
}

// NewDualQueue creates an empty queue pair gated by admission.
func NewDualQueue(admission *Admission, config QueueConfig, logger *slog.Logger) *DualQueue {
	if config.PollWait < 0 {
		config.PollWait = 0
	}
	if config.BackgroundEvery < 0 {
		config.BackgroundEvery = 0
	}
	return &DualQueue{
		admission: admission,
		notify:    make(chan struct{}),
		config:    config,
		logger:    logger.With("component", "task_queue"),
	}
}

// EnqueueInteractive admits t and adds it to the interactive queue.
func (q *DualQueue) EnqueueInteractive(t *Task) error {
	return q.enqueue(t, QueueInteractive)
}

// EnqueueBackground admits t and adds it to the background queue.
func (q *DualQueue) EnqueueBackground(t *Task) error {
	return q.enqueue(t, QueueBackground)
}

func (q *DualQueue) enqueue(t *Task, name QueueName) error {
	if err := t.Validate(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueShutdown
	}
	if err := q.admission.TryAdmit(t.UserID); err != nil {
		return err
	}

	q.seq++
	t.seq = q.seq
	t.queue = name
	if t.SubmitTime.IsZero() {
		t.SubmitTime = time.Now()
	}

	if name == QueueBackground {
		heap.Push(&q.background, t)
	} else {
		heap.Push(&q.interactive, t)
	}
	q.signalLocked()

	q.logger.Debug("task enqueued",
		"task_id", t.ID,
		"service", t.ServiceName,
		"user_id", t.UserID,
		"queue", name,
		"priority", t.Priority,
		"interactive_len", q.interactive.Len(),
		"background_len", q.background.Len())
	return nil
}

// Requeue hands a dequeued task back to the interactive queue. The task's
// in-flight count is released so it is pending again, and it keeps its
// original position key.
func (q *DualQueue) Requeue(t *Task) error {
	q.admission.Release(t.UserID)

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueShutdown
	}

	t.requeues++
	heap.Push(&q.interactive, t)
	q.signalLocked()

	q.logger.Debug("task requeued",
		"task_id", t.ID,
		"service", t.ServiceName,
		"user_id", t.UserID,
		"requeues", t.requeues)
	return nil
}

// Dequeue returns the next task and marks it in flight for its user.
//
// Interactive work is always preferred. Background work is taken once the
// interactive queue has stayed empty for PollWait, or when the fairness
// counter grants background a turn. Dequeue blocks until a task is
// available, ctx ends, or the queue is closed.
func (q *DualQueue) Dequeue(ctx context.Context) (*Task, error) {
	fallbackAt := time.Now().Add(q.config.PollWait)

	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrQueueShutdown
		}

		if t := q.nextLocked(!time.Now().Before(fallbackAt)); t != nil {
			q.admission.Acquire(t.UserID)
			q.mu.Unlock()
			return t, nil
		}

		notify := q.notify
		backgroundWaiting := q.background.Len() > 0
		q.mu.Unlock()

		var (
			timer   *time.Timer
			timeout <-chan time.Time
		)
		if backgroundWaiting {
			timer = time.NewTimer(time.Until(fallbackAt))
			timeout = timer.C
		}

		select {
		case <-ctx.Done():
			stopTimer(timer)
			return nil, ctx.Err()
		case <-notify:
		case <-timeout:
		}
		stopTimer(timer)
	}
}

// nextLocked pops the next task, or nil when nothing may be taken yet.
func (q *DualQueue) nextLocked(fallback bool) *Task {
	if q.interactive.Len() > 0 {
		if q.background.Len() > 0 {
			if q.config.BackgroundEvery > 0 && q.streak >= q.config.BackgroundEvery {
				q.streak = 0
				return heap.Pop(&q.background).(*Task)
			}
			q.streak++
		}
		return heap.Pop(&q.interactive).(*Task)
	}
	if q.background.Len() > 0 && fallback {
		q.streak = 0
		return heap.Pop(&q.background).(*Task)
	}
	return nil
}

// Close shuts the queue down and wakes every waiting Dequeue. It returns the
// tasks that were still pending; later calls return nil.
func (q *DualQueue) Close() []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.notify)

	abandoned := make([]*Task, 0, q.interactive.Len()+q.background.Len())
	abandoned = append(abandoned, q.interactive...)
	abandoned = append(abandoned, q.background...)
	q.interactive = nil
	q.background = nil

	q.logger.Info("task queue closed", "abandoned", len(abandoned))
	return abandoned
}

// Len returns the number of pending tasks in each queue.
func (q *DualQueue) Len() (interactive, background int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.interactive.Len(), q.background.Len()
}

// Closed reports whether Close has been called.
func (q *DualQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *DualQueue) signalLocked() {
	close(q.notify)
	q.notify = make(chan struct{})
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}
