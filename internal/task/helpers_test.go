package task

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// recordingSink captures everything a handler streams.
type recordingSink struct {
	mu     sync.Mutex
	chunks []string
	data   []any
	errors []string
	ended  int
}

func (s *recordingSink) Chunk(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, text)
	return nil
}

func (s *recordingSink) Data(_ context.Context, data any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append(s.data, data)
	return nil
}

func (s *recordingSink) Status(context.Context, string, string) error { return nil }

func (s *recordingSink) Error(_ context.Context, message string, _ any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, message)
	return nil
}

func (s *recordingSink) End(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended++
	return nil
}

func (s *recordingSink) Errors() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.errors...)
}

func staticResolver(sink Sink) SinkResolver {
	return SinkResolverFunc(func(context.Context, *Task) Sink { return sink })
}

// countingObserver counts observer events.
type countingObserver struct {
	NopObserver
	submitted atomic.Int64
	rejected  atomic.Int64
	requeued  atomic.Int64

	mu      sync.Mutex
	records []Record
}

func (o *countingObserver) TaskSubmitted(*Task)                   { o.submitted.Add(1) }
func (o *countingObserver) TaskRejected(string, QueueName, error) { o.rejected.Add(1) }
func (o *countingObserver) TaskRequeued(*Task)                    { o.requeued.Add(1) }

func (o *countingObserver) TaskFinished(_ context.Context, rec Record) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records = append(o.records, rec)
}

func (o *countingObserver) Records() []Record {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Record(nil), o.records...)
}

func newTestQueue(limit int, cfg QueueConfig) (*DualQueue, *Admission) {
	admission := NewAdmission(AdmissionConfig{DefaultLimit: limit})
	return NewDualQueue(admission, cfg, setupTestLogger()), admission
}

func newServiceTask(userID, service string, priority int) *Task {
	t := New(userID, service, nil)
	t.Priority = priority
	return t
}

// waitFor receives from ch, giving up after timeout.
func waitFor[T any](ch <-chan T, timeout time.Duration) (T, bool) {
	select {
	case v := <-ch:
		return v, true
	case <-time.After(timeout):
		var zero T
		return zero, false
	}
}
