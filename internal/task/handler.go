package task

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Handler performs the work for tasks addressed to one service. A cached
// handler is reused for every task of the same (user, service) pair, so it
// must tolerate repeated and concurrent Process calls; the dispatcher does
// not serialize calls into a single instance.
// Version: 1.0
type Handler interface {
	Process(ctx context.Context, payload map[string]any, hc HandlerContext) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, payload map[string]any, hc HandlerContext) error

// Process calls f.
func (f HandlerFunc) Process(ctx context.Context, payload map[string]any, hc HandlerContext) error {
	return f(ctx, payload, hc)
}

// Closer is implemented by handlers that hold resources which must be
// released when their cache entry is evicted.
type Closer interface {
	Close() error
}

// HandlerContext carries routing metadata for one invocation.
type HandlerContext struct {
	TaskID      uuid.UUID
	UserID      string
	ServiceName string
	Destination *Destination
	Sink        Sink
	Logger      *slog.Logger
}

// Sink receives the incremental results of a task. Handlers stream chunks,
// structured data and status updates, report errors, and finish with End.
// Version: 1.0
type Sink interface {
	Chunk(ctx context.Context, text string) error
	Data(ctx context.Context, data any) error
	Status(ctx context.Context, status string, message string) error
	Error(ctx context.Context, message string, details any) error
	End(ctx context.Context) error
}

// SinkResolver finds the addressable result sink for a task. Tasks with no
// reachable destination get a NopSink.
// Version: 1.0
type SinkResolver interface {
	ResolveSink(ctx context.Context, t *Task) Sink
}

// SinkResolverFunc adapts a function to SinkResolver.
type SinkResolverFunc func(ctx context.Context, t *Task) Sink

// ResolveSink calls f.
func (f SinkResolverFunc) ResolveSink(ctx context.Context, t *Task) Sink {
	return f(ctx, t)
}

// NopSink discards every result.
type NopSink struct{}

func (NopSink) Chunk(context.Context, string) error          { return nil }
func (NopSink) Data(context.Context, any) error              { return nil }
func (NopSink) Status(context.Context, string, string) error { return nil }
func (NopSink) Error(context.Context, string, any) error     { return nil }
func (NopSink) End(context.Context) error                    { return nil }
