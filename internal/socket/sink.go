package socket

import (
	"context"
	"errors"

	"github.com/jatin-dot-py/matrx-microservice-template/internal/task"
)

// connSink streams one task's results to a connection under the task's
// listener event. Results for a connection that has closed are dropped.
type connSink struct {
	conn  *Conn
	event string
}

var _ task.Sink = (*connSink)(nil)

func (s *connSink) write(ctx context.Context, frameType string, data any) error {
	err := s.conn.enqueue(ctx, ServerFrame{Event: s.event, Type: frameType, Data: data})
	if errors.Is(err, errConnClosed) {
		return nil
	}
	return err
}

func (s *connSink) Chunk(ctx context.Context, text string) error {
	return s.write(ctx, TypeChunk, text)
}

func (s *connSink) Data(ctx context.Context, data any) error {
	return s.write(ctx, TypeData, data)
}

func (s *connSink) Status(ctx context.Context, status string, message string) error {
	return s.write(ctx, TypeStatus, map[string]string{"status": status, "message": message})
}

func (s *connSink) Error(ctx context.Context, message string, details any) error {
	return s.write(ctx, TypeError, ErrorData{Message: message, Details: details})
}

func (s *connSink) End(ctx context.Context) error {
	return s.write(ctx, TypeEnd, true)
}
