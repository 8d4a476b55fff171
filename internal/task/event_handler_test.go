package task

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jatin-dot-py/matrx-microservice-template/internal/events"
)

func TestSubmitEventHandler(t *testing.T) {
	registry := NewRegistry()
	r := newTestRunner(t, testRunnerConfig(), registry)
	handler := NewSubmitEventHandler(r, setupTestLogger())

	t.Run("interactive event", func(t *testing.T) {
		event, err := events.NewTaskRequestEvent("log_service",
			map[string]any{"task": "mic_check"},
			events.ForUser("u1"),
			events.FromConnection("conn-1", "/UserSession"),
			events.WithPriority(4),
			events.AsSync(),
		)
		require.NoError(t, err)
		require.NoError(t, handler.HandleEvent(context.Background(), event))

		stats := r.Stats()
		assert.Equal(t, 1, stats.Interactive)
	})

	t.Run("background event", func(t *testing.T) {
		event, err := events.NewTaskRequestEvent("scrape_service", nil, events.ForUser("u1"), events.AsBackground())
		require.NoError(t, err)
		require.NoError(t, handler.HandleEvent(context.Background(), event))
		assert.Equal(t, 1, r.Stats().Background)
	})

	t.Run("invalid payload", func(t *testing.T) {
		event := &events.TaskRequestEvent{Type: "log_service", UserID: "u1", Payload: json.RawMessage(`"text"`)}
		err := handler.HandleEvent(context.Background(), event)
		assert.ErrorIs(t, err, ErrInvalidTask)
	})

	t.Run("quota errors propagate", func(t *testing.T) {
		r.SetUserLimit("u2", 0)
		event, err := events.NewTaskRequestEvent("log_service", nil, events.ForUser("u2"))
		require.NoError(t, err)
		assert.ErrorIs(t, handler.HandleEvent(context.Background(), event), ErrQuotaExceeded)
	})
}

// submitCapture records the arguments the event handler passes through.
type submitCapture struct {
	background bool
	task       *Task
}

func (s *submitCapture) Submit(_ context.Context, userID, service string, payload map[string]any, opts ...SubmitOption) (*Task, error) {
	s.task = New(userID, service, payload)
	for _, opt := range opts {
		opt(s.task)
	}
	return s.task, nil
}

func (s *submitCapture) SubmitBackground(ctx context.Context, userID, service string, payload map[string]any, opts ...SubmitOption) (*Task, error) {
	s.background = true
	return s.Submit(ctx, userID, service, payload, opts...)
}

func TestSubmitEventHandler_MapsEventFields(t *testing.T) {
	capture := &submitCapture{}
	handler := NewSubmitEventHandler(capture, setupTestLogger())

	event, err := events.NewTaskRequestEvent("log_service",
		map[string]any{"task": "read_logs"},
		events.ForUser("u9"),
		events.FromConnection("conn-9", ""),
		events.WithPriority(7),
		events.AsSync(),
	)
	require.NoError(t, err)
	require.NoError(t, handler.HandleEvent(context.Background(), event))

	got := capture.task
	require.NotNil(t, got)
	assert.False(t, capture.background)
	assert.Equal(t, "u9", got.UserID)
	assert.Equal(t, "log_service", got.ServiceName)
	assert.Equal(t, 7, got.Priority)
	assert.True(t, got.IsSync())
	assert.Equal(t, "read_logs", got.Payload["task"])
	assert.Equal(t, &Destination{ConnectionID: "conn-9", Namespace: DefaultNamespace}, got.Destination)
}
