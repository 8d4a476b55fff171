package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jatin-dot-py/matrx-microservice-template/internal/events"
)

// taskSubmitter is the part of TaskRunner the event handler needs.
type taskSubmitter interface {
	Submit(ctx context.Context, userID, serviceName string, payload map[string]any, opts ...SubmitOption) (*Task, error)
	SubmitBackground(ctx context.Context, userID, serviceName string, payload map[string]any, opts ...SubmitOption) (*Task, error)
}

// SubmitEventHandler implements events.EventHandler by turning task request
// events into queued tasks. Submission errors, including quota rejections,
// are returned to the emitter.
type SubmitEventHandler struct {
	runner taskSubmitter
	logger *slog.Logger
}

// NewSubmitEventHandler creates an event handler that submits to runner.
func NewSubmitEventHandler(runner taskSubmitter, logger *slog.Logger) *SubmitEventHandler {
	return &SubmitEventHandler{
		runner: runner,
		logger: logger.With("component", "submit_event_handler"),
	}
}

// HandleEvent decodes the event payload and submits it as a task.
func (h *SubmitEventHandler) HandleEvent(ctx context.Context, event *events.TaskRequestEvent) error {
	payload, err := event.PayloadMap()
	if err != nil {
		h.logger.Debug("rejecting event with invalid payload",
			"event_id", event.ID,
			"event_type", event.Type,
			"error", err)
		return fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}

	var opts []SubmitOption
	if event.ConnectionID != "" {
		opts = append(opts, WithDestination(event.ConnectionID, event.Namespace))
	}
	if event.Priority != 0 {
		opts = append(opts, WithPriority(event.Priority))
	}
	if event.Sync {
		opts = append(opts, WithSync())
	}

	submit := h.runner.Submit
	if event.Background {
		submit = h.runner.SubmitBackground
	}

	t, err := submit(ctx, event.UserID, event.Type, payload, opts...)
	if err != nil {
		return err
	}

	h.logger.Debug("event submitted as task",
		"event_id", event.ID,
		"task_id", t.ID,
		"service", t.ServiceName,
		"user_id", t.UserID,
		"queue", t.Queue())
	return nil
}
