package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrNoHandler is returned when an event has no handler that could take it.
var ErrNoHandler = errors.New("no handler registered for event")

// AnyType registers a handler for every event type.
const AnyType = "*"

// InMemoryEventEmitter delivers events synchronously to handlers registered
// in memory, so handler errors such as quota rejections reach the emitter.
type InMemoryEventEmitter struct {
	handlers map[string][]EventHandler
	mu       sync.RWMutex
	logger   *slog.Logger
}

// NewInMemoryEventEmitter creates a new instance of InMemoryEventEmitter.
func NewInMemoryEventEmitter(logger *slog.Logger) *InMemoryEventEmitter {
	return &InMemoryEventEmitter{
		handlers: make(map[string][]EventHandler),
		logger:   logger.With("component", "event_emitter"),
	}
}

// RegisterHandler adds a handler that receives every event.
func (e *InMemoryEventEmitter) RegisterHandler(handler EventHandler) {
	e.RegisterTypeHandler(AnyType, handler)
}

// RegisterTypeHandler adds a handler for events of one type.
func (e *InMemoryEventEmitter) RegisterTypeHandler(eventType string, handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[eventType] = append(e.handlers[eventType], handler)
	e.logger.Debug("registered event handler",
		"event_type", eventType,
		"handler_count", len(e.handlers[eventType]))
}

// EmitEvent publishes the event to the handlers of its type followed by the
// catch-all handlers. Every handler sees the event; the first error is
// returned. ErrNoHandler is returned when nobody is registered.
func (e *InMemoryEventEmitter) EmitEvent(ctx context.Context, event *TaskRequestEvent) error {
	e.mu.RLock()
	handlers := make([]EventHandler, 0, len(e.handlers[event.Type])+len(e.handlers[AnyType]))
	handlers = append(handlers, e.handlers[event.Type]...)
	if event.Type != AnyType {
		handlers = append(handlers, e.handlers[AnyType]...)
	}
	e.mu.RUnlock()

	if len(handlers) == 0 {
		e.logger.Warn("no handlers registered for event",
			"event_id", event.ID,
			"event_type", event.Type)
		return ErrNoHandler
	}

	var firstErr error
	for i, handler := range handlers {
		if err := handler.HandleEvent(ctx, event); err != nil {
			e.logger.Debug("handler failed to process event",
				"error", err,
				"handler_index", i,
				"event_id", event.ID,
				"event_type", event.Type,
				"user_id", event.UserID)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}
