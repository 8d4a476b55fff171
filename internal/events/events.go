package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskRequestEvent is produced by a transport when a client asks for work.
// Type is the service name the work is addressed to. The event carries
// routing data as plain values so transports never import the task package.
type TaskRequestEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type is the requested service (event name)
	Type string `json:"type"`

	// UserID identifies the authenticated caller
	UserID string `json:"user_id"`

	// Priority overrides the default interactive priority when non-zero
	Priority int `json:"priority,omitempty"`

	// Background routes the task to the background queue
	Background bool `json:"background,omitempty"`

	// Sync runs the handler on the blocking executor
	Sync bool `json:"sync,omitempty"`

	// ConnectionID and Namespace address the client connection that
	// results should stream back to
	ConnectionID string `json:"connection_id,omitempty"`
	Namespace    string `json:"namespace,omitempty"`

	// Payload contains the task-specific data serialized as JSON
	Payload json.RawMessage `json:"payload"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// Option customizes a TaskRequestEvent.
type Option func(*TaskRequestEvent)

// ForUser sets the requesting user.
func ForUser(userID string) Option {
	return func(e *TaskRequestEvent) { e.UserID = userID }
}

// FromConnection addresses results to a client connection.
func FromConnection(connectionID, namespace string) Option {
	return func(e *TaskRequestEvent) {
		e.ConnectionID = connectionID
		e.Namespace = namespace
	}
}

// WithPriority sets an explicit priority.
func WithPriority(priority int) Option {
	return func(e *TaskRequestEvent) { e.Priority = priority }
}

// AsBackground routes the event to the background queue.
func AsBackground() Option {
	return func(e *TaskRequestEvent) { e.Background = true }
}

// AsSync marks the handler call as blocking.
func AsSync() Option {
	return func(e *TaskRequestEvent) { e.Sync = true }
}

// NewTaskRequestEvent creates a new TaskRequestEvent with the specified type and payload.
func NewTaskRequestEvent(eventType string, payload interface{}, opts ...Option) (*TaskRequestEvent, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event payload: %w", err)
	}

	event := &TaskRequestEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Payload:   payloadBytes,
		CreatedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(event)
	}
	return event, nil
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *TaskRequestEvent) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// PayloadMap decodes the payload as a JSON object. An empty or null
// payload yields an empty map.
func (e *TaskRequestEvent) PayloadMap() (map[string]any, error) {
	trimmed := bytes.TrimSpace(e.Payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return map[string]any{}, nil
	}

	var m map[string]any
	if err := e.UnmarshalPayload(&m); err != nil {
		return nil, fmt.Errorf("event payload must be a JSON object: %w", err)
	}
	return m, nil
}

// EventHandler defines an interface for components that can handle events.
// Handlers are responsible for processing events and taking appropriate actions.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *TaskRequestEvent) error
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(ctx context.Context, event *TaskRequestEvent) error

// HandleEvent calls f.
func (f EventHandlerFunc) HandleEvent(ctx context.Context, event *TaskRequestEvent) error {
	return f(ctx, event)
}

// EventEmitter defines an interface for components that can emit events.
// This allows transports to publish events without direct knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *TaskRequestEvent) error
}
