package socket

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/task"
)

// Path is the websocket endpoint.
const Path = "/ws/user-session"

// Reserved event names
const (
	EventAck          = "ack"
	EventError        = "error"
	EventConnected    = "connected"
	EventResetService = "reset_service"
)

// Result frame types written by a task sink
const (
	TypeChunk  = "chunk"
	TypeData   = "data"
	TypeStatus = "status"
	TypeError  = "error"
	TypeEnd    = "end"
)

// Payload keys carrying the listener event that results are sent under.
const (
	TaskDataKey         = "taskData"
	ResponseListenerKey = "response_listener_event"
)

// AckStatusReceived is the status of a successful submission ack.
const AckStatusReceived = "received"

var errInvalidItems = errors.New("data must be an object or an array of objects")

// ClientFrame is a message sent by a client. Event names a service, or
// reset_service.
type ClientFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ServerFrame is a message written to a client. Type is set on task result
// frames only.
type ServerFrame struct {
	Event string `json:"event"`
	Type  string `json:"type,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// Ack confirms that a frame's items were queued. Each listener event is
// the event name the corresponding task's results arrive under.
type Ack struct {
	Status                 string   `json:"status"`
	ResponseListenerEvents []string `json:"response_listener_events"`
}

// ErrorData is the body of an error result frame.
type ErrorData struct {
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type resetRequest struct {
	Event string `json:"event"`
}

// splitItems decodes frame data into task payloads. An object yields one
// item and an array yields one per element.
func splitItems(data json.RawMessage) ([]map[string]any, error) {
	if len(data) == 0 {
		return nil, errInvalidItems
	}

	var single map[string]any
	if err := json.Unmarshal(data, &single); err == nil {
		if single == nil {
			return nil, errInvalidItems
		}
		return []map[string]any{single}, nil
	}

	var many []json.RawMessage
	if err := json.Unmarshal(data, &many); err != nil {
		return nil, errInvalidItems
	}
	items := make([]map[string]any, 0, len(many))
	for i, raw := range many {
		var item map[string]any
		if err := json.Unmarshal(raw, &item); err != nil || item == nil {
			return nil, fmt.Errorf("item %d: %w", i, errInvalidItems)
		}
		items = append(items, item)
	}
	return items, nil
}

// ensureListener returns the item's listener event, generating and storing
// one under taskData when the client did not supply it.
func ensureListener(item map[string]any) string {
	taskData, ok := item[TaskDataKey].(map[string]any)
	if !ok {
		taskData = map[string]any{}
		item[TaskDataKey] = taskData
	}
	if event, ok := taskData[ResponseListenerKey].(string); ok && event != "" {
		return event
	}
	event := uuid.NewString()
	taskData[ResponseListenerKey] = event
	return event
}

// ListenerEvent returns the event name results of t are streamed under:
// taskData.response_listener_event, a top-level response_listener_event, or
// the task id.
func ListenerEvent(t *task.Task) string {
	if taskData, ok := t.Payload[TaskDataKey].(map[string]any); ok {
		if event, ok := taskData[ResponseListenerKey].(string); ok && event != "" {
			return event
		}
	}
	if event, ok := t.Payload[ResponseListenerKey].(string); ok && event != "" {
		return event
	}
	return t.ID.String()
}
