package api

import (
	"time"

	"github.com/jatin-dot-py/matrx-microservice-template/internal/task"
)

// SubmitTaskRequest is the body of POST /api/v1/tasks.
type SubmitTaskRequest struct {
	// Service is the registered service (event) name that handles the task
	Service string `json:"service" validate:"required,max=128"`

	// Priority overrides the default interactive priority. Lower runs first.
	// Ignored for background tasks.
	Priority *int `json:"priority,omitempty" validate:"omitempty,gte=0"`

	// Payload is handed to the service unchanged
	Payload map[string]any `json:"payload"`

	// Background queues the task as fire-and-forget work
	Background bool `json:"background,omitempty"`

	// Sync runs the handler on the blocking executor
	Sync bool `json:"sync,omitempty"`

	// ConnectionID streams results to one of the caller's socket connections
	ConnectionID string `json:"connection_id,omitempty" validate:"omitempty,uuid"`
}

// SubmitTaskResponse is returned with 202 Accepted.
type SubmitTaskResponse struct {
	TaskID     string    `json:"task_id"`
	Service    string    `json:"service"`
	Queue      string    `json:"queue"`
	Priority   int       `json:"priority"`
	SubmitTime time.Time `json:"submit_time"`
}

// SetUserLimitRequest is the body of PUT /api/v1/admin/users/{userID}/limit.
type SetUserLimitRequest struct {
	// Limit must be present; zero blocks new submissions for the user
	Limit *int `json:"limit" validate:"required,gte=0"`
}

// UserLimitResponse reports a user's effective in-flight limit.
type UserLimitResponse struct {
	UserID string `json:"user_id"`
	Limit  int    `json:"limit"`
}

// StatsResponse is the body of GET /api/v1/stats.
type StatsResponse struct {
	task.Stats
	Services []string `json:"services"`
}

func taskToResponse(t *task.Task) SubmitTaskResponse {
	return SubmitTaskResponse{
		TaskID:     t.ID.String(),
		Service:    t.ServiceName,
		Queue:      string(t.Queue()),
		Priority:   t.Priority,
		SubmitTime: t.SubmitTime,
	}
}
