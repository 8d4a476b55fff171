package api

import (
	"context"
	"net/http"

	"github.com/jatin-dot-py/matrx-microservice-template/internal/api/shared"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/task"
)

// TaskService is the part of the task runner the HTTP API drives.
type TaskService interface {
	Submit(ctx context.Context, userID, serviceName string, payload map[string]any, opts ...task.SubmitOption) (*task.Task, error)
	SubmitBackground(ctx context.Context, userID, serviceName string, payload map[string]any, opts ...task.SubmitOption) (*task.Task, error)
	SetUserLimit(userID string, limit int)
	UserLimit(userID string) int
	ResetService(userID, event string) bool
	HasService(serviceName string) bool
	Stats() task.Stats
}

// ServiceLister reports the registered service names.
type ServiceLister interface {
	Names() []string
}

// TaskHandler handles task submission and runner administration requests.
type TaskHandler struct {
	tasks    TaskService
	services ServiceLister
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(tasks TaskService, services ServiceLister) *TaskHandler {
	return &TaskHandler{
		tasks:    tasks,
		services: services,
	}
}

// SubmitTask handles POST /api/v1/tasks. The task is queued for the
// authenticated user and 202 Accepted is returned with its id.
func (h *TaskHandler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := handleUserIDFromContext(w, r)
	if !ok {
		return
	}

	var req SubmitTaskRequest
	if !parseAndValidateRequest(w, r, &req) {
		return
	}

	if !h.tasks.HasService(req.Service) {
		HandleAPIError(w, r, task.ErrNoHandlerFactory, "")
		return
	}

	var opts []task.SubmitOption
	if req.Priority != nil {
		opts = append(opts, task.WithPriority(*req.Priority))
	}
	if req.ConnectionID != "" {
		opts = append(opts, task.WithDestination(req.ConnectionID, task.DefaultNamespace))
	}
	if req.Sync {
		opts = append(opts, task.WithSync())
	}

	submit := h.tasks.Submit
	if req.Background {
		submit = h.tasks.SubmitBackground
	}

	t, err := submit(r.Context(), userID, req.Service, req.Payload, opts...)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	requestLogger(r).Debug("task submitted",
		"task_id", t.ID,
		"service", t.ServiceName,
		"queue", t.Queue(),
		"priority", t.Priority)

	shared.RespondWithJSON(w, r, http.StatusAccepted, taskToResponse(t))
}

// SetUserLimit handles PUT /api/v1/admin/users/{userID}/limit.
func (h *TaskHandler) SetUserLimit(w http.ResponseWriter, r *http.Request) {
	target, err := getPathParam(r, "userID")
	if err != nil {
		HandleAPIError(w, r, err, "User ID is required")
		return
	}

	var req SetUserLimitRequest
	if !parseAndValidateRequest(w, r, &req) {
		return
	}

	h.tasks.SetUserLimit(target, *req.Limit)
	shared.RespondWithNoContent(w)
}

// GetUserLimit handles GET /api/v1/admin/users/{userID}/limit.
func (h *TaskHandler) GetUserLimit(w http.ResponseWriter, r *http.Request) {
	target, err := getPathParam(r, "userID")
	if err != nil {
		HandleAPIError(w, r, err, "User ID is required")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, UserLimitResponse{
		UserID: target,
		Limit:  h.tasks.UserLimit(target),
	})
}

// ResetService handles POST /api/v1/services/{event}/reset. The caller's
// cached instance for the event is dropped; resetting an event with no
// cached instance succeeds as well.
func (h *TaskHandler) ResetService(w http.ResponseWriter, r *http.Request) {
	userID, ok := handleUserIDFromContext(w, r)
	if !ok {
		return
	}

	event, err := getPathParam(r, "event")
	if err != nil {
		HandleAPIError(w, r, err, "Event is required")
		return
	}

	reset := h.tasks.ResetService(userID, event)
	requestLogger(r).Debug("service reset requested", "event", event, "evicted", reset)
	shared.RespondWithNoContent(w)
}

// GetStats handles GET /api/v1/stats.
func (h *TaskHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{Stats: h.tasks.Stats()}
	if h.services != nil {
		resp.Services = h.services.Names()
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}
