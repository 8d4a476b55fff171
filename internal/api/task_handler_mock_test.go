package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/jatin-dot-py/matrx-microservice-template/internal/mocks"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestTaskHandlerCallsRunner(t *testing.T) {
	t.Parallel()

	svc := new(mocks.TestifyMockTaskService)
	svc.On("HasService", "scrape_service").Return(true)
	svc.On("SubmitBackground", "user-1", "scrape_service", mock.Anything).Return(nil, nil)
	svc.On("SetUserLimit", "user-2", 0).Return()
	svc.On("UserLimit", "user-2").Return(0)
	svc.On("ResetService", "user-1", "scrape_service").Return(false)

	router := newTestRouter(NewTaskHandler(svc, nil))

	rec := doRequest(t, router, http.MethodPost, "/api/v1/tasks",
		`{"service":"scrape_service","background":true,"payload":{"task":"quick_scrape"}}`, "user-1")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var submitted SubmitTaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitted))
	assert.Equal(t, task.BackgroundPriority, submitted.Priority)

	rec = doRequest(t, router, http.MethodPut, "/api/v1/admin/users/user-2/limit", `{"limit":0}`, "admin")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/v1/admin/users/user-2/limit", "", "admin")
	require.Equal(t, http.StatusOK, rec.Code)
	var limit UserLimitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &limit))
	assert.Equal(t, 0, limit.Limit)

	rec = doRequest(t, router, http.MethodPost, "/api/v1/services/scrape_service/reset", "", "user-1")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	svc.AssertExpectations(t)
}

func TestTaskHandlerUnknownServiceNeverSubmits(t *testing.T) {
	t.Parallel()

	svc := new(mocks.TestifyMockTaskService)
	svc.On("HasService", "nope").Return(false)

	router := newTestRouter(NewTaskHandler(svc, nil))
	rec := doRequest(t, router, http.MethodPost, "/api/v1/tasks", `{"service":"nope"}`, "user-1")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	svc.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything)
	svc.AssertExpectations(t)
}
