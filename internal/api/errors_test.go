package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/service/auth"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapErrorToStatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		err            error
		expectedStatus int
	}{
		{name: "nil error", err: nil, expectedStatus: http.StatusInternalServerError},
		{name: "invalid token", err: auth.ErrInvalidToken, expectedStatus: http.StatusUnauthorized},
		{name: "wrapped expired token", err: fmt.Errorf("authenticate: %w", auth.ErrExpiredToken), expectedStatus: http.StatusUnauthorized},
		{name: "quota exceeded", err: fmt.Errorf("failed to submit task: %w", task.ErrQuotaExceeded), expectedStatus: http.StatusTooManyRequests},
		{name: "shutdown", err: fmt.Errorf("failed to submit task: %w", task.ErrQueueShutdown), expectedStatus: http.StatusServiceUnavailable},
		{name: "unknown service", err: task.ErrNoHandlerFactory, expectedStatus: http.StatusNotFound},
		{name: "duplicate service", err: task.ErrDuplicateService, expectedStatus: http.StatusConflict},
		{name: "invalid task", err: task.ErrInvalidTask, expectedStatus: http.StatusBadRequest},
		{name: "validation", err: ErrValidation, expectedStatus: http.StatusBadRequest},
		{name: "unknown", err: errors.New("boom"), expectedStatus: http.StatusInternalServerError},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expectedStatus, MapErrorToStatusCode(tc.err))
		})
	}
}

func TestGetSafeErrorMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(nil))
	assert.Equal(t, "Token expired", GetSafeErrorMessage(auth.ErrExpiredToken))
	assert.Equal(t, "Too many tasks in flight, try again later",
		GetSafeErrorMessage(fmt.Errorf("wrap: %w", task.ErrQuotaExceeded)))
	assert.Equal(t, "Unknown service", GetSafeErrorMessage(task.ErrNoHandlerFactory))

	leaky := errors.New("pq: password authentication failed for user admin")
	assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(leaky))
}

func TestSanitizeValidationError(t *testing.T) {
	t.Parallel()

	err := validator.New().Struct(SubmitTaskRequest{})
	require.Error(t, err)
	assert.Equal(t, "Invalid Service: required field", SanitizeValidationError(err))

	negative := -1
	err = validator.New().Struct(SetUserLimitRequest{Limit: &negative})
	require.Error(t, err)
	assert.Equal(t, "Invalid Limit: too small", SanitizeValidationError(err))

	assert.Equal(t, "Validation error", SanitizeValidationError(errors.New("something else")))
}
