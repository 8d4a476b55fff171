package mocks

import (
	"context"

	"github.com/jatin-dot-py/matrx-microservice-template/internal/task"
	"github.com/stretchr/testify/mock"
)

// TestifyMockTaskService is a testify mock of the task runner surface used
// by the HTTP handlers. Submit options are not passed to Called; the
// returned task is built from the call arguments when the expectation
// returns nil.
type TestifyMockTaskService struct {
	mock.Mock
}

func (m *TestifyMockTaskService) submitted(method, userID, serviceName string, payload map[string]any, opts []task.SubmitOption) (*task.Task, error) {
	args := m.MethodCalled(method, userID, serviceName, payload)
	if err := args.Error(1); err != nil {
		return nil, err
	}
	if t, ok := args.Get(0).(*task.Task); ok {
		return t, nil
	}
	t := task.New(userID, serviceName, payload)
	for _, opt := range opts {
		opt(t)
	}
	if method == "SubmitBackground" {
		t.Priority = task.BackgroundPriority
	}
	return t, nil
}

// Submit is a mock implementation of TaskRunner.Submit
func (m *TestifyMockTaskService) Submit(_ context.Context, userID, serviceName string, payload map[string]any, opts ...task.SubmitOption) (*task.Task, error) {
	return m.submitted("Submit", userID, serviceName, payload, opts)
}

// SubmitBackground is a mock implementation of TaskRunner.SubmitBackground
func (m *TestifyMockTaskService) SubmitBackground(_ context.Context, userID, serviceName string, payload map[string]any, opts ...task.SubmitOption) (*task.Task, error) {
	return m.submitted("SubmitBackground", userID, serviceName, payload, opts)
}

// SetUserLimit is a mock implementation of TaskRunner.SetUserLimit
func (m *TestifyMockTaskService) SetUserLimit(userID string, limit int) {
	m.Called(userID, limit)
}

// UserLimit is a mock implementation of TaskRunner.UserLimit
func (m *TestifyMockTaskService) UserLimit(userID string) int {
	return m.Called(userID).Int(0)
}

// ResetService is a mock implementation of TaskRunner.ResetService
func (m *TestifyMockTaskService) ResetService(userID, event string) bool {
	return m.Called(userID, event).Bool(0)
}

// HasService is a mock implementation of TaskRunner.HasService
func (m *TestifyMockTaskService) HasService(serviceName string) bool {
	return m.Called(serviceName).Bool(0)
}

// Stats is a mock implementation of TaskRunner.Stats
func (m *TestifyMockTaskService) Stats() task.Stats {
	if stats, ok := m.Called().Get(0).(task.Stats); ok {
		return stats
	}
	return task.Stats{}
}
