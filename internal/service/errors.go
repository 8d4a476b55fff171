package service

import "errors"

// Common service errors. Handlers return them wrapped with %w; the
// dispatcher reports the message to the task's sink.
var (
	// ErrUnknownTask is returned when a payload names a task the service
	// does not implement.
	ErrUnknownTask = errors.New("unknown task")

	// ErrInvalidPayload is returned when a payload cannot be decoded into
	// the service's request type or fails validation.
	ErrInvalidPayload = errors.New("invalid payload")
)
