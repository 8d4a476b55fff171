package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/api/shared"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/service/auth"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/task"
)

// ErrUnauthorized is used when a handler runs without an authenticated user.
var ErrUnauthorized = errors.New("unauthorized")

// ErrValidation marks request validation failures.
var ErrValidation = errors.New("validation failed")

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	var validationErrs validator.ValidationErrors

	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrMissingSubject),
		errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized

	case errors.Is(err, task.ErrQuotaExceeded):
		return http.StatusTooManyRequests

	case errors.Is(err, task.ErrQueueShutdown),
		errors.Is(err, task.ErrExecutorClosed):
		return http.StatusServiceUnavailable

	case errors.Is(err, task.ErrNoHandlerFactory):
		return http.StatusNotFound

	case errors.Is(err, task.ErrDuplicateService):
		return http.StatusConflict

	case errors.Is(err, task.ErrInvalidTask),
		errors.Is(err, ErrValidation),
		errors.Is(err, shared.ErrEmptyBody),
		errors.As(err, &validationErrs):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"

	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingSubject):
		return "Invalid token"

	case errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, ErrUnauthorized):
		return "Authentication required"

	case errors.Is(err, task.ErrQuotaExceeded):
		return "Too many tasks in flight, try again later"

	case errors.Is(err, task.ErrQueueShutdown),
		errors.Is(err, task.ErrExecutorClosed):
		return "Service is shutting down"

	case errors.Is(err, task.ErrNoHandlerFactory):
		return "Unknown service"

	case errors.Is(err, task.ErrInvalidTask):
		return "Invalid task"

	case errors.Is(err, shared.ErrEmptyBody):
		return "Request body is required"

	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes the status and message for err. A non-empty
// message replaces the default safe message; validation errors are
// sanitized so field details survive but internals do not.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, message string) {
	status := MapErrorToStatusCode(err)

	if message == "" {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			message = SanitizeValidationError(err)
		} else {
			message = GetSafeErrorMessage(err)
		}
	}

	shared.RespondWithErrorAndLog(w, r, status, message, err)
}

// SanitizeValidationError removes sensitive details from validation errors
// and returns a user-friendly message.
func SanitizeValidationError(err error) string {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		fe := validationErrs[0]
		return fmt.Sprintf("Invalid %s: %s", fe.Field(), getValidationTagMessage(fe.Tag()))
	}

	errMsg := err.Error()
	if strings.Contains(errMsg, "Field validation") {
		// Example format: "Key: 'SubmitTaskRequest.Service' Error:Field validation for 'Service' failed on the 'required' tag"
		parts := strings.Split(errMsg, "Error:")
		if len(parts) >= 2 {
			fieldParts := strings.Split(parts[1], "'")
			if len(fieldParts) >= 3 {
				field := fieldParts[1]
				if len(fieldParts) >= 5 {
					return fmt.Sprintf("Invalid %s: %s", field, getValidationTagMessage(fieldParts[3]))
				}
				return fmt.Sprintf("Invalid %s", field)
			}
		}
	}

	return "Validation error"
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min", "gte":
		return "too small"
	case "max", "lte":
		return "too large"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}
