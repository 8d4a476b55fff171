package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/api/shared"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/platform/logger"
)

// getUserIDFromContext extracts the authenticated user's ID from the request context.
// The user ID is expected to be placed in the context by the authentication middleware.
func getUserIDFromContext(r *http.Request) (string, bool) {
	return shared.UserIDFromContext(r.Context())
}

// handleUserIDFromContext extracts the user ID and writes a 401 when it is
// missing.
func handleUserIDFromContext(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := getUserIDFromContext(r)
	if !ok {
		requestLogger(r).Warn("user ID not found in request context")
		HandleAPIError(w, r, ErrUnauthorized, "User ID not found or invalid")
		return "", false
	}
	return userID, true
}

// getPathParam extracts a required URL path parameter.
func getPathParam(r *http.Request, name string) (string, error) {
	value := chi.URLParam(r, name)
	if value == "" {
		return "", fmt.Errorf("%w: %s is required", ErrValidation, name)
	}
	return value, nil
}

// parseAndValidateRequest decodes the JSON body into req and validates it.
// It writes a 400 and returns false on failure.
func parseAndValidateRequest(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	if err := shared.DecodeJSON(r, req); err != nil {
		message := "Invalid request format"
		if errors.Is(err, shared.ErrEmptyBody) {
			message = "Request body is required"
		}
		HandleAPIError(w, r, fmt.Errorf("%w: %v", ErrValidation, err), message)
		return false
	}

	if err := shared.ValidateRequest(req); err != nil {
		HandleAPIError(w, r, err, "")
		return false
	}
	return true
}

func requestLogger(r *http.Request) *slog.Logger {
	return logger.FromContextOrDefault(r.Context(), slog.Default())
}
