package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/jatin-dot-py/matrx-microservice-template/internal/api/shared"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/platform/logger"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/service/auth"
)

// TokenQueryParam carries the token for clients that cannot set headers,
// such as browser websocket connections.
const TokenQueryParam = "token"

// AuthMiddleware provides JWT authentication for routes.
type AuthMiddleware struct {
	jwtService auth.JWTService
	isAdmin    func(userID string) bool
}

// NewAuthMiddleware creates a new AuthMiddleware with the given dependencies.
// isAdmin decides access to RequireAdmin routes; nil denies everyone.
func NewAuthMiddleware(jwtService auth.JWTService, isAdmin func(userID string) bool) *AuthMiddleware {
	if isAdmin == nil {
		isAdmin = func(string) bool { return false }
	}
	return &AuthMiddleware{
		jwtService: jwtService,
		isAdmin:    isAdmin,
	}
}

// ExtractToken returns the bearer token from the Authorization header, or
// from the token query parameter when no header is present.
func ExtractToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if token := r.URL.Query().Get(TokenQueryParam); token != "" {
			return token, nil
		}
		return "", auth.ErrMissingToken
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", auth.ErrInvalidToken
	}
	return parts[1], nil
}

// Authenticate validates the request's JWT and adds the user ID to the
// request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := ExtractToken(r)
		if err != nil {
			if errors.Is(err, auth.ErrMissingToken) {
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Authorization header required")
			} else {
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid authorization format")
			}
			return
		}

		claims, err := m.jwtService.ValidateToken(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrExpiredToken):
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Token expired")
			case errors.Is(err, auth.ErrInvalidToken),
				errors.Is(err, auth.ErrTokenNotYetValid),
				errors.Is(err, auth.ErrMissingSubject),
				errors.Is(err, auth.ErrMissingToken):
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid token")
			default:
				shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
					"Authentication error", err)
			}
			return
		}

		ctx := shared.WithUserID(r.Context(), claims.UserID)
		ctx = logger.WithLogger(ctx, logger.FromContext(ctx).With("user_id", claims.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin rejects authenticated users that are not administrators.
// It must run after Authenticate.
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := GetUserID(r)
		if !ok {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
			return
		}
		if !m.isAdmin(userID) {
			shared.RespondWithError(w, r, http.StatusForbidden, "Administrator access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetUserID extracts the user ID from the request context.
// Returns the user ID and a boolean indicating if it was found.
func GetUserID(r *http.Request) (string, bool) {
	return shared.UserIDFromContext(r.Context())
}
