package auth

import (
	"context"
	"testing"

	"github.com/jatin-dot-py/matrx-microservice-template/internal/config"
	"github.com/stretchr/testify/require"
)

// TestJWTSecret is the signing secret used by DefaultJWTConfig.
const TestJWTSecret = "test-jwt-secret-that-is-32-chars-long"

// DefaultJWTConfig returns a standard configuration for JWT authentication suitable for testing.
func DefaultJWTConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:            TestJWTSecret,
		TokenLifetimeMinutes: 60,
	}
}

// RequireTestJWTService creates a test JWT service and uses require to handle errors.
func RequireTestJWTService(t *testing.T) JWTService {
	t.Helper()
	service, err := NewJWTService(DefaultJWTConfig())
	require.NoError(t, err, "Failed to create test JWT service")
	return service
}

// GenerateAuthHeaderForTestingT creates a Bearer Authorization header for
// userID and fails the test if token generation fails.
func GenerateAuthHeaderForTestingT(t *testing.T, svc JWTService, userID string) string {
	t.Helper()
	token, err := svc.GenerateToken(context.Background(), userID)
	require.NoError(t, err, "Failed to generate auth token")
	return "Bearer " + token
}
