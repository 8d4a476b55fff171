package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJWTService(t *testing.T) {
	t.Parallel()

	_, err := NewJWTService(config.AuthConfig{JWTSecret: "short", TokenLifetimeMinutes: 60})
	assert.Error(t, err)

	svc, err := NewJWTService(DefaultJWTConfig())
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestGenerateToken(t *testing.T) {
	t.Parallel()

	fixedTime := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tokenLifetime := 60 * time.Minute
	svc := newHMACJWTService(TestJWTSecret, tokenLifetime, func() time.Time { return fixedTime })

	t.Run("generates valid token", func(t *testing.T) {
		t.Parallel()
		token, err := svc.GenerateToken(context.Background(), "user-1")
		require.NoError(t, err)
		require.NotEmpty(t, token)

		claims, err := svc.ValidateToken(context.Background(), token)
		require.NoError(t, err)

		assert.Equal(t, "user-1", claims.UserID)
		assert.Equal(t, fixedTime.Unix(), claims.IssuedAt.Unix())
		assert.Equal(t, fixedTime.Add(tokenLifetime).Unix(), claims.ExpiresAt.Unix())
		assert.NotEmpty(t, claims.ID)
	})

	t.Run("rejects empty user", func(t *testing.T) {
		t.Parallel()
		_, err := svc.GenerateToken(context.Background(), "")
		assert.ErrorIs(t, err, ErrMissingSubject)
	})
}

func TestValidateToken(t *testing.T) {
	t.Parallel()

	fixedTime := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tokenLifetime := 60 * time.Minute
	wrongSecret := "wrong-secret-that-is-long-enough-for-testing"
	at := func(ts time.Time) func() time.Time { return func() time.Time { return ts } }

	tests := []struct {
		name      string
		setupFunc func() (JWTService, string)
		wantErr   error
	}{
		{
			name: "valid token",
			setupFunc: func() (JWTService, string) {
				svc := newHMACJWTService(TestJWTSecret, tokenLifetime, at(fixedTime))
				token, _ := svc.GenerateToken(context.Background(), "user-1")
				return svc, token
			},
		},
		{
			name: "within clock skew",
			setupFunc: func() (JWTService, string) {
				gen := newHMACJWTService(TestJWTSecret, tokenLifetime, at(fixedTime))
				token, _ := gen.GenerateToken(context.Background(), "user-1")
				val := newHMACJWTService(TestJWTSecret, tokenLifetime, at(fixedTime.Add(tokenLifetime+time.Minute)))
				return val, token
			},
		},
		{
			name: "expired token",
			setupFunc: func() (JWTService, string) {
				gen := newHMACJWTService(TestJWTSecret, tokenLifetime, at(fixedTime))
				token, _ := gen.GenerateToken(context.Background(), "user-1")
				val := newHMACJWTService(TestJWTSecret, tokenLifetime, at(fixedTime.Add(tokenLifetime+time.Hour)))
				return val, token
			},
			wantErr: ErrExpiredToken,
		},
		{
			name: "not yet valid",
			setupFunc: func() (JWTService, string) {
				claims := jwt.RegisteredClaims{
					Subject:   "user-1",
					NotBefore: jwt.NewNumericDate(fixedTime.Add(time.Hour)),
					ExpiresAt: jwt.NewNumericDate(fixedTime.Add(2 * time.Hour)),
				}
				token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(TestJWTSecret))
				return newHMACJWTService(TestJWTSecret, tokenLifetime, at(fixedTime)), token
			},
			wantErr: ErrTokenNotYetValid,
		},
		{
			name: "invalid signature",
			setupFunc: func() (JWTService, string) {
				gen := newHMACJWTService(TestJWTSecret, tokenLifetime, at(fixedTime))
				token, _ := gen.GenerateToken(context.Background(), "user-1")
				return newHMACJWTService(wrongSecret, tokenLifetime, at(fixedTime)), token
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "wrong signing method",
			setupFunc: func() (JWTService, string) {
				claims := jwt.RegisteredClaims{
					Subject:   "user-1",
					ExpiresAt: jwt.NewNumericDate(fixedTime.Add(time.Hour)),
				}
				token, _ := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(TestJWTSecret))
				return newHMACJWTService(TestJWTSecret, tokenLifetime, at(fixedTime)), token
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "missing subject",
			setupFunc: func() (JWTService, string) {
				claims := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(fixedTime.Add(time.Hour))}
				token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(TestJWTSecret))
				return newHMACJWTService(TestJWTSecret, tokenLifetime, at(fixedTime)), token
			},
			wantErr: ErrMissingSubject,
		},
		{
			name: "malformed token",
			setupFunc: func() (JWTService, string) {
				return newHMACJWTService(TestJWTSecret, tokenLifetime, at(fixedTime)), "this.is.not.a.valid.jwt.token"
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "empty token",
			setupFunc: func() (JWTService, string) {
				return newHMACJWTService(TestJWTSecret, tokenLifetime, at(fixedTime)), ""
			},
			wantErr: ErrMissingToken,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc, token := tt.setupFunc()
			claims, err := svc.ValidateToken(context.Background(), token)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, claims)
			} else {
				require.NoError(t, err)
				require.NotNil(t, claims)
				assert.Equal(t, "user-1", claims.UserID)
			}
		})
	}
}
