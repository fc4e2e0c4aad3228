package server

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/talent-match/internal/config"
)

const testSecret = "test-secret-key-for-jwt-signing-minimum-32-bytes"

func setupTestJWTService(_ *testing.T) *JWTService {
	return NewJWTService(config.AuthConfig{Enabled: true, Secret: testSecret})
}

// signToken stands in for the external identity provider.
func signToken(t *testing.T, method jwt.SigningMethod, secret string, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims(subject, role string) Claims {
	now := time.Now()
	return Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
}

func TestJWTService_ValidateToken(t *testing.T) {
	service := setupTestJWTService(t)

	token := signToken(t, jwt.SigningMethodHS256, testSecret, validClaims("recruiter-1", "recruiter"))
	identity, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "recruiter-1", identity.Subject)
	assert.Equal(t, "recruiter", identity.Role)
}

func TestJWTService_ValidateToken_Rejects(t *testing.T) {
	service := setupTestJWTService(t)

	expired := validClaims("u1", "")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	noExpiry := validClaims("u1", "")
	noExpiry.ExpiresAt = nil

	tests := []struct {
		name    string
		token   string
		wantErr string
	}{
		{"empty", "", "token string is empty"},
		{"malformed", "not.a.valid.jwt.token", "malformed token"},
		{"wrong secret", signToken(t, jwt.SigningMethodHS256, strings.Repeat("x", 40), validClaims("u1", "")), "invalid token signature"},
		{"expired", signToken(t, jwt.SigningMethodHS256, testSecret, expired), "token expired"},
		{"missing expiry", signToken(t, jwt.SigningMethodHS256, testSecret, noExpiry), "failed to parse token"},
		{"other algorithm", signToken(t, jwt.SigningMethodHS512, testSecret, validClaims("u1", "")), "invalid token signature"},
		{"no subject", signToken(t, jwt.SigningMethodHS256, testSecret, validClaims("", "")), "token has no subject"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity, err := service.ValidateToken(tt.token)
			require.Error(t, err)
			assert.Nil(t, identity)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestJWTService_Leeway(t *testing.T) {
	service := NewJWTService(config.AuthConfig{Enabled: true, Secret: testSecret, Leeway: time.Minute})

	claims := validClaims("u1", "")
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-10 * time.Second))
	_, err := service.ValidateToken(signToken(t, jwt.SigningMethodHS256, testSecret, claims))
	assert.NoError(t, err)
}
