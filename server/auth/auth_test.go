package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAccessToken(t *testing.T) {
	secret := []byte("test-secret")

	tokenString, err := GenerateAccessToken("planner", 42, time.Now().Add(time.Hour), secret)
	require.NoError(t, err)

	claims := &ClaimsMessage{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	})
	require.NoError(t, err)
	assert.True(t, token.Valid)
	assert.Equal(t, "planner", claims.Name)
	assert.Equal(t, "42", claims.Subject)
	assert.Equal(t, Issuer, claims.Issuer)
	assert.Equal(t, KeyID, token.Header["kid"])
}

func TestGenerateAccessTokenWrongSecretRejected(t *testing.T) {
	tokenString, err := GenerateAccessToken("planner", 42, time.Now().Add(time.Hour), []byte("secret-a"))
	require.NoError(t, err)

	_, err = jwt.ParseWithClaims(tokenString, &ClaimsMessage{}, func(t *jwt.Token) (any, error) {
		return []byte("secret-b"), nil
	})
	assert.Error(t, err)
}

func TestGenerateAccessTokenExpired(t *testing.T) {
	secret := []byte("test-secret")
	tokenString, err := GenerateAccessToken("planner", 42, time.Now().Add(-time.Minute), secret)
	require.NoError(t, err)

	_, err = jwt.ParseWithClaims(tokenString, &ClaimsMessage{}, func(t *jwt.Token) (any, error) {
		return secret, nil
	})
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/v1/conversations", nil)
	r.Header.Set("Authorization", "Bearer abc123")
	assert.Equal(t, "abc123", TokenFromRequest(r))

	r = httptest.NewRequest("GET", "/ws/chat?token=xyz789", nil)
	assert.Equal(t, "xyz789", TokenFromRequest(r))

	r = httptest.NewRequest("GET", "/healthz", nil)
	assert.Equal(t, "", TokenFromRequest(r))
}
