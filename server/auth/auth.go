// Package auth issues and verifies the JWT access tokens accepted by the
// REST routes and the chat WebSocket.
package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/staffsense/staffsense/store"
)

const (
	// Issuer is the `iss` claim on every token this server signs.
	Issuer = "staffsense"
	// KeyID identifies the signing key in the token header.
	KeyID = "v1"
	// AccessTokenDuration is the default token lifetime.
	AccessTokenDuration = 7 * 24 * time.Hour
)

// ClaimsMessage is the payload of a signed access token. The user ID rides
// in the registered Subject claim.
type ClaimsMessage struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// GenerateAccessToken signs a token for the given user. A zero expiration
// produces a non-expiring token.
func GenerateAccessToken(username string, userID int32, expirationTime time.Time, secret []byte) (string, error) {
	registeredClaims := jwt.RegisteredClaims{
		Issuer:   Issuer,
		IssuedAt: jwt.NewNumericDate(time.Now()),
		Subject:  itoa(userID),
	}
	if !expirationTime.IsZero() {
		registeredClaims.ExpiresAt = jwt.NewNumericDate(expirationTime)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &ClaimsMessage{
		Name:             username,
		RegisteredClaims: registeredClaims,
	})
	token.Header["kid"] = KeyID
	return token.SignedString(secret)
}

// Authenticate verifies tokenString and resolves it to an active user.
func Authenticate(ctx context.Context, st *store.Store, tokenString string, secret []byte) (*store.User, error) {
	if tokenString == "" {
		return nil, errors.New("access token not found")
	}

	claims := &ClaimsMessage{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		if kid, ok := t.Header["kid"].(string); !ok || kid != KeyID {
			return nil, errors.New("unexpected key id")
		}
		return secret, nil
	}, jwt.WithIssuer(Issuer))
	if err != nil {
		return nil, errors.Wrap(err, "invalid access token")
	}

	userID, err := atoi32(claims.Subject)
	if err != nil {
		return nil, errors.Wrap(err, "malformed token subject")
	}

	user, err := st.GetUser(ctx, &store.FindUser{ID: &userID})
	if err != nil {
		return nil, errors.Wrap(err, "failed to look up token user")
	}
	if user == nil {
		return nil, errors.Errorf("user %d not found", userID)
	}
	if user.RowStatus == store.Archived {
		return nil, errors.Errorf("user %q is archived", user.Username)
	}
	return user, nil
}

// TokenFromRequest pulls the access token from the Authorization header, or
// from the `token` query parameter for WebSocket clients that cannot set
// headers.
func TokenFromRequest(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
