// Package auth identifies the caller of a request. The session provider is
// external; this package only checks what it hands us.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// UserIDHeader carries the user id asserted by a trusted front end.
const UserIDHeader = "X-User-ID"

var (
	// ErrMissingSecret is returned when a verifier is built without a key.
	ErrMissingSecret = errors.New("jwt secret is required")
	// ErrInvalidToken indicates a bearer token that failed verification.
	ErrInvalidToken = errors.New("invalid token")
)

type contextKey struct{}

// WithUserID stores the authenticated user id on ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

// UserID returns the authenticated user id, or "" for anonymous callers.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// TokenVerifier validates HS256 bearer tokens whose subject is the user id.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier returns a verifier keyed by secret.
func NewTokenVerifier(secret string) (*TokenVerifier, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &TokenVerifier{secret: []byte(secret)}, nil
}

// Verify checks the token signature and expiry and returns its subject.
func (v *TokenVerifier) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return subject, nil
}

// Authenticator resolves the caller from a bearer token or, when trusted,
// the X-User-ID header. Either source may be disabled.
type Authenticator struct {
	verifier    *TokenVerifier
	trustHeader bool
}

// NewAuthenticator combines the configured identity sources. verifier may be
// nil.
func NewAuthenticator(verifier *TokenVerifier, trustHeader bool) *Authenticator {
	return &Authenticator{verifier: verifier, trustHeader: trustHeader}
}

// Identify returns the caller's user id, or "" for an anonymous request. A
// bearer token that is present but invalid yields ErrInvalidToken.
func (a *Authenticator) Identify(r *http.Request) (string, error) {
	if a.verifier != nil {
		if token, ok := bearerToken(r); ok {
			return a.verifier.Verify(token)
		}
	}

	if a.trustHeader {
		return strings.TrimSpace(r.Header.Get(UserIDHeader)), nil
	}
	return "", nil
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
