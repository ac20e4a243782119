// Package auth provides API token verification and request authentication
// context for the build service.
package auth

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrEmptyToken is returned when no token is presented.
	ErrEmptyToken = errors.New("empty token")

	// ErrTokenMismatch is returned when the token does not match any stored hash.
	ErrTokenMismatch = errors.New("token does not match")

	// ErrTokenTooLong is returned when the token exceeds bcrypt's input limit.
	ErrTokenTooLong = errors.New("token exceeds 72 bytes")
)

// =============================================================================
// Token Hashing
// =============================================================================

// HashToken hashes an API token for storage at rest. Only the hash is ever
// persisted; the plaintext token is shown once at creation time.
func HashToken(token string) (string, error) {
	if token == "" {
		return "", ErrEmptyToken
	}
	if len(token) > 72 {
		return "", ErrTokenTooLong
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyToken compares a presented token against a stored hash.
func VerifyToken(token, hash string) error {
	if token == "" {
		return ErrEmptyToken
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)); err != nil {
		return ErrTokenMismatch
	}
	return nil
}

// =============================================================================
// Bearer Extraction
// =============================================================================

// ParseBearer extracts the token from an Authorization header value.
func ParseBearer(header string) (string, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", ErrEmptyToken
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", ErrEmptyToken
	}
	return token, nil
}

// =============================================================================
// Request Context
// =============================================================================

type contextKey string

const principalContextKey contextKey = "principal"

// Principal identifies an authenticated API caller.
type Principal struct {
	// TokenID is the stored token's ID.
	TokenID string

	// Name is the token's human-assigned label (e.g. "ci", "laptop").
	Name string

	// Authenticated indicates whether the request presented a valid token.
	Authenticated bool
}

// WithPrincipal stores the principal in the request context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// FromContext extracts the principal from the request context.
// Returns a zero Principal if none is stored.
func FromContext(ctx context.Context) Principal {
	p, ok := ctx.Value(principalContextKey).(Principal)
	if !ok {
		return Principal{}
	}
	return p
}
