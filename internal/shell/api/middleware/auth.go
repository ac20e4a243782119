// Package middleware provides HTTP middleware for the Skiff API.
package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/calfort/skiff/internal/core/auth"
	"github.com/calfort/skiff/internal/core/domain"
)

// =============================================================================
// Token Source Interface
// =============================================================================

// TokenSource lists stored API tokens for verification.
// The store implements this interface.
type TokenSource interface {
	ListAPITokens(ctx context.Context) ([]domain.APIToken, error)
}

// =============================================================================
// Auth Configuration
// =============================================================================

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	// Enabled toggles token verification. When false every request passes
	// through with an unauthenticated principal, suitable for local use.
	Enabled bool

	// Tokens supplies the stored token hashes to verify against.
	Tokens TokenSource

	// Logger for auth middleware logging.
	Logger *slog.Logger
}

// =============================================================================
// Auth Middleware
// =============================================================================

// AuthMiddleware verifies Bearer tokens and stores the resulting principal
// in the request context.
type AuthMiddleware struct {
	config AuthConfig
}

// NewAuthMiddleware creates a new auth middleware with the given config.
func NewAuthMiddleware(cfg AuthConfig) *AuthMiddleware {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &AuthMiddleware{config: cfg}
}

// Handler returns the middleware handler function. It never rejects a
// request on its own; pair it with RequireAuth for protected endpoints.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := auth.Principal{}

		if !m.config.Enabled {
			principal.Authenticated = true
			r = r.WithContext(auth.WithPrincipal(r.Context(), principal))
			next.ServeHTTP(w, r)
			return
		}

		token, err := auth.ParseBearer(r.Header.Get("Authorization"))
		if err == nil {
			principal = m.resolve(r.Context(), token)
		}

		r = r.WithContext(auth.WithPrincipal(r.Context(), principal))
		next.ServeHTTP(w, r)
	})
}

// resolve compares the presented token against every stored hash. Token
// counts are expected to be small (a handful per installation), so the
// linear bcrypt scan is acceptable.
func (m *AuthMiddleware) resolve(ctx context.Context, token string) auth.Principal {
	stored, err := m.config.Tokens.ListAPITokens(ctx)
	if err != nil {
		m.config.Logger.Error("failed to list API tokens", "error", err)
		return auth.Principal{}
	}

	for _, t := range stored {
		if auth.VerifyToken(token, t.Hash) == nil {
			return auth.Principal{
				TokenID:       t.ID,
				Name:          t.Name,
				Authenticated: true,
			}
		}
	}

	return auth.Principal{}
}

// =============================================================================
// Require Auth Middleware
// =============================================================================

// RequireAuth rejects requests that did not present a valid token.
// Must be used AFTER AuthMiddleware.
func RequireAuth(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := auth.FromContext(r.Context())

			if !principal.Authenticated {
				logger.Warn("unauthenticated request to protected endpoint",
					"remote_addr", r.RemoteAddr,
					"path", r.URL.Path,
					"method", r.Method,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// =============================================================================
// JSON Error Response
// =============================================================================

type authError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSONError(w http.ResponseWriter, status int, code, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(authError{
		Error: detail,
		Code:  code,
	})
}
