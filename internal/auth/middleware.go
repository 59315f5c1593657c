package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gatehouselabs/gatehouse/internal/models"
	"github.com/gatehouselabs/gatehouse/internal/session"
)

// contextKey is a custom type for context keys
type contextKey string

// SessionContextKey is the key for storing the resolved session in context
const SessionContextKey contextKey = "session"

// RequireSession validates the bearer session token and resolves it against
// the session authority. A signature-valid JWT whose session was revoked or
// expired is rejected; the authority is the source of truth.
func RequireSession(tm *TokenManager, authority *session.Authority) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "invalid authorization header format", http.StatusUnauthorized)
				return
			}

			claims, err := tm.ValidateToken(parts[1])
			if err != nil {
				http.Error(w, "invalid or expired token", http.StatusUnauthorized)
				return
			}

			sess, ok := authority.Session(claims.SessionID)
			if !ok {
				http.Error(w, "session not found or expired", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), SessionContextKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext extracts the resolved session from request context.
func SessionFromContext(r *http.Request) *models.Session {
	sess, ok := r.Context().Value(SessionContextKey).(*models.Session)
	if !ok {
		return nil
	}
	return sess
}
