package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labforge/trackd/internal/models"
	pkghttp "github.com/labforge/trackd/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// UserContextKey is the key for storing user claims in context
	UserContextKey contextKey = "user"
)

// SessionValidator checks that the session named by a credential is
// still live, refreshing its activity timestamp on success.
type SessionValidator interface {
	ValidateSession(ctx context.Context, sessionID string) (*models.Session, error)
}

// Middleware validates bearer credentials and the backing session, then
// injects the claims into the request context. Any session problem maps
// to the same re-authenticate response; the cause is logged elsewhere.
func Middleware(tm *TokenManager, sessions SessionValidator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := BearerToken(r)
			if !ok {
				pkghttp.WriteUnauthorized(w, "missing or malformed authorization header")
				return
			}

			claims, err := tm.ValidateToken(tokenString)
			if err != nil {
				pkghttp.WriteUnauthorized(w, "invalid or expired token")
				return
			}

			if _, err := sessions.ValidateSession(r.Context(), claims.SessionID); err != nil {
				if errors.Is(err, models.ErrSessionExpired) || errors.Is(err, models.ErrNotFound) {
					pkghttp.WriteUnauthorized(w, "session expired, please re-authenticate")
					return
				}
				pkghttp.WriteInternalError(w, "unable to verify session")
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole enforces role-based access on top of Middleware.
func RequireRole(role models.Role) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetUserFromContext(r)
			if claims == nil {
				pkghttp.WriteUnauthorized(w, "unauthorized")
				return
			}

			if claims.Role != role {
				pkghttp.WriteForbidden(w, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken extracts the bearer credential from the Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}

	return parts[1], true
}

// GetUserFromContext extracts user claims from request context
func GetUserFromContext(r *http.Request) *models.TokenClaims {
	claims, ok := r.Context().Value(UserContextKey).(*models.TokenClaims)
	if !ok {
		return nil
	}
	return claims
}
