package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labforge/trackd/internal/auth"
	"github.com/labforge/trackd/internal/models"
	"github.com/labforge/trackd/internal/services"
	pkghttp "github.com/labforge/trackd/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Login(ctx context.Context, email, password, ipAddress, userAgent string) (*services.AuthResponse, *models.LockoutStatus, error)
	Logout(ctx context.Context, claims *models.TokenClaims) error
	LogoutAll(ctx context.Context, userID string) error
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error
	DeactivateAccount(ctx context.Context, userID string) error
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service        AuthServiceInterface
	trustedProxies []string
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, trustedProxies []string) *AuthHandler {
	return &AuthHandler{
		service:        service,
		trustedProxies: trustedProxies,
	}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ChangePasswordRequest represents the request body for a password change
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	ipAddress := pkghttp.ExtractClientIP(r, h.trustedProxies)
	userAgent := r.Header.Get("User-Agent")

	authResp, lockout, err := h.service.Login(r.Context(), req.Email, req.Password, ipAddress, userAgent)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrAccountLocked):
			var until *time.Time
			if lockout != nil {
				until = lockout.LockoutUntil
			}
			pkghttp.WriteAccountLocked(w, until)
		case errors.Is(err, models.ErrUnauthorized),
			errors.Is(err, models.ErrAccountDeactivated):
			// Generic response for credential and account-status failures
			// to prevent user enumeration
			pkghttp.WriteUnauthorized(w, "Authentication failed")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(authResp)
}

// Logout handles POST /auth/logout by revoking the current session
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	if err := h.service.Logout(r.Context(), claims); err != nil {
		if errors.Is(err, models.ErrSessionExpired) {
			// Already gone; logout is idempotent from the client's view
			w.WriteHeader(http.StatusNoContent)
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// LogoutAll handles POST /auth/logout-all, revoking every session the
// identity holds
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	if err := h.service.LogoutAll(r.Context(), claims.UserID); err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ChangePassword handles POST /auth/change-password. A successful change
// revokes all of the identity's sessions, including the current one.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.ChangePassword(r.Context(), claims.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteUnauthorized(w, "Current password is incorrect")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "New password does not meet requirements")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeactivateAccount handles POST /auth/deactivate. Deactivation revokes
// every session; realtime connections drop on their next validation.
func (h *AuthHandler) DeactivateAccount(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	if err := h.service.DeactivateAccount(r.Context(), claims.UserID); err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
