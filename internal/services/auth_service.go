package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/labforge/trackd/internal/auth"
	"github.com/labforge/trackd/internal/models"
	pkgauth "github.com/labforge/trackd/pkg/auth"
	pkglogger "github.com/labforge/trackd/pkg/logger"
)

// UserRepository defines the interface for user persistence
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdateStatus(ctx context.Context, id, status string) error
}

// AuthService handles authentication business logic: lockout checks,
// credential verification, attempt recording and session issuance.
type AuthService struct {
	users       UserRepository
	sessions    *SessionService
	lockout     *LockoutService
	tm          *auth.TokenManager
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewAuthService creates a new AuthService
func NewAuthService(users UserRepository, sessions *SessionService, lockout *LockoutService, tm *auth.TokenManager, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *AuthService {
	return &AuthService{
		users:       users,
		sessions:    sessions,
		lockout:     lockout,
		tm:          tm,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// UserResponse represents a user in the HTTP response
type UserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// AuthResponse represents the response from a successful login
type AuthResponse struct {
	Token string        `json:"token"`
	User  *UserResponse `json:"user"`
}

// Login authenticates a user and issues a session-bound bearer token.
// When the account is locked out, the returned LockoutStatus carries the
// expiry so the handler can surface a retry-after.
func (s *AuthService) Login(ctx context.Context, email, password, ipAddress, userAgent string) (*AuthResponse, *models.LockoutStatus, error) {
	if email = strings.ToLower(strings.TrimSpace(email)); email == "" {
		s.logger.Warn("login attempt with empty email")
		return nil, nil, models.ErrUnauthorized
	}

	if status := s.lockout.IsLocked(ctx, email); status.Locked {
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			IPAddress:     ipAddress,
			FailureReason: "account_locked",
			Success:       false,
		})
		return nil, &status, models.ErrAccountLocked
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("login failed: invalid credentials")
			s.lockout.RecordAttempt(ctx, email, ipAddress, userAgent, false)
			s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
				EventType:     "login_failed",
				IPAddress:     ipAddress,
				FailureReason: "invalid_credentials",
				Success:       false,
			})
			return nil, nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return nil, nil, models.ErrInternalServer
	}

	if !user.IsActive() {
		s.logger.Info("login blocked: account deactivated", slog.String("user_id", user.ID))
		s.lockout.RecordAttempt(ctx, email, ipAddress, userAgent, false)
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			UserID:        user.ID,
			IPAddress:     ipAddress,
			FailureReason: "account_deactivated",
			Success:       false,
		})
		return nil, nil, models.ErrAccountDeactivated
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		s.logger.Info("login failed: invalid credentials")
		s.lockout.RecordAttempt(ctx, email, ipAddress, userAgent, false)
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			UserID:        user.ID,
			IPAddress:     ipAddress,
			FailureReason: "invalid_credentials",
			Success:       false,
		})
		return nil, nil, models.ErrUnauthorized
	}

	s.lockout.RecordAttempt(ctx, email, ipAddress, userAgent, true)

	session, err := s.sessions.CreateSession(ctx, user.ID, ipAddress, userAgent)
	if err != nil {
		return nil, nil, err
	}

	token, err := s.tm.GenerateToken(user, session.ID)
	if err != nil {
		s.logger.Error("failed to generate token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, nil, models.ErrInternalServer
	}

	s.logger.Info("user logged in", slog.String("user_id", user.ID))
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login_success",
		UserID:    user.ID,
		IPAddress: ipAddress,
		Success:   true,
	})

	return &AuthResponse{
		Token: token,
		User:  userModelToResponse(user),
	}, nil, nil
}

// Logout revokes the session bound to the presented credential
func (s *AuthService) Logout(ctx context.Context, claims *models.TokenClaims) error {
	if err := s.sessions.RevokeSession(ctx, claims.SessionID); err != nil {
		return err
	}

	s.logger.Info("user logged out", slog.String("user_id", claims.UserID))
	return nil
}

// LogoutAll revokes every session the user holds ("logout all devices")
func (s *AuthService) LogoutAll(ctx context.Context, userID string) error {
	if err := s.sessions.RevokeAllSessions(ctx, userID); err != nil {
		return err
	}

	s.logger.Info("user logged out from all devices", slog.String("user_id", userID))
	return nil
}

// ChangePassword verifies the current password, stores the new hash and
// synchronously revokes every session so nothing stale survives the
// change.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrUnauthorized
		}
		s.logger.Error("failed to get user", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, currentPassword); err != nil {
		return models.ErrUnauthorized
	}

	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return err
	}

	hash, err := pkgauth.HashPassword(newPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		s.logger.Error("failed to update password", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.sessions.RevokeAllSessions(ctx, userID); err != nil {
		return err
	}

	s.auditLogger.LogAccountAction("password_changed", userID, "", nil)
	return nil
}

// DeactivateAccount disables an account and synchronously revokes its
// sessions, closing the door on both REST and realtime access.
func (s *AuthService) DeactivateAccount(ctx context.Context, userID string) error {
	if err := s.users.UpdateStatus(ctx, userID, models.UserStatusDeactivated); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to deactivate account", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.sessions.RevokeAllSessions(ctx, userID); err != nil {
		return err
	}

	s.auditLogger.LogAccountAction("account_deactivated", userID, "", nil)
	return nil
}

// userModelToResponse converts a user model to response DTO
func userModelToResponse(user *models.User) *UserResponse {
	return &UserResponse{
		ID:    user.ID,
		Email: user.Email,
		Name:  user.Name,
		Role:  user.Role.String(),
	}
}
