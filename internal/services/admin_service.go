package services

import (
	"context"
	"log/slog"

	"github.com/labforge/trackd/internal/models"
)

// LoginAttemptLister reads ledger projections for the admin surface
type LoginAttemptLister interface {
	List(ctx context.Context, filter models.LoginAttemptFilter) ([]*models.LoginAttempt, error)
}

// SessionLister reads session projections for the admin surface
type SessionLister interface {
	List(ctx context.Context, filter models.SessionFilter) ([]*models.Session, error)
}

// AdminService exposes read-only projections over the login attempt
// ledger and session store. It has no write path.
type AdminService struct {
	attempts LoginAttemptLister
	sessions SessionLister
	logger   *slog.Logger
}

// NewAdminService creates a new AdminService
func NewAdminService(attempts LoginAttemptLister, sessions SessionLister, logger *slog.Logger) *AdminService {
	return &AdminService{
		attempts: attempts,
		sessions: sessions,
		logger:   logger,
	}
}

// ListLoginAttempts returns recent ledger entries matching the filter
func (s *AdminService) ListLoginAttempts(ctx context.Context, filter models.LoginAttemptFilter) ([]*models.LoginAttempt, error) {
	attempts, err := s.attempts.List(ctx, filter)
	if err != nil {
		s.logger.Error("failed to list login attempts", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return attempts, nil
}

// ListSessions returns sessions matching the filter
func (s *AdminService) ListSessions(ctx context.Context, filter models.SessionFilter) ([]*models.Session, error) {
	sessions, err := s.sessions.List(ctx, filter)
	if err != nil {
		s.logger.Error("failed to list sessions", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return sessions, nil
}
