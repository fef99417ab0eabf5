package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/labforge/trackd/internal/models"
	pkglogger "github.com/labforge/trackd/pkg/logger"
)

// SessionStore defines the interface for session persistence
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) (*models.Session, error)
	GetByID(ctx context.Context, id string) (*models.Session, error)
	ListValidByUser(ctx context.Context, userID string, now time.Time, idleCutoff time.Time) ([]*models.Session, error)
	TouchActivity(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
	DeleteAllForUser(ctx context.Context, userID string) (int64, error)
}

// SessionConfig holds session lifetime and concurrency bounds
type SessionConfig struct {
	Lifetime      time.Duration
	IdleTimeout   time.Duration
	MaxConcurrent int
}

// SessionService issues and validates sessions. Creation serializes the
// count-evict-insert sequence per identity so the concurrency bound
// holds exactly under concurrent logins from the same account.
type SessionService struct {
	store       SessionStore
	config      SessionConfig
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	perUser     *keyedMutex
	now         func() time.Time
}

// NewSessionService creates a new SessionService
func NewSessionService(store SessionStore, config SessionConfig, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *SessionService {
	return &SessionService{
		store:       store,
		config:      config,
		logger:      logger,
		auditLogger: auditLogger,
		perUser:     newKeyedMutex(),
		now:         time.Now,
	}
}

// CreateSession issues a new session for an identity. If the identity is
// already at the concurrency bound, the oldest session by issuance is
// evicted first (FIFO by creation order, not by recent use).
func (s *SessionService) CreateSession(ctx context.Context, userID, ipAddress, userAgent string) (*models.Session, error) {
	unlock := s.perUser.Lock(userID)
	defer unlock()

	now := s.now()
	live, err := s.store.ListValidByUser(ctx, userID, now, s.idleCutoff(now))
	if err != nil {
		s.logger.Error("failed to list sessions", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	// Evict oldest-first until there is room for the new session
	for len(live) >= s.config.MaxConcurrent {
		oldest := live[0]
		if err := s.store.Delete(ctx, oldest.ID); err != nil {
			s.logger.Error("failed to evict session",
				slog.String("user_id", userID),
				slog.String("session_id", oldest.ID),
				slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		s.auditLogger.LogSessionEvent("session_evicted", userID, oldest.ID)
		live = live[1:]
	}

	session := &models.Session{
		UserID:         userID,
		IssuedAt:       now,
		ExpiresAt:      now.Add(s.config.Lifetime),
		LastActivityAt: now,
		IPAddress:      ipAddress,
		UserAgent:      userAgent,
	}

	created, err := s.store.Create(ctx, session)
	if err != nil {
		s.logger.Error("failed to create session", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.auditLogger.LogSessionEvent("session_created", userID, created.ID)
	return created, nil
}

// ValidateSession checks that a session exists and is inside both its
// absolute lifetime and idle window, refreshing its activity timestamp
// on success. Missing, expired and revoked sessions all collapse to
// ErrSessionExpired for the caller; the specific cause is only logged.
func (s *SessionService) ValidateSession(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := s.store.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("session not found", slog.String("session_id", sessionID))
			return nil, models.ErrSessionExpired
		}
		s.logger.Error("failed to load session", slog.String("session_id", sessionID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := s.now()
	if !session.Valid(now, s.config.IdleTimeout) {
		if !now.Before(session.ExpiresAt) {
			s.logger.Info("session past absolute expiry", slog.String("session_id", sessionID))
		} else {
			s.logger.Info("session idle timed out", slog.String("session_id", sessionID))
		}
		// Remove eagerly so the row doesn't linger until cleanup
		if err := s.store.Delete(ctx, sessionID); err != nil {
			s.logger.Error("failed to delete stale session", slog.String("session_id", sessionID), slog.Any("error", err))
		}
		return nil, models.ErrSessionExpired
	}

	if err := s.store.TouchActivity(ctx, sessionID, now); err != nil {
		// A concurrent revocation may have removed the row between the
		// read and the touch; treat it the same as any dead session
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrSessionExpired
		}
		s.logger.Error("failed to refresh session activity", slog.String("session_id", sessionID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	session.LastActivityAt = now
	return session, nil
}

// RevokeSession destroys a single session (logout)
func (s *SessionService) RevokeSession(ctx context.Context, sessionID string) error {
	if err := s.store.Delete(ctx, sessionID); err != nil {
		s.logger.Error("failed to revoke session", slog.String("session_id", sessionID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	return nil
}

// RevokeAllSessions destroys every session an identity holds. Called on
// password change and deactivation, synchronously with the triggering
// mutation so no stale session survives it.
func (s *SessionService) RevokeAllSessions(ctx context.Context, userID string) error {
	unlock := s.perUser.Lock(userID)
	defer unlock()

	revoked, err := s.store.DeleteAllForUser(ctx, userID)
	if err != nil {
		s.logger.Error("failed to revoke sessions", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("revoked all sessions",
		slog.String("user_id", userID),
		slog.Int64("count", revoked))
	s.auditLogger.LogSessionEvent("sessions_revoked", userID, "")

	return nil
}

func (s *SessionService) idleCutoff(now time.Time) time.Time {
	if s.config.IdleTimeout <= 0 {
		// No idle limit configured; any stored timestamp qualifies
		return time.Time{}
	}
	return now.Add(-s.config.IdleTimeout)
}
