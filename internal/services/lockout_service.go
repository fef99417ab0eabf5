package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/labforge/trackd/internal/models"
	pkglogger "github.com/labforge/trackd/pkg/logger"
)

// LoginAttemptLedger defines the interface for login attempt persistence
type LoginAttemptLedger interface {
	RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error
	CountFailedSince(ctx context.Context, email string, since time.Time) (int, error)
	RecentFailureTimes(ctx context.Context, email string, since time.Time, limit int) ([]time.Time, error)
}

// LockoutConfig holds configuration for brute-force lockout behavior.
// A zero MaxAttempts or Duration disables the check entirely.
type LockoutConfig struct {
	MaxAttempts int
	Duration    time.Duration
}

// LockoutService records authentication attempts and computes lockout
// decisions from the trailing-window failure count. Lockout state is
// never stored; it expires on its own once the anchoring failure ages
// out of the window.
type LockoutService struct {
	ledger LoginAttemptLedger
	config LockoutConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewLockoutService creates a new LockoutService
func NewLockoutService(ledger LoginAttemptLedger, config LockoutConfig, logger *slog.Logger) *LockoutService {
	return &LockoutService{
		ledger: ledger,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// RecordAttempt appends an attempt to the ledger. Ledger failures are
// logged and swallowed; recording must never block a login flow.
func (s *LockoutService) RecordAttempt(ctx context.Context, email, ipAddress, userAgent string, success bool) {
	attempt := &models.LoginAttempt{
		Email:       email,
		IPAddress:   ipAddress,
		UserAgent:   userAgent,
		Success:     success,
		AttemptedAt: s.now(),
	}

	if err := s.ledger.RecordAttempt(ctx, attempt); err != nil {
		s.logger.Error("failed to record login attempt",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
	}
}

// IsLocked reports whether an email is currently locked out. When locked,
// the expiry is the oldest of the most recent MaxAttempts failures plus
// the lockout duration; once that instant passes the answer flips back to
// unlocked with no explicit unlock write.
func (s *LockoutService) IsLocked(ctx context.Context, email string) models.LockoutStatus {
	if s.config.MaxAttempts <= 0 || s.config.Duration <= 0 {
		return models.LockoutStatus{Locked: false}
	}

	now := s.now()
	since := now.Add(-s.config.Duration)

	count, err := s.ledger.CountFailedSince(ctx, email, since)
	if err != nil {
		// Fail open for availability; a ledger outage should not lock
		// everyone out of the system
		s.logger.Error("failed to count login failures",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return models.LockoutStatus{Locked: false}
	}

	if count < s.config.MaxAttempts {
		return models.LockoutStatus{Locked: false}
	}

	times, err := s.ledger.RecentFailureTimes(ctx, email, since, s.config.MaxAttempts)
	if err != nil || len(times) == 0 {
		s.logger.Error("failed to load failure timestamps",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return models.LockoutStatus{Locked: false}
	}

	// times is newest-first; the last entry anchors the lockout window
	oldest := times[len(times)-1]
	until := oldest.Add(s.config.Duration)

	if !now.Before(until) {
		return models.LockoutStatus{Locked: false}
	}

	s.logger.Warn("account locked out",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.Int("failed_attempts", count),
		slog.Time("lockout_until", until))

	return models.LockoutStatus{Locked: true, LockoutUntil: &until}
}
