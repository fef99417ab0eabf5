package background

import (
	"context"
	"log/slog"
	"time"
)

// SessionPurger removes sessions past their absolute lifetime
type SessionPurger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// AttemptPurger removes login attempt records older than a cutoff
type AttemptPurger interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupManager periodically purges expired sessions and aged login
// attempt records. Lockout is computed from the trailing window, so
// purging old attempts never changes a live lockout decision as long as
// the retention exceeds the lockout window.
type CleanupManager struct {
	sessions  SessionPurger
	attempts  AttemptPurger
	logger    *slog.Logger
	interval  time.Duration
	retention time.Duration
	stopCh    chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	sessions SessionPurger,
	attempts AttemptPurger,
	logger *slog.Logger,
	interval time.Duration,
	retention time.Duration,
) *CleanupManager {
	return &CleanupManager{
		sessions:  sessions,
		attempts:  attempts,
		logger:    logger,
		interval:  interval,
		retention: retention,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	now := time.Now().UTC()

	sessionsDeleted, err := cm.sessions.DeleteExpired(cleanupCtx, now)
	if err != nil {
		cm.logger.Error("failed to purge expired sessions", slog.Any("error", err))
	} else if sessionsDeleted > 0 {
		cm.logger.Info("purged expired sessions", slog.Int64("rows_deleted", sessionsDeleted))
	}

	attemptsDeleted, err := cm.attempts.DeleteOlderThan(cleanupCtx, now.Add(-cm.retention))
	if err != nil {
		cm.logger.Error("failed to purge aged login attempts", slog.Any("error", err))
	} else if attemptsDeleted > 0 {
		cm.logger.Info("purged aged login attempts", slog.Int64("rows_deleted", attemptsDeleted))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
