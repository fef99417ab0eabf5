package services

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/labforge/trackd/internal/models"
)

// mockLedger implements LoginAttemptLedger in memory
type mockLedger struct {
	attempts []*models.LoginAttempt
	err      error
}

func (m *mockLedger) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	if m.err != nil {
		return m.err
	}
	m.attempts = append(m.attempts, attempt)
	return nil
}

func (m *mockLedger) CountFailedSince(ctx context.Context, email string, since time.Time) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	count := 0
	for _, a := range m.attempts {
		if a.Email == email && !a.Success && !a.AttemptedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *mockLedger) RecentFailureTimes(ctx context.Context, email string, since time.Time, limit int) ([]time.Time, error) {
	if m.err != nil {
		return nil, m.err
	}
	var times []time.Time
	for _, a := range m.attempts {
		if a.Email == email && !a.Success && !a.AttemptedAt.Before(since) {
			times = append(times, a.AttemptedAt)
		}
	}
	sort.Slice(times, func(i, j int) bool { return times[i].After(times[j]) })
	if len(times) > limit {
		times = times[:limit]
	}
	return times, nil
}

func newLockoutFixture(t *testing.T, config LockoutConfig) (*LockoutService, *mockLedger) {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	ledger := &mockLedger{}
	return NewLockoutService(ledger, config, logger), ledger
}

func seedFailures(ledger *mockLedger, email string, times ...time.Time) {
	for _, at := range times {
		ledger.attempts = append(ledger.attempts, &models.LoginAttempt{
			Email:       email,
			Success:     false,
			AttemptedAt: at,
		})
	}
}

func TestLockoutService_UnlockedBelowThreshold(t *testing.T) {
	service, ledger := newLockoutFixture(t, LockoutConfig{MaxAttempts: 5, Duration: 30 * time.Minute})

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return base }

	seedFailures(ledger, "user@example.com",
		base.Add(-10*time.Minute),
		base.Add(-8*time.Minute),
		base.Add(-6*time.Minute),
		base.Add(-4*time.Minute),
	)

	status := service.IsLocked(context.Background(), "user@example.com")
	assert.False(t, status.Locked)
	assert.Nil(t, status.LockoutUntil)
}

func TestLockoutService_LockedAtThreshold(t *testing.T) {
	service, ledger := newLockoutFixture(t, LockoutConfig{MaxAttempts: 5, Duration: 30 * time.Minute})

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return base }

	oldest := base.Add(-10 * time.Minute)
	seedFailures(ledger, "user@example.com",
		oldest,
		base.Add(-8*time.Minute),
		base.Add(-6*time.Minute),
		base.Add(-4*time.Minute),
		base.Add(-2*time.Minute),
	)

	status := service.IsLocked(context.Background(), "user@example.com")
	assert.True(t, status.Locked)
	assert.NotNil(t, status.LockoutUntil)
	// Expiry anchors on the oldest of the most recent five failures
	assert.Equal(t, oldest.Add(30*time.Minute), *status.LockoutUntil)
}

func TestLockoutService_AnchorsOnRecentFailuresOnly(t *testing.T) {
	service, ledger := newLockoutFixture(t, LockoutConfig{MaxAttempts: 3, Duration: 30 * time.Minute})

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return base }

	// Five failures in the window; only the most recent three count, so
	// the expiry anchors on the third-from-last
	seedFailures(ledger, "user@example.com",
		base.Add(-25*time.Minute),
		base.Add(-20*time.Minute),
		base.Add(-15*time.Minute),
		base.Add(-10*time.Minute),
		base.Add(-5*time.Minute),
	)

	status := service.IsLocked(context.Background(), "user@example.com")
	assert.True(t, status.Locked)
	assert.Equal(t, base.Add(-15*time.Minute).Add(30*time.Minute), *status.LockoutUntil)
}

func TestLockoutService_ExpiresWithoutUnlockWrite(t *testing.T) {
	service, ledger := newLockoutFixture(t, LockoutConfig{MaxAttempts: 3, Duration: 10 * time.Minute})

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedFailures(ledger, "user@example.com",
		base.Add(-3*time.Minute),
		base.Add(-2*time.Minute),
		base.Add(-1*time.Minute),
	)

	service.now = func() time.Time { return base }
	assert.True(t, service.IsLocked(context.Background(), "user@example.com").Locked)

	// Advance past the window; the same ledger now reads as unlocked
	service.now = func() time.Time { return base.Add(15 * time.Minute) }
	assert.False(t, service.IsLocked(context.Background(), "user@example.com").Locked)
}

func TestLockoutService_ZeroConfigDisablesLockout(t *testing.T) {
	service, ledger := newLockoutFixture(t, LockoutConfig{MaxAttempts: 0, Duration: 0})

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return base }

	for i := 0; i < 50; i++ {
		seedFailures(ledger, "user@example.com", base.Add(-time.Duration(i)*time.Second))
	}

	status := service.IsLocked(context.Background(), "user@example.com")
	assert.False(t, status.Locked)
}

func TestLockoutService_FailsOpenOnLedgerError(t *testing.T) {
	service, ledger := newLockoutFixture(t, LockoutConfig{MaxAttempts: 3, Duration: 30 * time.Minute})
	ledger.err = errors.New("connection refused")

	status := service.IsLocked(context.Background(), "user@example.com")
	assert.False(t, status.Locked)
}

func TestLockoutService_RecordAttemptSwallowsLedgerError(t *testing.T) {
	service, ledger := newLockoutFixture(t, LockoutConfig{MaxAttempts: 3, Duration: 30 * time.Minute})
	ledger.err = errors.New("connection refused")

	// Must not panic or propagate
	service.RecordAttempt(context.Background(), "user@example.com", "10.0.0.1", "test-agent", false)
}

func TestLockoutService_SuccessesDoNotCountTowardLockout(t *testing.T) {
	service, ledger := newLockoutFixture(t, LockoutConfig{MaxAttempts: 3, Duration: 30 * time.Minute})

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return base }

	seedFailures(ledger, "user@example.com",
		base.Add(-4*time.Minute),
		base.Add(-2*time.Minute),
	)
	ledger.attempts = append(ledger.attempts, &models.LoginAttempt{
		Email:       "user@example.com",
		Success:     true,
		AttemptedAt: base.Add(-1 * time.Minute),
	})

	status := service.IsLocked(context.Background(), "user@example.com")
	assert.False(t, status.Locked)
}
