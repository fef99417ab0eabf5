package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labforge/trackd/internal/models"
	pkglogger "github.com/labforge/trackd/pkg/logger"
)

// mockSessionStore implements SessionStore in memory
type mockSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	nextID   int
}

func newMockSessionStore() *mockSessionStore {
	return &mockSessionStore{sessions: make(map[string]*models.Session)}
}

func (m *mockSessionStore) Create(ctx context.Context, session *models.Session) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	copied := *session
	copied.ID = fmt.Sprintf("session-%d", m.nextID)
	m.sessions[copied.ID] = &copied
	return &copied, nil
}

func (m *mockSessionStore) GetByID(ctx context.Context, id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *session
	return &copied, nil
}

func (m *mockSessionStore) ListValidByUser(ctx context.Context, userID string, now time.Time, idleCutoff time.Time) ([]*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.Session
	for _, s := range m.sessions {
		if s.UserID != userID || !now.Before(s.ExpiresAt) {
			continue
		}
		if !idleCutoff.IsZero() && s.LastActivityAt.Before(idleCutoff) {
			continue
		}
		copied := *s
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].IssuedAt.Before(result[j].IssuedAt) })
	return result, nil
}

func (m *mockSessionStore) TouchActivity(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return models.ErrNotFound
	}
	session.LastActivityAt = at
	return nil
}

func (m *mockSessionStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *mockSessionStore) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
			count++
		}
	}
	return count, nil
}

func (m *mockSessionStore) count(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.UserID == userID {
			n++
		}
	}
	return n
}

func newSessionFixture(t *testing.T, config SessionConfig) (*SessionService, *mockSessionStore) {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	store := newMockSessionStore()
	return NewSessionService(store, config, logger, pkglogger.NewAuditLogger(logger)), store
}

func TestSessionService_CreateWithinBound(t *testing.T) {
	service, store := newSessionFixture(t, SessionConfig{
		Lifetime:      24 * time.Hour,
		IdleTimeout:   2 * time.Hour,
		MaxConcurrent: 3,
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := service.CreateSession(ctx, "user-1", "10.0.0.1", "agent")
		require.NoError(t, err)
	}

	assert.Equal(t, 3, store.count("user-1"))
}

func TestSessionService_EvictsOldestAtBound(t *testing.T) {
	service, store := newSessionFixture(t, SessionConfig{
		Lifetime:      24 * time.Hour,
		IdleTimeout:   2 * time.Hour,
		MaxConcurrent: 2,
	})

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	service.now = func() time.Time { return base }
	first, err := service.CreateSession(ctx, "user-1", "10.0.0.1", "agent")
	require.NoError(t, err)

	service.now = func() time.Time { return base.Add(time.Minute) }
	second, err := service.CreateSession(ctx, "user-1", "10.0.0.1", "agent")
	require.NoError(t, err)

	service.now = func() time.Time { return base.Add(2 * time.Minute) }
	third, err := service.CreateSession(ctx, "user-1", "10.0.0.1", "agent")
	require.NoError(t, err)

	// Oldest by issuance is gone, newer two survive
	assert.Equal(t, 2, store.count("user-1"))
	_, err = store.GetByID(ctx, first.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = store.GetByID(ctx, second.ID)
	assert.NoError(t, err)
	_, err = store.GetByID(ctx, third.ID)
	assert.NoError(t, err)
}

func TestSessionService_ExpiredSessionsDoNotCountTowardBound(t *testing.T) {
	service, store := newSessionFixture(t, SessionConfig{
		Lifetime:      time.Hour,
		IdleTimeout:   0,
		MaxConcurrent: 2,
	})

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	service.now = func() time.Time { return base }
	expired, err := service.CreateSession(ctx, "user-1", "10.0.0.1", "agent")
	require.NoError(t, err)

	// Two hours later the first session is past its lifetime; two fresh
	// logins fit the bound without evicting each other
	service.now = func() time.Time { return base.Add(2 * time.Hour) }
	_, err = service.CreateSession(ctx, "user-1", "10.0.0.1", "agent")
	require.NoError(t, err)
	service.now = func() time.Time { return base.Add(2*time.Hour + time.Minute) }
	_, err = service.CreateSession(ctx, "user-1", "10.0.0.1", "agent")
	require.NoError(t, err)

	_, err = store.GetByID(ctx, expired.ID)
	assert.NoError(t, err, "expired sessions are left for cleanup, not evicted")
}

func TestSessionService_BoundHoldsUnderConcurrentLogins(t *testing.T) {
	service, store := newSessionFixture(t, SessionConfig{
		Lifetime:      24 * time.Hour,
		IdleTimeout:   2 * time.Hour,
		MaxConcurrent: 3,
	})

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.CreateSession(ctx, "user-1", "10.0.0.1", "agent")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, store.count("user-1"))
}

func TestSessionService_ValidateRefreshesActivity(t *testing.T) {
	service, store := newSessionFixture(t, SessionConfig{
		Lifetime:      24 * time.Hour,
		IdleTimeout:   2 * time.Hour,
		MaxConcurrent: 3,
	})

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	service.now = func() time.Time { return base }
	created, err := service.CreateSession(ctx, "user-1", "10.0.0.1", "agent")
	require.NoError(t, err)

	service.now = func() time.Time { return base.Add(time.Hour) }
	session, err := service.ValidateSession(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, base.Add(time.Hour), session.LastActivityAt)

	stored, err := store.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, base.Add(time.Hour), stored.LastActivityAt)
}

func TestSessionService_ValidateRejectsIdleSession(t *testing.T) {
	service, store := newSessionFixture(t, SessionConfig{
		Lifetime:      24 * time.Hour,
		IdleTimeout:   2 * time.Hour,
		MaxConcurrent: 3,
	})

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	service.now = func() time.Time { return base }
	created, err := service.CreateSession(ctx, "user-1", "10.0.0.1", "agent")
	require.NoError(t, err)

	service.now = func() time.Time { return base.Add(2 * time.Hour) }
	_, err = service.ValidateSession(ctx, created.ID)
	assert.ErrorIs(t, err, models.ErrSessionExpired)

	// Stale row was removed eagerly
	_, err = store.GetByID(ctx, created.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSessionService_ValidateRejectsPastAbsoluteExpiry(t *testing.T) {
	service, _ := newSessionFixture(t, SessionConfig{
		Lifetime:      time.Hour,
		IdleTimeout:   0,
		MaxConcurrent: 3,
	})

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	service.now = func() time.Time { return base }
	created, err := service.CreateSession(ctx, "user-1", "10.0.0.1", "agent")
	require.NoError(t, err)

	// Continuous activity does not extend the absolute lifetime
	for i := 1; i <= 5; i++ {
		service.now = func() time.Time { return base.Add(time.Duration(i*10) * time.Minute) }
		_, err = service.ValidateSession(ctx, created.ID)
		require.NoError(t, err)
	}

	service.now = func() time.Time { return base.Add(time.Hour) }
	_, err = service.ValidateSession(ctx, created.ID)
	assert.ErrorIs(t, err, models.ErrSessionExpired)
}

func TestSessionService_ValidateUnknownSession(t *testing.T) {
	service, _ := newSessionFixture(t, SessionConfig{
		Lifetime:      time.Hour,
		IdleTimeout:   0,
		MaxConcurrent: 3,
	})

	_, err := service.ValidateSession(context.Background(), "no-such-session")
	assert.ErrorIs(t, err, models.ErrSessionExpired)
}

func TestSessionService_RevokeAllSessions(t *testing.T) {
	service, store := newSessionFixture(t, SessionConfig{
		Lifetime:      24 * time.Hour,
		IdleTimeout:   2 * time.Hour,
		MaxConcurrent: 5,
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := service.CreateSession(ctx, "user-1", "10.0.0.1", "agent")
		require.NoError(t, err)
	}
	other, err := service.CreateSession(ctx, "user-2", "10.0.0.2", "agent")
	require.NoError(t, err)

	require.NoError(t, service.RevokeAllSessions(ctx, "user-1"))

	assert.Equal(t, 0, store.count("user-1"))
	_, err = store.GetByID(ctx, other.ID)
	assert.NoError(t, err, "other identities are untouched")
}
