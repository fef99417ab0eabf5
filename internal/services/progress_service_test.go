package services

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockProgressStore implements ProgressStore in memory
type mockProgressStore struct {
	mu        sync.Mutex
	completed int
	total     int
	persisted map[string]int
	updates   int
}

func newMockProgressStore(completed, total int) *mockProgressStore {
	return &mockProgressStore{
		completed: completed,
		total:     total,
		persisted: make(map[string]int),
	}
}

func (m *mockProgressStore) TaskCompletionCounts(ctx context.Context, projectID string) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completed, m.total, nil
}

func (m *mockProgressStore) UpdateProgress(ctx context.Context, projectID string, progress int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persisted[projectID] = progress
	m.updates++
	return nil
}

func newProgressFixture(completed, total int) (*ProgressService, *mockProgressStore) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	store := newMockProgressStore(completed, total)
	return NewProgressService(store, logger), store
}

func TestProgressService_Recompute(t *testing.T) {
	tests := []struct {
		name      string
		completed int
		total     int
		want      int
	}{
		{"empty project", 0, 0, 0},
		{"nothing completed", 0, 4, 0},
		{"one of four", 1, 4, 25},
		{"rounds half up", 1, 8, 13},
		{"rounds down", 1, 3, 33},
		{"two of three", 2, 3, 67},
		{"all completed", 5, 5, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, store := newProgressFixture(tt.completed, tt.total)

			got, err := service.Recompute(context.Background(), "project-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, store.persisted["project-1"])
		})
	}
}

func TestProgressService_RecomputeIsIdempotent(t *testing.T) {
	service, store := newProgressFixture(3, 4)
	ctx := context.Background()

	first, err := service.Recompute(ctx, "project-1")
	require.NoError(t, err)
	second, err := service.Recompute(ctx, "project-1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 75, store.persisted["project-1"])
}

func TestProgressService_ConcurrentRecomputesDoNotRace(t *testing.T) {
	service, store := newProgressFixture(1, 2)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.Recompute(ctx, "project-1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, store.persisted["project-1"])
	assert.Equal(t, 10, store.updates)
}
