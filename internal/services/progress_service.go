package services

import (
	"context"
	"log/slog"
	"math"
)

// ProgressStore defines the project persistence the recomputation needs
type ProgressStore interface {
	TaskCompletionCounts(ctx context.Context, projectID string) (completed int, total int, err error)
	UpdateProgress(ctx context.Context, projectID string, progress int) error
}

// ProgressService recomputes a project's derived progress value from its
// task completion counts. Recomputation is serialized per project so two
// concurrent task mutations in the same project cannot lose an update;
// unrelated projects never contend.
type ProgressService struct {
	store      ProgressStore
	logger     *slog.Logger
	perProject *keyedMutex
}

// NewProgressService creates a new ProgressService
func NewProgressService(store ProgressStore, logger *slog.Logger) *ProgressService {
	return &ProgressService{
		store:      store,
		logger:     logger,
		perProject: newKeyedMutex(),
	}
}

// Recompute reads the project's completed/total task counts, derives
// round(100 * completed / total) — zero for an empty project — persists
// it and returns the new value. Running it twice with no intervening
// task change yields the same value both times.
func (s *ProgressService) Recompute(ctx context.Context, projectID string) (int, error) {
	unlock := s.perProject.Lock(projectID)
	defer unlock()

	completed, total, err := s.store.TaskCompletionCounts(ctx, projectID)
	if err != nil {
		return 0, err
	}

	progress := computeProgress(completed, total)

	if err := s.store.UpdateProgress(ctx, projectID, progress); err != nil {
		return 0, err
	}

	s.logger.Debug("project progress recomputed",
		slog.String("project_id", projectID),
		slog.Int("completed", completed),
		slog.Int("total", total),
		slog.Int("progress", progress))

	return progress, nil
}

func computeProgress(completed, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(completed) / float64(total)))
}
