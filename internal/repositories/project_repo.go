package repositories

import (
	"context"
	"time"

	"github.com/labforge/trackd/internal/database"
	"github.com/labforge/trackd/internal/models"
)

// ProjectRepository handles database operations for projects and their
// membership. The room router leans on the id listings here to compute
// a connection's initial room set.
type ProjectRepository struct {
	db *database.DB
}

// NewProjectRepository creates a new ProjectRepository
func NewProjectRepository(db *database.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// GetByID retrieves a project by id
func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*models.Project, error) {
	query := `
		SELECT id, title, description, owner_id, progress, created_at, updated_at
		FROM projects
		WHERE id = $1
	`

	var p models.Project
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Title, &p.Description, &p.OwnerID, &p.Progress, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &p, nil
}

// ListAllIDs returns every project id. Admins join all project rooms.
func (r *ProjectRepository) ListAllIDs(ctx context.Context) ([]string, error) {
	return r.scanIDs(ctx, `SELECT id FROM projects`)
}

// ListIDsByOwner returns the ids of projects a lecturer owns
func (r *ProjectRepository) ListIDsByOwner(ctx context.Context, ownerID string) ([]string, error) {
	return r.scanIDs(ctx, `SELECT id FROM projects WHERE owner_id = $1`, ownerID)
}

// ListIDsByMember returns the ids of projects a student is enrolled in
func (r *ProjectRepository) ListIDsByMember(ctx context.Context, userID string) ([]string, error) {
	return r.scanIDs(ctx, `SELECT project_id FROM project_members WHERE user_id = $1`, userID)
}

// IsOwner reports whether a lecturer owns the project
func (r *ProjectRepository) IsOwner(ctx context.Context, projectID, userID string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM projects WHERE id = $1 AND owner_id = $2)`,
		projectID, userID,
	).Scan(&exists)
	return exists, err
}

// IsMember reports whether a student is enrolled in the project
func (r *ProjectRepository) IsMember(ctx context.Context, projectID, userID string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM project_members WHERE project_id = $1 AND user_id = $2)`,
		projectID, userID,
	).Scan(&exists)
	return exists, err
}

// TaskCompletionCounts returns (completed, total) task counts for a project
func (r *ProjectRepository) TaskCompletionCounts(ctx context.Context, projectID string) (int, int, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = $2),
			COUNT(*)
		FROM tasks
		WHERE project_id = $1
	`

	var completed, total int
	err := r.db.Pool.QueryRow(ctx, query, projectID, models.TaskStatusCompleted).Scan(&completed, &total)
	return completed, total, err
}

// UpdateProgress persists a recomputed progress value
func (r *ProjectRepository) UpdateProgress(ctx context.Context, projectID string, progress int) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE projects SET progress = $1, updated_at = $2 WHERE id = $3`,
		progress, time.Now(), projectID,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *ProjectRepository) scanIDs(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
