package repositories

import (
	"context"

	"github.com/labforge/trackd/internal/database"
	"github.com/labforge/trackd/internal/models"
)

// ActivityLogRepository handles database operations for the activity
// audit trail. Entries are append-only.
type ActivityLogRepository struct {
	db *database.DB
}

// NewActivityLogRepository creates a new ActivityLogRepository
func NewActivityLogRepository(db *database.DB) *ActivityLogRepository {
	return &ActivityLogRepository{db: db}
}

// Create appends an activity entry
func (r *ActivityLogRepository) Create(ctx context.Context, entry *models.ActivityLogEntry) (*models.ActivityLogEntry, error) {
	query := `
		INSERT INTO activity_log (actor_id, type, description, project_id, task_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		entry.ActorID, entry.Type, entry.Description, entry.ProjectID, entry.TaskID, entry.Metadata,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return entry, nil
}

// ListByProject returns a project's activity trail, newest first
func (r *ActivityLogRepository) ListByProject(ctx context.Context, projectID string, limit, offset int) ([]*models.ActivityLogEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `
		SELECT id, actor_id, type, description, project_id, task_id, metadata, created_at
		FROM activity_log
		WHERE project_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Pool.Query(ctx, query, projectID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.ActivityLogEntry
	for rows.Next() {
		var e models.ActivityLogEntry
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Type, &e.Description, &e.ProjectID, &e.TaskID, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}
