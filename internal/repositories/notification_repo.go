package repositories

import (
	"context"

	"github.com/labforge/trackd/internal/database"
	"github.com/labforge/trackd/internal/models"
)

// NotificationRepository handles database operations for notifications
type NotificationRepository struct {
	db *database.DB
}

// NewNotificationRepository creates a new NotificationRepository
func NewNotificationRepository(db *database.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification and returns it with generated fields
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	query := `
		INSERT INTO notifications (user_id, project_id, type, title, message, is_read)
		VALUES ($1, $2, $3, $4, $5, false)
		RETURNING id, created_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		n.UserID, n.ProjectID, n.Type, n.Title, n.Message,
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return n, nil
}

// GetByID retrieves a notification by id
func (r *NotificationRepository) GetByID(ctx context.Context, id string) (*models.Notification, error) {
	query := `
		SELECT id, user_id, project_id, type, title, message, is_read, created_at
		FROM notifications
		WHERE id = $1
	`

	var n models.Notification
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&n.ID, &n.UserID, &n.ProjectID, &n.Type, &n.Title, &n.Message, &n.IsRead, &n.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &n, nil
}

// MarkRead flips a notification to read
func (r *NotificationRepository) MarkRead(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE notifications SET is_read = true WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// CountUnread returns the number of unread notifications for a user
func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = false`,
		userID,
	).Scan(&count)
	return count, err
}
