package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/labforge/trackd/internal/database"
	"github.com/labforge/trackd/internal/models"
)

// SessionRepository handles database operations for sessions
type SessionRepository struct {
	db *database.DB
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new session and returns it with generated fields
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) (*models.Session, error) {
	query := `
		INSERT INTO sessions (user_id, issued_at, expires_at, last_activity_at, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := r.db.Pool.QueryRow(ctx, query,
		session.UserID,
		session.IssuedAt,
		session.ExpiresAt,
		session.LastActivityAt,
		session.IPAddress,
		session.UserAgent,
	).Scan(&session.ID)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return session, nil
}

// GetByID retrieves a session by id
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	query := `
		SELECT id, user_id, issued_at, expires_at, last_activity_at, ip_address, user_agent
		FROM sessions
		WHERE id = $1
	`

	var s models.Session
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.UserID, &s.IssuedAt, &s.ExpiresAt, &s.LastActivityAt, &s.IPAddress, &s.UserAgent,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &s, nil
}

// ListValidByUser returns a user's currently valid sessions ordered by
// issuance, oldest first. Ordering matters: the session service evicts
// the head of this list when the concurrency bound is hit.
func (r *SessionRepository) ListValidByUser(ctx context.Context, userID string, now time.Time, idleCutoff time.Time) ([]*models.Session, error) {
	query := `
		SELECT id, user_id, issued_at, expires_at, last_activity_at, ip_address, user_agent
		FROM sessions
		WHERE user_id = $1 AND expires_at > $2 AND last_activity_at > $3
		ORDER BY issued_at ASC
	`

	rows, err := r.db.Pool.Query(ctx, query, userID, now, idleCutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		var s models.Session
		if err := rows.Scan(&s.ID, &s.UserID, &s.IssuedAt, &s.ExpiresAt, &s.LastActivityAt, &s.IPAddress, &s.UserAgent); err != nil {
			return nil, err
		}
		sessions = append(sessions, &s)
	}

	return sessions, rows.Err()
}

// TouchActivity refreshes a session's last activity timestamp
func (r *SessionRepository) TouchActivity(ctx context.Context, id string, at time.Time) error {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE sessions SET last_activity_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Delete removes a single session
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

// DeleteAllForUser removes every session owned by a user. Used on
// password change and deactivation; must complete before the triggering
// mutation is acknowledged so no stale session survives it.
func (r *SessionRepository) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteExpired removes sessions past their absolute expiry
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// List returns sessions matching the filter, newest first. Admin read
// projection only.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]*models.Session, error) {
	var conditions []string
	var args []interface{}

	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.IPAddress != "" {
		args = append(args, filter.IPAddress)
		conditions = append(conditions, fmt.Sprintf("ip_address = $%d", len(args)))
	}
	if filter.ActiveOnly {
		args = append(args, time.Now())
		conditions = append(conditions, fmt.Sprintf("expires_at > $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("issued_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("issued_at <= $%d", len(args)))
	}

	query := `SELECT id, user_id, issued_at, expires_at, last_activity_at, ip_address, user_agent FROM sessions`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY issued_at DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		var s models.Session
		if err := rows.Scan(&s.ID, &s.UserID, &s.IssuedAt, &s.ExpiresAt, &s.LastActivityAt, &s.IPAddress, &s.UserAgent); err != nil {
			return nil, err
		}
		sessions = append(sessions, &s)
	}

	return sessions, rows.Err()
}
