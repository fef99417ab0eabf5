package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/labforge/trackd/internal/database"
	"github.com/labforge/trackd/internal/models"
)

// LoginAttemptRepository handles database operations for the login
// attempt ledger. The ledger is append-only; rows are never updated.
type LoginAttemptRepository struct {
	db *database.DB
}

// NewLoginAttemptRepository creates a new LoginAttemptRepository
func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// RecordAttempt appends a login attempt to the ledger
func (r *LoginAttemptRepository) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	query := `
		INSERT INTO login_attempts (email, ip_address, user_agent, success)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		attempt.Email,
		attempt.IPAddress,
		attempt.UserAgent,
		attempt.Success,
	)

	return err
}

// CountFailedSince returns the number of failed attempts for an email
// within a trailing window
func (r *LoginAttemptRepository) CountFailedSince(ctx context.Context, email string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM login_attempts
		WHERE email = $1 AND success = false AND attempted_at >= $2
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, email, since).Scan(&count)
	return count, err
}

// RecentFailureTimes returns the timestamps of the most recent failed
// attempts for an email within the window, newest first, capped at limit.
// The lockout evaluator uses the oldest of these to anchor the lockout
// expiry.
func (r *LoginAttemptRepository) RecentFailureTimes(ctx context.Context, email string, since time.Time, limit int) ([]time.Time, error) {
	query := `
		SELECT attempted_at FROM login_attempts
		WHERE email = $1 AND success = false AND attempted_at >= $2
		ORDER BY attempted_at DESC
		LIMIT $3
	`

	rows, err := r.db.Pool.Query(ctx, query, email, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var times []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		times = append(times, t)
	}

	return times, rows.Err()
}

// List returns ledger entries matching the filter, newest first. This is
// a read projection for the admin surface, not part of the write path.
func (r *LoginAttemptRepository) List(ctx context.Context, filter models.LoginAttemptFilter) ([]*models.LoginAttempt, error) {
	var conditions []string
	var args []interface{}

	if filter.Email != "" {
		args = append(args, filter.Email)
		conditions = append(conditions, fmt.Sprintf("email = $%d", len(args)))
	}
	if filter.IPAddress != "" {
		args = append(args, filter.IPAddress)
		conditions = append(conditions, fmt.Sprintf("ip_address = $%d", len(args)))
	}
	if filter.Success != nil {
		args = append(args, *filter.Success)
		conditions = append(conditions, fmt.Sprintf("success = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("attempted_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("attempted_at <= $%d", len(args)))
	}

	query := `SELECT id, email, ip_address, user_agent, success, attempted_at FROM login_attempts`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY attempted_at DESC"

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

	var attempts []*models.LoginAttempt
	for rows.Next() {
		var a models.LoginAttempt
		if err := rows.Scan(&a.ID, &a.Email, &a.IPAddress, &a.UserAgent, &a.Success, &a.AttemptedAt); err != nil {
			return nil, err
		}
		attempts = append(attempts, &a)
	}

	return attempts, rows.Err()
}

// DeleteOlderThan removes ledger entries past the retention window
func (r *LoginAttemptRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM login_attempts WHERE attempted_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
