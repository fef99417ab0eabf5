package models

import (
	"time"
)

// User statuses
const (
	UserStatusActive      = "active"
	UserStatusDeactivated = "deactivated"
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Never exposed
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsActive reports whether the account may authenticate or hold a
// realtime connection.
func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}
