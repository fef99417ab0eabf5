package models

import "time"

// Session is a bounded-lifetime authorization grant tied to one identity
// and one login event. An identity may hold several concurrently, up to
// the configured bound; the session service evicts the oldest (smallest
// IssuedAt) when a new login would exceed it.
type Session struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	IssuedAt       time.Time `json:"issued_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	IPAddress      string    `json:"ip_address"`
	UserAgent      string    `json:"user_agent"`
}

// Valid reports whether the session is still usable at the given instant:
// inside its absolute lifetime and not idle beyond idleTimeout. Either
// check failing invalidates it immediately, with no grace period.
func (s *Session) Valid(now time.Time, idleTimeout time.Duration) bool {
	if !now.Before(s.ExpiresAt) {
		return false
	}
	if idleTimeout > 0 && now.Sub(s.LastActivityAt) >= idleTimeout {
		return false
	}
	return true
}

// SessionFilter narrows admin session listings.
type SessionFilter struct {
	UserID     string
	IPAddress  string
	ActiveOnly bool
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}
