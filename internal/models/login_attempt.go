package models

import "time"

// LoginAttempt is an append-only record of one authentication attempt.
// Attempts are never mutated; the lockout evaluator only reads them in
// aggregate, and an aged record is eventually purged by the background
// cleanup task.
type LoginAttempt struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	IPAddress   string    `json:"ip_address"`
	UserAgent   string    `json:"user_agent"`
	Success     bool      `json:"success"`
	AttemptedAt time.Time `json:"attempted_at"`
}

// LockoutStatus is the computed lockout decision for an email. Lockout is
// derived from the ledger, never stored, so it expires on its own.
type LockoutStatus struct {
	Locked       bool       `json:"locked"`
	LockoutUntil *time.Time `json:"lockout_until,omitempty"`
}

// LoginAttemptFilter narrows admin ledger listings.
type LoginAttemptFilter struct {
	Email     string
	IPAddress string
	Success   *bool
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}
