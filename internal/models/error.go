package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Session errors. Expired, idle-timed-out and explicitly revoked
	// sessions all surface as ErrSessionExpired; the distinction is
	// logged server-side but callers only ever need to re-authenticate.
	ErrSessionExpired = errors.New("session expired")

	// Account state errors
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrAccountDeactivated = errors.New("account is deactivated")
)
