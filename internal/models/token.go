package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims is the decoded bearer credential. The session id binds the
// token to one Session row; signature validity alone never grants access.
type TokenClaims struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email,omitempty"`
	Role      Role   `json:"role"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}
