package models

import "fmt"

// Role is the closed set of identity roles. Keeping it a distinct type
// forces room/permission decisions through a single resolution point
// instead of string comparisons scattered across handlers.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleLecturer Role = "lecturer"
	RoleStudent  Role = "student"
)

// ParseRole converts a stored role string into a Role, rejecting unknowns.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleLecturer, RoleStudent:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role: %q", s)
	}
}

func (r Role) String() string { return string(r) }
