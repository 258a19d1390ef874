package models

import "strings"

// Role identifies which side of a ride a chat participant is on.
type Role string

const (
	RoleRider  Role = "rider"
	RoleDriver Role = "driver"
)

// ParseRole normalises a role claim. Older tokens carry "user" or
// "customer" for riders and mixed casing for both roles.
func ParseRole(value string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "rider", "user", "customer":
		return RoleRider, true
	case "driver":
		return RoleDriver, true
	default:
		return "", false
	}
}

func (r Role) IsValid() bool {
	return r == RoleRider || r == RoleDriver
}

// Complement returns the role of the other party in a rider/driver chat.
func (r Role) Complement() Role {
	switch r {
	case RoleRider:
		return RoleDriver
	case RoleDriver:
		return RoleRider
	default:
		return ""
	}
}

func (r Role) String() string {
	return string(r)
}
