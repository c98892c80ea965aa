package domain

import "fmt"

// Permission is the access level granted to a collaborator.
// Levels are totally ordered: read < write < admin.
type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
	PermissionAdmin Permission = "admin"
)

func (p Permission) level() int {
	switch p {
	case PermissionRead:
		return 1
	case PermissionWrite:
		return 2
	case PermissionAdmin:
		return 3
	}
	return 0
}

// Valid reports whether p is one of the known levels.
func (p Permission) Valid() bool {
	return p.level() > 0
}

// Allows reports whether p satisfies the required level.
func (p Permission) Allows(required Permission) bool {
	return p.Valid() && p.level() >= required.level()
}

// ParsePermission converts a raw string into a Permission.
func ParsePermission(s string) (Permission, error) {
	p := Permission(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown permission %q", s)
	}
	return p, nil
}
