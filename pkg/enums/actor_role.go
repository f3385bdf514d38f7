package enums

import "fmt"

// ActorRole scopes what an authenticated operator may do.
type ActorRole string

const (
	ActorRoleAdmin   ActorRole = "admin"
	ActorRoleSupport ActorRole = "support"
)

var validActorRoles = []ActorRole{
	ActorRoleAdmin,
	ActorRoleSupport,
}

// String implements fmt.Stringer.
func (a ActorRole) String() string {
	return string(a)
}

// IsValid reports whether the value is known.
func (a ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseActorRole converts raw input into an ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	for _, candidate := range validActorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
