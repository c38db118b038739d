package enums

import "fmt"

// ActorRole is the role claim carried by identity-provider tokens.
type ActorRole string

const (
	ActorRoleCustomer ActorRole = "customer"
	ActorRoleStaff    ActorRole = "staff"
	ActorRoleAdmin    ActorRole = "admin"
)

var validActorRoles = []ActorRole{
	ActorRoleCustomer,
	ActorRoleStaff,
	ActorRoleAdmin,
}

// String implements fmt.Stringer.
func (r ActorRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ActorRole.
func (r ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsBackOffice reports whether the role may act on other users' orders.
func (r ActorRole) IsBackOffice() bool {
	return r == ActorRoleStaff || r == ActorRoleAdmin
}

// ParseActorRole converts raw input into an ActorRole. A blank role is a customer.
func ParseActorRole(value string) (ActorRole, error) {
	if value == "" {
		return ActorRoleCustomer, nil
	}
	for _, candidate := range validActorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
