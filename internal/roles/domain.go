package roles

import "time"

// Reserved system roles that can never be deleted. RoleUser is the baseline
// fallback assigned when a user would otherwise end up role-less;
// RoleDeveloper is the default for self-registration.
const (
	RoleAdmin     = "ROLE_ADMIN"
	RoleUser      = "ROLE_USER"
	RoleDeveloper = "ROLE_DEVELOPER"
)

// Role groups permissions under a shared name. Mutating a role's permission
// set immediately changes the effective authorities of every holder.
type Role struct {
	ID          int64
	Name        string
	Permissions []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsReserved reports whether the role name is a protected system role.
func IsReserved(name string) bool {
	return name == RoleAdmin || name == RoleUser
}
