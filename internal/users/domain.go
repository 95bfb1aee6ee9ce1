package users

import (
	"time"

	"github.com/quarry-hq/quarry/internal/roles"
)

// SystemUsername is the reserved account owning audit trails. It can be
// neither deactivated nor re-activated.
const SystemUsername = "system"

// User is an account. Username is immutable after creation. Roles and
// Permissions hold the stored memberships; the effective authority set is
// never persisted and is resolved on demand.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Enabled      bool
	Roles        []roles.Role
	Permissions  []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RoleNames returns the names of the user's roles.
func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}

// HasRole reports whether the user holds the named role.
func (u *User) HasRole(name string) bool {
	for _, r := range u.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// ReferenceCounts tallies everything still pointing at a user. A user with a
// non-zero total cannot be deleted, only deactivated.
type ReferenceCounts struct {
	ProjectsCreated  int64
	ProjectsModified int64
	TicketsAssigned  int64
	TicketsCreated   int64
	CommentsCreated  int64
}

// Total sums all reference categories.
func (c ReferenceCounts) Total() int64 {
	return c.ProjectsCreated + c.ProjectsModified + c.TicketsAssigned + c.TicketsCreated + c.CommentsCreated
}
