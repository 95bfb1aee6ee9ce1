package permissions

import "time"

// Names of the built-in permissions wired into handler guards. The catalog is
// open; administrators may add more.
const (
	UserManage    = "USER_MANAGE"
	RoleManage    = "ROLE_MANAGE"
	TicketUpdate  = "TICKET_UPDATE"
	TicketReadAll = "TICKET_READ_ALL"
)

// Permission is a named capability. Permissions reach users either through a
// role or as a direct grant.
type Permission struct {
	Name        string
	Description string
	CreatedAt   time.Time
}
