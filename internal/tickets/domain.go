package tickets

import "time"

// Ticket statuses. A closed ticket cannot be closed again.
const (
	StatusOpen       = "OPEN"
	StatusInProgress = "IN_PROGRESS"
	StatusClosed     = "CLOSED"
)

// Ticket is an issue inside a project. Creator and assignee drive the
// access decisions; either may be consulted on every guarded read or write.
type Ticket struct {
	ID               int64
	ProjectID        int64
	Title            string
	Description      string
	Status           string
	CreatedBy        int64
	CreatorUsername  string
	AssigneeID       *int64
	AssigneeUsername string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
