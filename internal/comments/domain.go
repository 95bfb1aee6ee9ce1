package comments

import "time"

// Comment is a note on a ticket. Only the author may edit or remove it,
// unless a blanket update authority overrides.
type Comment struct {
	ID             int64
	TicketID       int64
	Body           string
	CreatedBy      int64
	AuthorUsername string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
