package projects

import "time"

// Project groups tickets. CreatedBy and LastModifiedBy reference users and
// feed the user deletion reference counts.
type Project struct {
	ID             int64
	Name           string
	Description    string
	CreatedBy      int64
	LastModifiedBy int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
