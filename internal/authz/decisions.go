package authz

import (
	"context"
	"log/slog"

	"github.com/quarry-hq/quarry/internal/shared"
)

// Core authority names recognized by the decision helpers.
const (
	PermUserManage    = "USER_MANAGE"
	PermRoleManage    = "ROLE_MANAGE"
	PermTicketUpdate  = "TICKET_UPDATE"
	PermTicketReadAll = "TICKET_READ_ALL"
)

// TicketActorsRepo looks up the identities attached to a ticket.
type TicketActorsRepo interface {
	TicketActors(ctx context.Context, ticketID int64) (creator, assignee string, err error)
}

// CommentAuthorRepo looks up the author of a comment.
type CommentAuthorRepo interface {
	CommentAuthor(ctx context.Context, commentID int64) (string, error)
}

// Decider answers "can this principal act on this resource" questions.
// Every predicate treats a nil principal as denied; a missing resource is
// also denied rather than an error, matching fail-closed semantics.
type Decider struct {
	tickets  TicketActorsRepo
	comments CommentAuthorRepo
	logger   *slog.Logger
}

// NewDecider constructs a Decider.
func NewDecider(tickets TicketActorsRepo, comments CommentAuthorRepo, logger *slog.Logger) *Decider {
	return &Decider{tickets: tickets, comments: comments, logger: logger}
}

// IsCommentOwner reports whether the principal created the comment.
func (d *Decider) IsCommentOwner(ctx context.Context, commentID int64, p *shared.Principal) bool {
	if p == nil {
		return false
	}
	author, err := d.comments.CommentAuthor(ctx, commentID)
	if err != nil {
		d.logLookup("comment author", err)
		return false
	}
	return author == p.Username
}

// CanAccessTicket reports whether the principal created the ticket or is its
// assignee.
func (d *Decider) CanAccessTicket(ctx context.Context, ticketID int64, p *shared.Principal) bool {
	if p == nil {
		return false
	}
	creator, assignee, err := d.tickets.TicketActors(ctx, ticketID)
	if err != nil {
		d.logLookup("ticket actors", err)
		return false
	}
	return creator == p.Username || assignee == p.Username
}

// CanUpdateTicket reports whether the principal holds the blanket
// TICKET_UPDATE authority or can access the ticket.
func (d *Decider) CanUpdateTicket(ctx context.Context, ticketID int64, p *shared.Principal) bool {
	if p == nil {
		return false
	}
	if p.HasAuthority(PermTicketUpdate) {
		return true
	}
	return d.CanAccessTicket(ctx, ticketID, p)
}

// CanReadTicket reports whether the principal holds TICKET_READ_ALL or can
// access the ticket.
func (d *Decider) CanReadTicket(ctx context.Context, ticketID int64, p *shared.Principal) bool {
	if p == nil {
		return false
	}
	if p.HasAuthority(PermTicketReadAll) {
		return true
	}
	return d.CanAccessTicket(ctx, ticketID, p)
}

// CanAccessUser reports whether the principal manages users or is accessing
// its own account.
func (d *Decider) CanAccessUser(username string, p *shared.Principal) bool {
	if p == nil {
		return false
	}
	if p.HasAuthority(PermUserManage) {
		return true
	}
	return p.Username == username
}

func (d *Decider) logLookup(what string, err error) {
	if d.logger != nil {
		d.logger.Debug("access check lookup failed", slog.String("lookup", what), slog.Any("error", err))
	}
}
