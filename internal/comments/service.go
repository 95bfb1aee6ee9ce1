package comments

import (
	"context"
	"log/slog"
	"strings"

	"github.com/quarry-hq/quarry/internal/authz"
	"github.com/quarry-hq/quarry/internal/shared"
)

// Service implements comment management. Reading follows the parent ticket's
// read decision; editing and deleting require ownership or the blanket
// update authority.
type Service struct {
	repo    Repository
	decider *authz.Decider
	logger  *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, decider *authz.Decider, logger *slog.Logger) *Service {
	return &Service{repo: repo, decider: decider, logger: logger}
}

// ListByTicket returns a ticket's comments once the ticket read decision
// passes.
func (s *Service) ListByTicket(ctx context.Context, ticketID int64, p *shared.Principal) ([]Comment, error) {
	if !s.decider.CanReadTicket(ctx, ticketID, p) {
		return nil, shared.ErrForbidden
	}
	return s.repo.ListByTicket(ctx, ticketID)
}

// Create posts a comment on a ticket the principal can read.
func (s *Service) Create(ctx context.Context, ticketID int64, body string, p *shared.Principal) (*Comment, error) {
	if p == nil {
		return nil, shared.ErrUnauthorized
	}
	if !s.decider.CanReadTicket(ctx, ticketID, p) {
		return nil, shared.ErrForbidden
	}
	c := &Comment{
		TicketID:       ticketID,
		Body:           strings.TrimSpace(body),
		CreatedBy:      p.ID,
		AuthorUsername: p.Username,
	}
	created, err := s.repo.Create(ctx, c)
	if err != nil {
		return nil, err
	}
	s.logger.Info("comment created", "comment", created.ID, "ticket", ticketID)
	return created, nil
}

// Update edits a comment's body. Only the owner or a holder of the blanket
// update authority gets through.
func (s *Service) Update(ctx context.Context, id int64, body string, p *shared.Principal) (*Comment, error) {
	if !s.canModify(ctx, id, p) {
		return nil, shared.ErrForbidden
	}
	if err := s.repo.UpdateBody(ctx, id, strings.TrimSpace(body)); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// Delete removes a comment under the same decision as Update.
func (s *Service) Delete(ctx context.Context, id int64, p *shared.Principal) error {
	if !s.canModify(ctx, id, p) {
		return shared.ErrForbidden
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("comment deleted", "comment", id)
	return nil
}

func (s *Service) canModify(ctx context.Context, id int64, p *shared.Principal) bool {
	if p == nil {
		return false
	}
	if p.HasAuthority(authz.PermTicketUpdate) {
		return true
	}
	return s.decider.IsCommentOwner(ctx, id, p)
}
