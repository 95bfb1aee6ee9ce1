package tickets

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/quarry-hq/quarry/internal/authz"
	"github.com/quarry-hq/quarry/internal/shared"
)

// CreateTicket carries ticket creation fields.
type CreateTicket struct {
	ProjectID   int64
	Title       string
	Description string
	AssigneeID  *int64
}

// UpdateTicket carries ticket update fields.
type UpdateTicket struct {
	Title       string
	Description string
	AssigneeID  *int64
}

// Service implements ticket management. Reads and writes on a single ticket
// are decided per principal: blanket authorities override, otherwise only the
// creator or assignee gets through.
type Service struct {
	repo    Repository
	decider *authz.Decider
	logger  *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, decider *authz.Decider, logger *slog.Logger) *Service {
	return &Service{repo: repo, decider: decider, logger: logger}
}

// ListByProject returns a project's tickets for holders of the read-all
// authority; everyone else sees only their own involvement.
func (s *Service) ListByProject(ctx context.Context, projectID int64, p *shared.Principal) ([]Ticket, error) {
	if p == nil {
		return nil, shared.ErrUnauthorized
	}
	all, err := s.repo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.HasAuthority(authz.PermTicketReadAll) {
		return all, nil
	}
	visible := make([]Ticket, 0, len(all))
	for _, t := range all {
		if t.CreatorUsername == p.Username || t.AssigneeUsername == p.Username {
			visible = append(visible, t)
		}
	}
	return visible, nil
}

// ListMine returns tickets the principal created or is assigned to.
func (s *Service) ListMine(ctx context.Context, p *shared.Principal) ([]Ticket, error) {
	if p == nil {
		return nil, shared.ErrUnauthorized
	}
	return s.repo.ListForUser(ctx, p.Username)
}

// Get returns one ticket after the read decision passes.
func (s *Service) Get(ctx context.Context, id int64, p *shared.Principal) (*Ticket, error) {
	if !s.decider.CanReadTicket(ctx, id, p) {
		return nil, shared.ErrForbidden
	}
	return s.repo.GetByID(ctx, id)
}

// Create opens a ticket attributed to the acting user.
func (s *Service) Create(ctx context.Context, in CreateTicket, p *shared.Principal) (*Ticket, error) {
	if p == nil {
		return nil, shared.ErrUnauthorized
	}
	t := &Ticket{
		ProjectID:       in.ProjectID,
		Title:           strings.TrimSpace(in.Title),
		Description:     strings.TrimSpace(in.Description),
		CreatedBy:       p.ID,
		CreatorUsername: p.Username,
		AssigneeID:      in.AssigneeID,
	}
	created, err := s.repo.Create(ctx, t)
	if err != nil {
		return nil, err
	}
	s.logger.Info("ticket created", "ticket", created.ID, "project", created.ProjectID)
	return created, nil
}

// Update modifies a ticket after the update decision passes.
func (s *Service) Update(ctx context.Context, id int64, in UpdateTicket, p *shared.Principal) (*Ticket, error) {
	if !s.decider.CanUpdateTicket(ctx, id, p) {
		return nil, shared.ErrForbidden
	}
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Title = strings.TrimSpace(in.Title)
	t.Description = strings.TrimSpace(in.Description)
	t.AssigneeID = in.AssigneeID
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// Close transitions a ticket to closed. Closing an already-closed ticket is
// a conflict, not a no-op.
func (s *Service) Close(ctx context.Context, id int64, p *shared.Principal) error {
	if !s.decider.CanUpdateTicket(ctx, id, p) {
		return shared.ErrForbidden
	}
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if t.Status == StatusClosed {
		return fmt.Errorf("%w: Ticket is already closed.", shared.ErrConflict)
	}
	if err := s.repo.SetStatus(ctx, id, StatusClosed); err != nil {
		return err
	}
	s.logger.Info("ticket closed", "ticket", id)
	return nil
}
