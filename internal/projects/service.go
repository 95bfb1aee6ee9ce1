package projects

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/quarry-hq/quarry/internal/shared"
)

// Service implements project management. Deleting a project with open
// tickets is rejected; the count and the delete share one transaction.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// List returns all projects.
func (s *Service) List(ctx context.Context) ([]Project, error) {
	return s.repo.List(ctx)
}

// Get returns one project.
func (s *Service) Get(ctx context.Context, id int64) (*Project, error) {
	return s.repo.GetByID(ctx, id)
}

// Create adds a project attributed to the acting user.
func (s *Service) Create(ctx context.Context, name, description string, actor *shared.Principal) (*Project, error) {
	if actor == nil {
		return nil, shared.ErrUnauthorized
	}
	p := &Project{
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		CreatedBy:   actor.ID,
	}
	created, err := s.repo.Create(ctx, p)
	if err != nil {
		return nil, err
	}
	s.logger.Info("project created", "project", created.Name, "id", created.ID)
	return created, nil
}

// Update changes name and description and records the acting user as last
// modifier.
func (s *Service) Update(ctx context.Context, id int64, name, description string, actor *shared.Principal) (*Project, error) {
	if actor == nil {
		return nil, shared.ErrUnauthorized
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Name = strings.TrimSpace(name)
	p.Description = strings.TrimSpace(description)
	p.LastModifiedBy = actor.ID
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes a project without open tickets.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		open, err := tx.CountOpenTickets(ctx, id)
		if err != nil {
			return err
		}
		if open > 0 {
			return shared.NewResourceInUse("project",
				fmt.Sprintf("Project cannot be deleted, it still has %d open ticket(s).", open))
		}
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.logger.Info("project deleted", "id", id)
	return nil
}
