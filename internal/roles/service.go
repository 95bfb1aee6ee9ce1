package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/quarry-hq/quarry/internal/authz"
	"github.com/quarry-hq/quarry/internal/shared"
)

// Service implements role management, including the deletion guards that
// protect reserved roles and roles still held by users.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// List returns all roles.
func (s *Service) List(ctx context.Context) ([]Role, error) {
	return s.repo.List(ctx)
}

// Get returns a single role by id.
func (s *Service) Get(ctx context.Context, id int64) (*Role, error) {
	role, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return role, nil
}

// Create adds a role with a normalized permission set.
func (s *Service) Create(ctx context.Context, name string, permissions []string) (*Role, error) {
	role, err := s.repo.Create(ctx, name, authz.NormalizeAll(permissions))
	if err != nil {
		return nil, fmt.Errorf("create role %q: %w", name, err)
	}
	s.logger.Info("role created", "role", role.Name, "id", role.ID)
	return role, nil
}

// SetPermissions replaces a role's permission set. Every holder's effective
// authorities change on their next resolution.
func (s *Service) SetPermissions(ctx context.Context, id int64, permissions []string) (*Role, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	if err := s.repo.SetPermissions(ctx, id, authz.NormalizeAll(permissions)); err != nil {
		return nil, fmt.Errorf("set permissions for role %d: %w", id, err)
	}
	return s.repo.GetByID(ctx, id)
}

// Delete removes a role after the guards pass. Reserved system roles are
// never deletable; a role still assigned to users is rejected with the holder
// count. The count and the delete run in one transaction so the reported
// count matches the state that blocked the delete.
func (s *Service) Delete(ctx context.Context, id int64) error {
	role, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("%w: Role not found with id: %d", shared.ErrNotFound, id)
		}
		return err
	}
	if IsReserved(role.Name) {
		return shared.NewSelfAction(fmt.Sprintf("Cannot delete core system role: %s", role.Name))
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		count, err := tx.CountUsersWithRole(ctx, id)
		if err != nil {
			return err
		}
		if count > 0 {
			return shared.NewResourceInUse("role",
				fmt.Sprintf("Cannot delete role. It is still assigned to %d user(s).", count))
		}
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.logger.Info("role deleted", "role", role.Name, "id", id)
	return nil
}
