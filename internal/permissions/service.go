package permissions

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quarry-hq/quarry/internal/authz"
	"github.com/quarry-hq/quarry/internal/shared"
)

// Service manages the permission catalog. Deletion is guarded by two
// reference counts: roles carrying the permission and users holding it
// directly.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// List returns the permission catalog.
func (s *Service) List(ctx context.Context) ([]Permission, error) {
	return s.repo.List(ctx)
}

// Create adds a permission with a normalized name.
func (s *Service) Create(ctx context.Context, name, description string) (*Permission, error) {
	name = authz.Normalize(name)
	if name == "" {
		return nil, fmt.Errorf("%w: permission name is required", shared.ErrConflict)
	}
	perm, err := s.repo.Create(ctx, name, description)
	if err != nil {
		return nil, fmt.Errorf("create permission %q: %w", name, err)
	}
	s.logger.Info("permission created", "permission", perm.Name)
	return perm, nil
}

// Delete removes a permission once nothing references it. Both counts and
// the delete observe one snapshot, so a reported count reflects the state
// that blocked the delete.
func (s *Service) Delete(ctx context.Context, name string) error {
	name = authz.Normalize(name)
	if _, err := s.repo.Get(ctx, name); err != nil {
		return err
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		roleRefs, err := tx.CountRolesUsing(ctx, name)
		if err != nil {
			return err
		}
		if roleRefs > 0 {
			return shared.NewResourceInUse("permission",
				fmt.Sprintf("Cannot delete permission. It is still used by %d role(s).", roleRefs))
		}
		userRefs, err := tx.CountUsersHoldingDirectly(ctx, name)
		if err != nil {
			return err
		}
		if userRefs > 0 {
			return shared.NewResourceInUse("permission",
				fmt.Sprintf("Cannot delete permission. It is still directly assigned to %d user(s).", userRefs))
		}
		return tx.Delete(ctx, name)
	})
	if err != nil {
		return err
	}
	s.logger.Info("permission deleted", "permission", name)
	return nil
}
