package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/quarry-hq/quarry/internal/permissions"
	"github.com/quarry-hq/quarry/internal/roles"
	"github.com/quarry-hq/quarry/internal/shared"
)

// CreateUser carries the fields for administrative user creation. Roles may
// be empty; the baseline role is assigned then.
type CreateUser struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
	Roles     []string
}

// UpdateUser carries a partial profile update. Nil fields are left untouched.
type UpdateUser struct {
	Email     *string
	FirstName *string
	LastName  *string
	Enabled   *bool
}

// Service implements user management. Every operation that could strip the
// acting identity of its own access runs through the self-protection checks;
// deletion runs through the reference-integrity check. The acting identity is
// always the explicit principal, never a path parameter.
type Service struct {
	repo   Repository
	roles  roles.Repository
	perms  permissions.Repository
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, roleRepo roles.Repository, permRepo permissions.Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, roles: roleRepo, perms: permRepo, logger: logger}
}

// List returns all users.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

// Get returns a user by username.
func (s *Service) Get(ctx context.Context, username string) (*User, error) {
	return s.findUser(ctx, username)
}

// Create adds a user administratively. Input is trimmed; username and email
// must be unique. Without explicit roles the baseline role is assigned.
func (s *Service) Create(ctx context.Context, req CreateUser) (*User, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.TrimSpace(req.Email)

	if _, err := s.repo.GetByUsername(ctx, username); err == nil {
		return nil, fmt.Errorf("%w: Username already exists: %s", shared.ErrDuplicate, username)
	}
	taken, err := s.repo.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, fmt.Errorf("%w: Email already in use: %s", shared.ErrDuplicate, email)
	}

	roleNames := req.Roles
	if len(roleNames) == 0 {
		roleNames = []string{roles.RoleUser}
	}
	assigned := make([]roles.Role, 0, len(roleNames))
	for _, name := range roleNames {
		role, err := s.findRole(ctx, strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		assigned = append(assigned, *role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Enabled:      true,
		Roles:        assigned,
	}
	created, err := s.repo.Create(ctx, user)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user created", "username", created.Username, "roles", created.RoleNames())
	return created, nil
}

// Update merges the non-nil fields into the user's profile. The username is
// immutable.
func (s *Service) Update(ctx context.Context, username string, req UpdateUser) (*User, error) {
	user, err := s.findUser(ctx, username)
	if err != nil {
		return nil, err
	}

	if req.Email != nil {
		email := strings.TrimSpace(*req.Email)
		if email != user.Email {
			taken, err := s.repo.ExistsByEmail(ctx, email)
			if err != nil {
				return nil, err
			}
			if taken {
				return nil, fmt.Errorf("%w: Email %s is already in use.", shared.ErrDuplicate, email)
			}
			user.Email = email
		}
	}
	if req.FirstName != nil {
		user.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		user.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.Enabled != nil {
		user.Enabled = *req.Enabled
	}

	if err := s.repo.UpdateProfile(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Delete removes a user. Self-deletion is rejected outright; a user still
// referenced by projects, tickets or comments is rejected with the counts,
// inside the same transaction as the delete.
func (s *Service) Delete(ctx context.Context, username string, actor *shared.Principal) error {
	if isSelf(actor, username) {
		return shared.NewSelfAction("You cannot delete your own account. You can deactivate it instead.")
	}

	user, err := s.findUser(ctx, username)
	if err != nil {
		return err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		counts, err := tx.ReferenceCounts(ctx, user.ID)
		if err != nil {
			return err
		}
		if counts.Total() > 0 {
			return shared.NewResourceInUse("user", inUseMessage(username, counts))
		}
		return tx.Delete(ctx, user.ID)
	})
	if err != nil {
		return err
	}
	s.logger.Info("user deleted", "username", username)
	return nil
}

// DeactivateSelf disables the acting user's own account. This is the
// supported alternative to self-deletion; it preserves references.
func (s *Service) DeactivateSelf(ctx context.Context, actor *shared.Principal) error {
	if actor == nil {
		return shared.ErrUnauthorized
	}
	if actor.Username == SystemUsername {
		return shared.NewSelfAction("The 'system' user cannot be deactivated.")
	}
	if err := s.setEnabled(ctx, actor.Username, false); err != nil {
		return err
	}
	s.logger.Info("user deactivated own account", "username", actor.Username)
	return nil
}

// Activate re-enables a disabled account.
func (s *Service) Activate(ctx context.Context, username string) error {
	if username == SystemUsername {
		return shared.NewSelfAction("The 'system' user account cannot be re-activated.")
	}
	return s.setEnabled(ctx, username, true)
}

// AdminResetPassword sets a new password without checking the old one.
func (s *Service) AdminResetPassword(ctx context.Context, username, newPassword string) error {
	if _, err := s.findUser(ctx, username); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.SetPassword(ctx, username, string(hash)); err != nil {
		return err
	}
	s.logger.Info("password reset", "username", username)
	return nil
}

// AssignRole attaches a role to a user.
func (s *Service) AssignRole(ctx context.Context, username, roleName string) error {
	user, err := s.findUser(ctx, username)
	if err != nil {
		return err
	}
	role, err := s.findRole(ctx, roleName)
	if err != nil {
		return err
	}
	return s.repo.AddRole(ctx, user.ID, role.ID)
}

// RemoveRole detaches a role from a user. The acting user may not remove the
// admin role or their only role from themselves. Stripping another user's
// last role assigns the baseline role instead of leaving them role-less.
func (s *Service) RemoveRole(ctx context.Context, username, roleName string, actor *shared.Principal) error {
	if isSelf(actor, username) && roleName == roles.RoleAdmin {
		return shared.NewSelfAction("You cannot remove the ADMIN role from your own account.")
	}

	user, err := s.findUser(ctx, username)
	if err != nil {
		return err
	}
	role, err := s.findRole(ctx, roleName)
	if err != nil {
		return err
	}

	if isSelf(actor, username) && len(user.Roles) == 1 {
		return shared.NewSelfAction("You cannot remove the only role from your own account.")
	}

	if err := s.repo.RemoveRole(ctx, user.ID, role.ID); err != nil {
		return err
	}

	if len(user.Roles) == 1 && user.Roles[0].Name == roleName {
		fallback, err := s.findRole(ctx, roles.RoleUser)
		if err != nil {
			return err
		}
		if err := s.repo.AddRole(ctx, user.ID, fallback.ID); err != nil {
			return err
		}
		s.logger.Info("assigned baseline role to role-less user", "username", username)
	}
	return nil
}

// GrantPermission attaches a direct permission to a user.
func (s *Service) GrantPermission(ctx context.Context, username, permissionName string) error {
	user, err := s.findUser(ctx, username)
	if err != nil {
		return err
	}
	perm, err := s.findPermission(ctx, permissionName)
	if err != nil {
		return err
	}
	return s.repo.AddPermission(ctx, user.ID, perm.Name)
}

// RevokePermission detaches a direct permission from a user. The acting user
// may not strip their own management permissions.
func (s *Service) RevokePermission(ctx context.Context, username, permissionName string, actor *shared.Principal) error {
	if isSelf(actor, username) &&
		(permissionName == permissions.UserManage || permissionName == permissions.RoleManage) {
		return shared.NewSelfAction("You cannot remove core administrative permissions from your own account.")
	}

	user, err := s.findUser(ctx, username)
	if err != nil {
		return err
	}
	perm, err := s.findPermission(ctx, permissionName)
	if err != nil {
		return err
	}
	return s.repo.RemovePermission(ctx, user.ID, perm.Name)
}

func (s *Service) setEnabled(ctx context.Context, username string, enabled bool) error {
	if _, err := s.findUser(ctx, username); err != nil {
		return err
	}
	return s.repo.SetEnabled(ctx, username, enabled)
}

func (s *Service) findUser(ctx context.Context, username string) (*User, error) {
	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("%w: User not found with username: %s", shared.ErrNotFound, username)
		}
		return nil, err
	}
	return user, nil
}

func (s *Service) findRole(ctx context.Context, name string) (*roles.Role, error) {
	role, err := s.roles.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("%w: Role not found: %s", shared.ErrNotFound, name)
		}
		return nil, err
	}
	return role, nil
}

func (s *Service) findPermission(ctx context.Context, name string) (*permissions.Permission, error) {
	perm, err := s.perms.Get(ctx, name)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("%w: Permission not found: %s", shared.ErrNotFound, name)
		}
		return nil, err
	}
	return perm, nil
}

func isSelf(actor *shared.Principal, username string) bool {
	return actor != nil && actor.Username == username
}

func inUseMessage(username string, counts ReferenceCounts) string {
	var parts []string
	if counts.ProjectsCreated > 0 {
		parts = append(parts, fmt.Sprintf("%d projects (Creator)", counts.ProjectsCreated))
	}
	if counts.ProjectsModified > 0 {
		parts = append(parts, fmt.Sprintf("%d projects (Modifier)", counts.ProjectsModified))
	}
	if counts.TicketsAssigned > 0 {
		parts = append(parts, fmt.Sprintf("%d tickets (Responsible)", counts.TicketsAssigned))
	}
	if counts.TicketsCreated > 0 {
		parts = append(parts, fmt.Sprintf("%d tickets (Creator)", counts.TicketsCreated))
	}
	if counts.CommentsCreated > 0 {
		parts = append(parts, fmt.Sprintf("%d comments (Creator)", counts.CommentsCreated))
	}
	return fmt.Sprintf("Cannot delete user '%s'. It is still in use: %s. You can deactivate the account instead.",
		username, strings.Join(parts, ", "))
}
