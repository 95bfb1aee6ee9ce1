// Package auth implements the authentication flows: registration, login,
// logout and password changes. Authorization lives in authz; this package
// only establishes who the caller is.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/quarry-hq/quarry/internal/authz"
	"github.com/quarry-hq/quarry/internal/roles"
	"github.com/quarry-hq/quarry/internal/shared"
	"github.com/quarry-hq/quarry/internal/token"
	"github.com/quarry-hq/quarry/internal/users"
)

// RegisterInput carries self-registration fields.
type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Service implements the authentication flows on top of the user store and
// the token service.
type Service struct {
	users  users.Repository
	roles  roles.Repository
	tokens *token.Service
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(userRepo users.Repository, roleRepo roles.Repository, tokens *token.Service, logger *slog.Logger) *Service {
	return &Service{users: userRepo, roles: roleRepo, tokens: tokens, logger: logger}
}

// Register creates an account with the default developer role and returns a
// token for the fresh session.
func (s *Service) Register(ctx context.Context, in RegisterInput) (string, *users.User, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)

	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return "", nil, fmt.Errorf("%w: Username already exists: %s", shared.ErrDuplicate, username)
	}
	taken, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return "", nil, err
	}
	if taken {
		return "", nil, fmt.Errorf("%w: Email already in use: %s", shared.ErrDuplicate, email)
	}

	defaultRole, err := s.roles.GetByName(ctx, roles.RoleDeveloper)
	if err != nil {
		return "", nil, fmt.Errorf("load default role: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, fmt.Errorf("hash password: %w", err)
	}

	user := &users.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Enabled:      true,
		Roles:        []roles.Role{*defaultRole},
	}
	created, err := s.users.Create(ctx, user)
	if err != nil {
		return "", nil, err
	}

	signed, err := s.tokens.Issue(created.Username, effective(created))
	if err != nil {
		return "", nil, err
	}
	s.logger.Info("user registered", "username", created.Username)
	return signed, created, nil
}

// Authenticate verifies credentials and returns a token. Unknown usernames
// and wrong passwords are indistinguishable to the caller; disabled accounts
// are reported as such only after the password checks out.
func (s *Service) Authenticate(ctx context.Context, username, password string) (string, *users.User, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return "", nil, shared.ErrInvalidCredentials
		}
		return "", nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", nil, shared.ErrInvalidCredentials
	}
	if !user.Enabled {
		return "", nil, shared.ErrAccountDisabled
	}

	signed, err := s.tokens.Issue(user.Username, effective(user))
	if err != nil {
		return "", nil, err
	}
	s.logger.Info("user authenticated", "username", user.Username)
	return signed, user, nil
}

// Logout revokes the presented token for its remaining lifetime.
func (s *Service) Logout(ctx context.Context, tokenString string) error {
	return s.tokens.Revoke(ctx, tokenString)
}

// ChangePassword updates the acting user's password after verifying the old
// one.
func (s *Service) ChangePassword(ctx context.Context, actor *shared.Principal, oldPassword, newPassword string) error {
	if actor == nil {
		return shared.ErrUnauthorized
	}
	user, err := s.users.GetByUsername(ctx, actor.Username)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)) != nil {
		return shared.ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.SetPassword(ctx, user.Username, string(hash)); err != nil {
		return err
	}
	s.logger.Info("password changed", "username", user.Username)
	return nil
}

// effective resolves the user's live authority set.
func effective(user *users.User) []string {
	grants := make([]authz.RoleGrant, 0, len(user.Roles))
	for _, r := range user.Roles {
		grants = append(grants, authz.RoleGrant{Name: r.Name, Permissions: r.Permissions})
	}
	return authz.EffectiveAuthorities(user.Permissions, grants)
}
