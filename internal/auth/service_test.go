package auth

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/quarry-hq/quarry/internal/authz"
	"github.com/quarry-hq/quarry/internal/roles"
	"github.com/quarry-hq/quarry/internal/shared"
	"github.com/quarry-hq/quarry/internal/token"
	"github.com/quarry-hq/quarry/internal/users"
)

var testSecret = base64.StdEncoding.EncodeToString([]byte("auth-test-signing-key-0123456789"))

type stubUserRepo struct {
	users map[string]*users.User
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{users: make(map[string]*users.User)}
}

func (s *stubUserRepo) add(username, password string, enabled bool, assigned ...roles.Role) *users.User {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	user := &users.User{
		ID:           int64(len(s.users) + 1),
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: string(hash),
		Enabled:      enabled,
		Roles:        assigned,
	}
	s.users[username] = user
	return user
}

func (s *stubUserRepo) List(context.Context) ([]users.User, error) { return nil, nil }

func (s *stubUserRepo) GetByUsername(_ context.Context, username string) (*users.User, error) {
	u, ok := s.users[username]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *stubUserRepo) ExistsByEmail(_ context.Context, email string) (bool, error) {
	for _, u := range s.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubUserRepo) Create(_ context.Context, user *users.User) (*users.User, error) {
	if _, ok := s.users[user.Username]; ok {
		return nil, shared.ErrDuplicate
	}
	user.ID = int64(len(s.users) + 1)
	s.users[user.Username] = user
	return user, nil
}

func (s *stubUserRepo) UpdateProfile(context.Context, *users.User) error { return nil }

func (s *stubUserRepo) SetEnabled(context.Context, string, bool) error { return nil }

func (s *stubUserRepo) SetPassword(_ context.Context, username, hash string) error {
	u, ok := s.users[username]
	if !ok {
		return shared.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (s *stubUserRepo) AddRole(context.Context, int64, int64) error { return nil }

func (s *stubUserRepo) RemoveRole(context.Context, int64, int64) error { return nil }

func (s *stubUserRepo) AddPermission(context.Context, int64, string) error { return nil }

func (s *stubUserRepo) RemovePermission(context.Context, int64, string) error { return nil }
func (s *stubUserRepo) WithTx(context.Context, func(context.Context, users.TxRepository) error) error {
	return nil
}

var _ users.Repository = (*stubUserRepo)(nil)

type stubRoleRepo struct{}

func (stubRoleRepo) List(context.Context) ([]roles.Role, error) { return nil, nil }
func (stubRoleRepo) GetByID(context.Context, int64) (*roles.Role, error) {
	return nil, shared.ErrNotFound
}
func (stubRoleRepo) GetByName(_ context.Context, name string) (*roles.Role, error) {
	if name == roles.RoleDeveloper {
		return &roles.Role{ID: 3, Name: name, Permissions: []string{"TICKET_UPDATE"}}, nil
	}
	return nil, shared.ErrNotFound
}
func (stubRoleRepo) Create(context.Context, string, []string) (*roles.Role, error) {
	return nil, shared.ErrConflict
}
func (stubRoleRepo) SetPermissions(context.Context, int64, []string) error { return nil }
func (stubRoleRepo) WithTx(context.Context, func(context.Context, roles.TxRepository) error) error {
	return nil
}

func newTestTokens(t *testing.T) *token.Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	svc, err := token.NewService(testSecret, time.Hour, token.NewRedisDenylist(client))
	require.NoError(t, err)
	return svc
}

func newTestService(t *testing.T, repo *stubUserRepo) *Service {
	t.Helper()
	return NewService(repo, stubRoleRepo{}, newTestTokens(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegisterAssignsDefaultRole(t *testing.T) {
	repo := newStubUserRepo()
	svc := newTestService(t, repo)

	signed, user, err := svc.Register(context.Background(), RegisterInput{
		Username:  " newdev ",
		Email:     "newdev@example.com",
		Password:  "hunter2hunter2",
		FirstName: "New",
		LastName:  "Dev",
	})
	require.NoError(t, err)
	assert.Equal(t, "newdev", user.Username)
	require.Len(t, user.Roles, 1)
	assert.Equal(t, roles.RoleDeveloper, user.Roles[0].Name)

	claims, err := svc.tokens.Verify(context.Background(), signed)
	require.NoError(t, err)
	assert.Equal(t, "newdev", claims.Subject)
	assert.ElementsMatch(t, []string{roles.RoleDeveloper, "TICKET_UPDATE"}, claims.AuthorityNames())
}

func TestRegisterDuplicateUsername(t *testing.T) {
	repo := newStubUserRepo()
	repo.add("taken", "whatever1", true)

	_, _, err := newTestService(t, repo).Register(context.Background(), RegisterInput{
		Username: "taken", Email: "fresh@example.com", Password: "hunter2hunter2",
	})
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestAuthenticate(t *testing.T) {
	repo := newStubUserRepo()
	repo.add("alice", "open sesame", true, roles.Role{Name: roles.RoleDeveloper})
	svc := newTestService(t, repo)

	signed, user, err := svc.Authenticate(context.Background(), "alice", "open sesame")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.True(t, svc.tokens.IsValid(context.Background(), signed, "alice"))
	assert.False(t, svc.tokens.IsValid(context.Background(), signed, "bob"))
}

func TestAuthenticateWrongPassword(t *testing.T) {
	repo := newStubUserRepo()
	repo.add("alice", "open sesame", true)

	_, _, err := newTestService(t, repo).Authenticate(context.Background(), "alice", "wrong")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestAuthenticateUnknownUser(t *testing.T) {
	_, _, err := newTestService(t, newStubUserRepo()).Authenticate(context.Background(), "ghost", "pw")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials,
		"unknown user and wrong password must be indistinguishable")
}

func TestAuthenticateDisabledAccount(t *testing.T) {
	repo := newStubUserRepo()
	repo.add("mallory", "open sesame", false)

	_, _, err := newTestService(t, repo).Authenticate(context.Background(), "mallory", "open sesame")
	assert.ErrorIs(t, err, shared.ErrAccountDisabled)
}

func TestLogoutRevokesToken(t *testing.T) {
	repo := newStubUserRepo()
	repo.add("alice", "open sesame", true)
	svc := newTestService(t, repo)

	signed, _, err := svc.Authenticate(context.Background(), "alice", "open sesame")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), signed))

	_, err = svc.tokens.Verify(context.Background(), signed)
	assert.ErrorIs(t, err, token.ErrInvalidToken)
}

func TestChangePassword(t *testing.T) {
	repo := newStubUserRepo()
	repo.add("alice", "old password", true)
	svc := newTestService(t, repo)
	p := &shared.Principal{Username: "alice"}

	err := svc.ChangePassword(context.Background(), p, "wrong", "new password!")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	require.NoError(t, svc.ChangePassword(context.Background(), p, "old password", "new password!"))
	_, _, err = svc.Authenticate(context.Background(), "alice", "new password!")
	assert.NoError(t, err)
}

func TestMiddlewareResolvesFreshAuthorities(t *testing.T) {
	repo := newStubUserRepo()
	repo.add("alice", "open sesame", true,
		roles.Role{Name: roles.RoleDeveloper, Permissions: []string{"TICKET_UPDATE"}})
	svc := newTestService(t, repo)

	signed, _, err := svc.Authenticate(context.Background(), "alice", "open sesame")
	require.NoError(t, err)

	// Grants changed after the token was issued; the principal must reflect
	// the store, not the token snapshot.
	repo.users["alice"].Roles = []roles.Role{{Name: roles.RoleAdmin, Permissions: []string{"USER_MANAGE"}}}

	var seen *shared.Principal
	handler := svc.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.PrincipalFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, seen)
	assert.Equal(t, "alice", seen.Username)
	assert.ElementsMatch(t, []string{roles.RoleAdmin, "USER_MANAGE"}, seen.Authorities)
}

func TestMiddlewareRejectsGarbageViaGuard(t *testing.T) {
	repo := newStubUserRepo()
	svc := newTestService(t, repo)

	handler := svc.Middleware(authz.RequireAuthenticated(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareSkipsDisabledUser(t *testing.T) {
	repo := newStubUserRepo()
	repo.add("mallory", "open sesame", true)
	svc := newTestService(t, repo)

	signed, _, err := svc.Authenticate(context.Background(), "mallory", "open sesame")
	require.NoError(t, err)
	repo.users["mallory"].Enabled = false

	var seen *shared.Principal
	handler := svc.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.PrincipalFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Nil(t, seen, "disabled account must not yield a principal")
}
