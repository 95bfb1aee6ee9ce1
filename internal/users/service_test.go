package users

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/quarry-hq/quarry/internal/permissions"
	"github.com/quarry-hq/quarry/internal/roles"
	"github.com/quarry-hq/quarry/internal/shared"
)

type mockRepo struct {
	users  map[string]*User
	counts map[string]ReferenceCounts
	nextID int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		users:  make(map[string]*User),
		counts: make(map[string]ReferenceCounts),
		nextID: 1,
	}
}

func (m *mockRepo) add(username string, assigned ...roles.Role) *User {
	user := &User{
		ID:       m.nextID,
		Username: username,
		Email:    username + "@example.com",
		Enabled:  true,
		Roles:    assigned,
	}
	m.users[username] = user
	m.nextID++
	return user
}

func (m *mockRepo) byID(id int64) *User {
	for _, u := range m.users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

func (m *mockRepo) List(_ context.Context) ([]User, error) {
	out := make([]User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, *u)
	}
	return out, nil
}

func (m *mockRepo) GetByUsername(_ context.Context, username string) (*User, error) {
	u, ok := m.users[username]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *u
	copied.Roles = append([]roles.Role(nil), u.Roles...)
	copied.Permissions = append([]string(nil), u.Permissions...)
	return &copied, nil
}

func (m *mockRepo) ExistsByEmail(_ context.Context, email string) (bool, error) {
	for _, u := range m.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepo) Create(_ context.Context, user *User) (*User, error) {
	if _, ok := m.users[user.Username]; ok {
		return nil, shared.ErrDuplicate
	}
	user.ID = m.nextID
	m.nextID++
	m.users[user.Username] = user
	return user, nil
}

func (m *mockRepo) UpdateProfile(_ context.Context, user *User) error {
	stored, ok := m.users[user.Username]
	if !ok {
		return shared.ErrNotFound
	}
	stored.Email = user.Email
	stored.FirstName = user.FirstName
	stored.LastName = user.LastName
	stored.Enabled = user.Enabled
	return nil
}

func (m *mockRepo) SetEnabled(_ context.Context, username string, enabled bool) error {
	u, ok := m.users[username]
	if !ok {
		return shared.ErrNotFound
	}
	u.Enabled = enabled
	return nil
}

func (m *mockRepo) SetPassword(_ context.Context, username, hash string) error {
	u, ok := m.users[username]
	if !ok {
		return shared.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *mockRepo) AddRole(_ context.Context, userID, roleID int64) error {
	u := m.byID(userID)
	for _, r := range u.Roles {
		if r.ID == roleID {
			return nil
		}
	}
	u.Roles = append(u.Roles, roles.Role{ID: roleID, Name: roleNameByID(roleID)})
	return nil
}

func (m *mockRepo) RemoveRole(_ context.Context, userID, roleID int64) error {
	u := m.byID(userID)
	kept := u.Roles[:0]
	for _, r := range u.Roles {
		if r.ID != roleID {
			kept = append(kept, r)
		}
	}
	u.Roles = kept
	return nil
}

func (m *mockRepo) AddPermission(_ context.Context, userID int64, permission string) error {
	u := m.byID(userID)
	u.Permissions = append(u.Permissions, permission)
	return nil
}

func (m *mockRepo) RemovePermission(_ context.Context, userID int64, permission string) error {
	u := m.byID(userID)
	kept := u.Permissions[:0]
	for _, p := range u.Permissions {
		if p != permission {
			kept = append(kept, p)
		}
	}
	u.Permissions = kept
	return nil
}

func (m *mockRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *mockRepo) ReferenceCounts(_ context.Context, userID int64) (ReferenceCounts, error) {
	u := m.byID(userID)
	return m.counts[u.Username], nil
}

func (m *mockRepo) Delete(_ context.Context, userID int64) error {
	u := m.byID(userID)
	if u == nil {
		return shared.ErrNotFound
	}
	delete(m.users, u.Username)
	return nil
}

var _ Repository = (*mockRepo)(nil)

// Role catalog shared by the stubs; ids are stable.
var roleCatalog = map[string]int64{
	roles.RoleAdmin:     1,
	roles.RoleUser:      2,
	roles.RoleDeveloper: 3,
	"ROLE_TESTER":       4,
}

func roleNameByID(id int64) string {
	for name, rid := range roleCatalog {
		if rid == id {
			return name
		}
	}
	return ""
}

func namedRole(name string) roles.Role {
	return roles.Role{ID: roleCatalog[name], Name: name}
}

type stubRoleRepo struct{}

func (stubRoleRepo) List(context.Context) ([]roles.Role, error) { return nil, nil }
func (stubRoleRepo) GetByID(context.Context, int64) (*roles.Role, error) {
	return nil, shared.ErrNotFound
}
func (stubRoleRepo) GetByName(_ context.Context, name string) (*roles.Role, error) {
	if id, ok := roleCatalog[name]; ok {
		return &roles.Role{ID: id, Name: name}, nil
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

type stubPermRepo struct{}

func (stubPermRepo) List(context.Context) ([]permissions.Permission, error) { return nil, nil }
func (stubPermRepo) Get(_ context.Context, name string) (*permissions.Permission, error) {
	return &permissions.Permission{Name: name}, nil
}
func (stubPermRepo) Create(context.Context, string, string) (*permissions.Permission, error) {
	return nil, shared.ErrConflict
}
func (stubPermRepo) WithTx(context.Context, func(context.Context, permissions.TxRepository) error) error {
	return nil
}

func newTestService(repo *mockRepo) *Service {
	return NewService(repo, stubRoleRepo{}, stubPermRepo{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func actor(username string) *shared.Principal {
	return &shared.Principal{Username: username}
}

func TestDeleteOwnAccountRejected(t *testing.T) {
	repo := newMockRepo()
	repo.add("alice", namedRole(roles.RoleAdmin))

	err := newTestService(repo).Delete(context.Background(), "alice", actor("alice"))

	var selfAction *shared.SelfActionError
	require.ErrorAs(t, err, &selfAction)
	assert.Equal(t, "You cannot delete your own account. You can deactivate it instead.", selfAction.Message)
	assert.Contains(t, repo.users, "alice")
}

func TestDeleteReferencedUserRejected(t *testing.T) {
	repo := newMockRepo()
	repo.add("bob", namedRole(roles.RoleDeveloper))
	repo.counts["bob"] = ReferenceCounts{TicketsCreated: 2, CommentsCreated: 5}

	err := newTestService(repo).Delete(context.Background(), "bob", actor("admin"))

	var inUse *shared.ResourceInUseError
	require.ErrorAs(t, err, &inUse)
	assert.Equal(t,
		"Cannot delete user 'bob'. It is still in use: 2 tickets (Creator), 5 comments (Creator). You can deactivate the account instead.",
		inUse.Message)
	assert.Contains(t, repo.users, "bob")
}

func TestDeleteUnreferencedUser(t *testing.T) {
	repo := newMockRepo()
	repo.add("bob", namedRole(roles.RoleDeveloper))

	require.NoError(t, newTestService(repo).Delete(context.Background(), "bob", actor("admin")))
	assert.NotContains(t, repo.users, "bob")
}

func TestRemoveAdminRoleFromSelfRejected(t *testing.T) {
	repo := newMockRepo()
	repo.add("alice", namedRole(roles.RoleAdmin), namedRole(roles.RoleDeveloper))

	err := newTestService(repo).RemoveRole(context.Background(), "alice", roles.RoleAdmin, actor("alice"))

	var selfAction *shared.SelfActionError
	require.ErrorAs(t, err, &selfAction)
	assert.Equal(t, "You cannot remove the ADMIN role from your own account.", selfAction.Message)
	assert.True(t, repo.users["alice"].HasRole(roles.RoleAdmin), "role must remain")
}

func TestRemoveOnlyRoleFromSelfRejected(t *testing.T) {
	repo := newMockRepo()
	repo.add("alice", namedRole(roles.RoleDeveloper))

	err := newTestService(repo).RemoveRole(context.Background(), "alice", roles.RoleDeveloper, actor("alice"))

	var selfAction *shared.SelfActionError
	require.ErrorAs(t, err, &selfAction)
	assert.Equal(t, "You cannot remove the only role from your own account.", selfAction.Message)
}

func TestRemoveLastRoleFromOtherAssignsBaseline(t *testing.T) {
	repo := newMockRepo()
	repo.add("bob", namedRole("ROLE_TESTER"))

	require.NoError(t, newTestService(repo).
		RemoveRole(context.Background(), "bob", "ROLE_TESTER", actor("admin")))

	bob := repo.users["bob"]
	require.Len(t, bob.Roles, 1)
	assert.Equal(t, roles.RoleUser, bob.Roles[0].Name)
}

func TestRemoveRoleKeepsOthers(t *testing.T) {
	repo := newMockRepo()
	repo.add("bob", namedRole("ROLE_TESTER"), namedRole(roles.RoleDeveloper))

	require.NoError(t, newTestService(repo).
		RemoveRole(context.Background(), "bob", "ROLE_TESTER", actor("admin")))

	bob := repo.users["bob"]
	require.Len(t, bob.Roles, 1)
	assert.Equal(t, roles.RoleDeveloper, bob.Roles[0].Name)
}

func TestRevokeCorePermissionFromSelfRejected(t *testing.T) {
	repo := newMockRepo()
	user := repo.add("alice", namedRole(roles.RoleAdmin))
	user.Permissions = []string{permissions.UserManage, permissions.RoleManage}

	svc := newTestService(repo)
	for _, perm := range []string{permissions.UserManage, permissions.RoleManage} {
		err := svc.RevokePermission(context.Background(), "alice", perm, actor("alice"))

		var selfAction *shared.SelfActionError
		require.ErrorAs(t, err, &selfAction)
		assert.Equal(t, "You cannot remove core administrative permissions from your own account.", selfAction.Message)
	}
	assert.Len(t, repo.users["alice"].Permissions, 2)
}

func TestRevokeOtherPermissionFromSelf(t *testing.T) {
	repo := newMockRepo()
	user := repo.add("alice", namedRole(roles.RoleAdmin))
	user.Permissions = []string{permissions.TicketUpdate}

	require.NoError(t, newTestService(repo).
		RevokePermission(context.Background(), "alice", permissions.TicketUpdate, actor("alice")))
	assert.Empty(t, repo.users["alice"].Permissions)
}

func TestSystemUserEnableToggles(t *testing.T) {
	repo := newMockRepo()
	repo.add(SystemUsername, namedRole(roles.RoleAdmin))
	svc := newTestService(repo)

	err := svc.DeactivateSelf(context.Background(), actor(SystemUsername))
	var selfAction *shared.SelfActionError
	require.ErrorAs(t, err, &selfAction)
	assert.Equal(t, "The 'system' user cannot be deactivated.", selfAction.Message)

	err = svc.Activate(context.Background(), SystemUsername)
	require.ErrorAs(t, err, &selfAction)
	assert.Equal(t, "The 'system' user account cannot be re-activated.", selfAction.Message)
}

func TestDeactivateSelf(t *testing.T) {
	repo := newMockRepo()
	repo.add("alice", namedRole(roles.RoleDeveloper))

	require.NoError(t, newTestService(repo).DeactivateSelf(context.Background(), actor("alice")))
	assert.False(t, repo.users["alice"].Enabled)
}

func TestCreateDefaultsToBaselineRole(t *testing.T) {
	repo := newMockRepo()

	user, err := newTestService(repo).Create(context.Background(), CreateUser{
		Username:  " carol ",
		Email:     "carol@example.com",
		Password:  "correct horse",
		FirstName: "Carol",
		LastName:  "Stone",
	})
	require.NoError(t, err)
	assert.Equal(t, "carol", user.Username)
	require.Len(t, user.Roles, 1)
	assert.Equal(t, roles.RoleUser, user.Roles[0].Name)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("correct horse")))
}

func TestCreateDuplicateUsername(t *testing.T) {
	repo := newMockRepo()
	repo.add("carol", namedRole(roles.RoleUser))

	_, err := newTestService(repo).Create(context.Background(), CreateUser{
		Username: "carol", Email: "new@example.com", Password: "pw123456",
	})
	require.ErrorIs(t, err, shared.ErrDuplicate)
	assert.Contains(t, err.Error(), "Username already exists: carol")
}

func TestUpdateRejectsTakenEmail(t *testing.T) {
	repo := newMockRepo()
	repo.add("carol", namedRole(roles.RoleUser))
	repo.add("dave", namedRole(roles.RoleUser))

	taken := "dave@example.com"
	_, err := newTestService(repo).Update(context.Background(), "carol", UpdateUser{Email: &taken})
	require.ErrorIs(t, err, shared.ErrDuplicate)
	assert.Contains(t, err.Error(), "Email dave@example.com is already in use.")
}
