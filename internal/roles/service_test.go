package roles

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarry-hq/quarry/internal/shared"
)

type mockRepo struct {
	roles   map[int64]*Role
	holders map[int64]int64
	nextID  int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		roles:   make(map[int64]*Role),
		holders: make(map[int64]int64),
		nextID:  1,
	}
}

func (m *mockRepo) add(name string, permissions ...string) *Role {
	role := &Role{ID: m.nextID, Name: name, Permissions: permissions}
	m.roles[role.ID] = role
	m.nextID++
	return role
}

func (m *mockRepo) List(_ context.Context) ([]Role, error) {
	out := make([]Role, 0, len(m.roles))
	for _, role := range m.roles {
		out = append(out, *role)
	}
	return out, nil
}

func (m *mockRepo) GetByID(_ context.Context, id int64) (*Role, error) {
	role, ok := m.roles[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *role
	return &copied, nil
}

func (m *mockRepo) GetByName(_ context.Context, name string) (*Role, error) {
	for _, role := range m.roles {
		if role.Name == name {
			copied := *role
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *mockRepo) Create(_ context.Context, name string, permissions []string) (*Role, error) {
	for _, role := range m.roles {
		if role.Name == name {
			return nil, shared.ErrDuplicate
		}
	}
	return m.add(name, permissions...), nil
}

func (m *mockRepo) SetPermissions(_ context.Context, roleID int64, permissions []string) error {
	role, ok := m.roles[roleID]
	if !ok {
		return shared.ErrNotFound
	}
	role.Permissions = permissions
	return nil
}

func (m *mockRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *mockRepo) CountUsersWithRole(_ context.Context, roleID int64) (int64, error) {
	return m.holders[roleID], nil
}

func (m *mockRepo) Delete(_ context.Context, roleID int64) error {
	if _, ok := m.roles[roleID]; !ok {
		return shared.ErrNotFound
	}
	delete(m.roles, roleID)
	return nil
}

var _ Repository = (*mockRepo)(nil)

func newTestService(repo Repository) *Service {
	return NewService(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDeleteUnassignedRole(t *testing.T) {
	repo := newMockRepo()
	role := repo.add("ROLE_REPORTER")

	svc := newTestService(repo)
	require.NoError(t, svc.Delete(context.Background(), role.ID))

	_, err := repo.GetByID(context.Background(), role.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDeleteReservedRoleRejected(t *testing.T) {
	repo := newMockRepo()
	admin := repo.add(RoleAdmin)
	user := repo.add(RoleUser)
	svc := newTestService(repo)

	for _, role := range []*Role{admin, user} {
		err := svc.Delete(context.Background(), role.ID)

		var selfAction *shared.SelfActionError
		require.ErrorAs(t, err, &selfAction)
		assert.Equal(t, "Cannot delete core system role: "+role.Name, selfAction.Message)

		_, err = repo.GetByID(context.Background(), role.ID)
		assert.NoError(t, err, "reserved role must survive the attempt")
	}
}

func TestDeleteRoleStillAssigned(t *testing.T) {
	repo := newMockRepo()
	role := repo.add("ROLE_TESTER")
	repo.holders[role.ID] = 5

	err := newTestService(repo).Delete(context.Background(), role.ID)

	var inUse *shared.ResourceInUseError
	require.ErrorAs(t, err, &inUse)
	assert.Equal(t, "Cannot delete role. It is still assigned to 5 user(s).", inUse.Message)

	_, err = repo.GetByID(context.Background(), role.ID)
	assert.NoError(t, err, "blocked delete must not remove the role")
}

func TestDeleteMissingRole(t *testing.T) {
	err := newTestService(newMockRepo()).Delete(context.Background(), 42)

	require.ErrorIs(t, err, shared.ErrNotFound)
	assert.Contains(t, err.Error(), "Role not found with id: 42")
}

func TestSetPermissionsNormalizes(t *testing.T) {
	repo := newMockRepo()
	role := repo.add("ROLE_TESTER", "TICKET_READ")

	updated, err := newTestService(repo).SetPermissions(context.Background(), role.ID,
		[]string{" TICKET_UPDATE ", "ROLE_AUDITOR"})
	require.NoError(t, err)
	assert.Equal(t, []string{"AUDITOR", "TICKET_UPDATE"}, updated.Permissions)
}

func TestCreateDuplicateRole(t *testing.T) {
	repo := newMockRepo()
	repo.add("ROLE_TESTER")

	_, err := newTestService(repo).Create(context.Background(), "ROLE_TESTER", nil)
	assert.True(t, errors.Is(err, shared.ErrDuplicate))
}
