package permissions

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarry-hq/quarry/internal/shared"
)

type mockRepo struct {
	perms      map[string]*Permission
	roleRefs   map[string]int64
	directRefs map[string]int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		perms:      make(map[string]*Permission),
		roleRefs:   make(map[string]int64),
		directRefs: make(map[string]int64),
	}
}

func (m *mockRepo) add(name string) {
	m.perms[name] = &Permission{Name: name, CreatedAt: time.Now()}
}

func (m *mockRepo) List(_ context.Context) ([]Permission, error) {
	out := make([]Permission, 0, len(m.perms))
	for _, p := range m.perms {
		out = append(out, *p)
	}
	return out, nil
}

func (m *mockRepo) Get(_ context.Context, name string) (*Permission, error) {
	p, ok := m.perms[name]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (m *mockRepo) Create(_ context.Context, name, description string) (*Permission, error) {
	if _, ok := m.perms[name]; ok {
		return nil, shared.ErrDuplicate
	}
	p := &Permission{Name: name, Description: description, CreatedAt: time.Now()}
	m.perms[name] = p
	return p, nil
}

func (m *mockRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *mockRepo) CountRolesUsing(_ context.Context, name string) (int64, error) {
	return m.roleRefs[name], nil
}

func (m *mockRepo) CountUsersHoldingDirectly(_ context.Context, name string) (int64, error) {
	return m.directRefs[name], nil
}

func (m *mockRepo) Delete(_ context.Context, name string) error {
	if _, ok := m.perms[name]; !ok {
		return shared.ErrNotFound
	}
	delete(m.perms, name)
	return nil
}

var _ Repository = (*mockRepo)(nil)

func newTestService(repo Repository) *Service {
	return NewService(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDeleteUnreferencedPermission(t *testing.T) {
	repo := newMockRepo()
	repo.add("TICKET_EXPORT")

	require.NoError(t, newTestService(repo).Delete(context.Background(), "TICKET_EXPORT"))
	assert.NotContains(t, repo.perms, "TICKET_EXPORT")
}

func TestDeletePermissionUsedByRoles(t *testing.T) {
	repo := newMockRepo()
	repo.add("TICKET_UPDATE")
	repo.roleRefs["TICKET_UPDATE"] = 3

	err := newTestService(repo).Delete(context.Background(), "TICKET_UPDATE")

	var inUse *shared.ResourceInUseError
	require.ErrorAs(t, err, &inUse)
	assert.Equal(t, "Cannot delete permission. It is still used by 3 role(s).", inUse.Message)
	assert.Contains(t, repo.perms, "TICKET_UPDATE")
}

func TestDeletePermissionAssignedDirectly(t *testing.T) {
	repo := newMockRepo()
	repo.add("TICKET_READ_ALL")
	repo.directRefs["TICKET_READ_ALL"] = 1

	err := newTestService(repo).Delete(context.Background(), "TICKET_READ_ALL")

	var inUse *shared.ResourceInUseError
	require.ErrorAs(t, err, &inUse)
	assert.Equal(t, "Cannot delete permission. It is still directly assigned to 1 user(s).", inUse.Message)
}

func TestRoleReferenceReportedBeforeDirect(t *testing.T) {
	repo := newMockRepo()
	repo.add("USER_MANAGE")
	repo.roleRefs["USER_MANAGE"] = 2
	repo.directRefs["USER_MANAGE"] = 4

	err := newTestService(repo).Delete(context.Background(), "USER_MANAGE")

	var inUse *shared.ResourceInUseError
	require.ErrorAs(t, err, &inUse)
	assert.Contains(t, inUse.Message, "used by 2 role(s)")
}

func TestDeleteMissingPermission(t *testing.T) {
	err := newTestService(newMockRepo()).Delete(context.Background(), "NOPE")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreateNormalizesName(t *testing.T) {
	repo := newMockRepo()
	perm, err := newTestService(repo).Create(context.Background(), "  ROLE_AUDITOR ", "audit access")
	require.NoError(t, err)
	assert.Equal(t, "AUDITOR", perm.Name)
}
