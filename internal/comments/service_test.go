package comments

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarry-hq/quarry/internal/authz"
	"github.com/quarry-hq/quarry/internal/shared"
)

type mockRepo struct {
	comments map[int64]*Comment
	nextID   int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{comments: make(map[int64]*Comment), nextID: 1}
}

func (m *mockRepo) add(ticketID int64, author, body string) *Comment {
	c := &Comment{ID: m.nextID, TicketID: ticketID, Body: body, AuthorUsername: author}
	m.comments[c.ID] = c
	m.nextID++
	return c
}

func (m *mockRepo) ListByTicket(_ context.Context, ticketID int64) ([]Comment, error) {
	var out []Comment
	for _, c := range m.comments {
		if c.TicketID == ticketID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *mockRepo) GetByID(_ context.Context, id int64) (*Comment, error) {
	c, ok := m.comments[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (m *mockRepo) Create(_ context.Context, c *Comment) (*Comment, error) {
	c.ID = m.nextID
	m.nextID++
	m.comments[c.ID] = c
	return c, nil
}

func (m *mockRepo) UpdateBody(_ context.Context, id int64, body string) error {
	c, ok := m.comments[id]
	if !ok {
		return shared.ErrNotFound
	}
	c.Body = body
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id int64) error {
	if _, ok := m.comments[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.comments, id)
	return nil
}

func (m *mockRepo) CommentAuthor(_ context.Context, id int64) (string, error) {
	c, ok := m.comments[id]
	if !ok {
		return "", shared.ErrNotFound
	}
	return c.AuthorUsername, nil
}

var _ Repository = (*mockRepo)(nil)

// stubTicketRepo grants every actor access to every ticket so the tests
// exercise only the comment ownership decision.
type stubTicketRepo struct{}

func (stubTicketRepo) TicketActors(_ context.Context, _ int64) (string, string, error) {
	return "", "", shared.ErrNotFound
}

func newTestService(repo *mockRepo) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	decider := authz.NewDecider(stubTicketRepo{}, repo, logger)
	return NewService(repo, decider, logger)
}

func principal(username string, authorities ...string) *shared.Principal {
	return &shared.Principal{Username: username, Authorities: authorities}
}

func TestUpdateDeniedForNonOwner(t *testing.T) {
	repo := newMockRepo()
	c := repo.add(1, "alice", "original")
	svc := newTestService(repo)

	_, err := svc.Update(context.Background(), c.ID, "edited", principal("mallory"))
	assert.ErrorIs(t, err, shared.ErrForbidden)
	assert.Equal(t, "original", repo.comments[c.ID].Body)
}

func TestUpdateAllowedForOwner(t *testing.T) {
	repo := newMockRepo()
	c := repo.add(1, "alice", "original")

	updated, err := newTestService(repo).Update(context.Background(), c.ID, " edited ", principal("alice"))
	require.NoError(t, err)
	assert.Equal(t, "edited", updated.Body)
}

func TestUpdateAllowedWithBlanketAuthority(t *testing.T) {
	repo := newMockRepo()
	c := repo.add(1, "alice", "original")

	_, err := newTestService(repo).Update(context.Background(), c.ID, "edited",
		principal("supervisor", authz.PermTicketUpdate))
	assert.NoError(t, err)
}

func TestDeleteDeniedForNilPrincipal(t *testing.T) {
	repo := newMockRepo()
	c := repo.add(1, "alice", "original")

	err := newTestService(repo).Delete(context.Background(), c.ID, nil)
	assert.ErrorIs(t, err, shared.ErrForbidden)
	assert.Contains(t, repo.comments, c.ID)
}

func TestDeleteByOwner(t *testing.T) {
	repo := newMockRepo()
	c := repo.add(1, "alice", "original")

	require.NoError(t, newTestService(repo).Delete(context.Background(), c.ID, principal("alice")))
	assert.NotContains(t, repo.comments, c.ID)
}
