package tickets

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quarry-hq/quarry/internal/shared"
)

// Repository defines persistence operations for tickets.
type Repository interface {
	ListByProject(ctx context.Context, projectID int64) ([]Ticket, error)
	ListForUser(ctx context.Context, username string) ([]Ticket, error)
	GetByID(ctx context.Context, id int64) (*Ticket, error)
	Create(ctx context.Context, t *Ticket) (*Ticket, error)
	Update(ctx context.Context, t *Ticket) error
	SetStatus(ctx context.Context, id int64, status string) error
	TicketActors(ctx context.Context, ticketID int64) (creator, assignee string, err error)
	ListStaleOpen(ctx context.Context, updatedBefore time.Time) ([]Ticket, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const ticketSelect = `
	SELECT t.id, t.project_id, t.title, t.description, t.status,
	       t.created_by, cu.username,
	       t.assignee_id, COALESCE(au.username, ''),
	       t.created_at, t.updated_at
	FROM tickets t
	JOIN users cu ON cu.id = t.created_by
	LEFT JOIN users au ON au.id = t.assignee_id`

// ListByProject returns a project's tickets, newest first.
func (r *PGRepository) ListByProject(ctx context.Context, projectID int64) ([]Ticket, error) {
	rows, err := r.pool.Query(ctx, ticketSelect+` WHERE t.project_id = $1 ORDER BY t.created_at DESC`, projectID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// ListForUser returns tickets the user created or is assigned to.
func (r *PGRepository) ListForUser(ctx context.Context, username string) ([]Ticket, error) {
	rows, err := r.pool.Query(ctx,
		ticketSelect+` WHERE cu.username = $1 OR au.username = $1 ORDER BY t.created_at DESC`, username)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// GetByID fetches one ticket.
func (r *PGRepository) GetByID(ctx context.Context, id int64) (*Ticket, error) {
	row := r.pool.QueryRow(ctx, ticketSelect+` WHERE t.id = $1`, id)
	t, err := scan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

// Create inserts a ticket in the open state.
func (r *PGRepository) Create(ctx context.Context, t *Ticket) (*Ticket, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO tickets (project_id, title, description, status, created_by, assignee_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		t.ProjectID, t.Title, t.Description, StatusOpen, t.CreatedBy, t.AssigneeID).
		Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Status = StatusOpen
	return t, nil
}

// Update persists title, description and assignee.
func (r *PGRepository) Update(ctx context.Context, t *Ticket) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tickets SET title = $1, description = $2, assignee_id = $3, updated_at = now()
		WHERE id = $4`,
		t.Title, t.Description, t.AssigneeID, t.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetStatus transitions a ticket.
func (r *PGRepository) SetStatus(ctx context.Context, id int64, status string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tickets SET status = $1, updated_at = now() WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// TicketActors returns the creator and assignee usernames. The assignee is
// empty when unassigned.
func (r *PGRepository) TicketActors(ctx context.Context, ticketID int64) (string, string, error) {
	var creator, assignee string
	err := r.pool.QueryRow(ctx, `
		SELECT cu.username, COALESCE(au.username, '')
		FROM tickets t
		JOIN users cu ON cu.id = t.created_by
		LEFT JOIN users au ON au.id = t.assignee_id
		WHERE t.id = $1`, ticketID).Scan(&creator, &assignee)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", shared.ErrNotFound
		}
		return "", "", err
	}
	return creator, assignee, nil
}

// ListStaleOpen returns non-closed tickets untouched since the given time.
func (r *PGRepository) ListStaleOpen(ctx context.Context, updatedBefore time.Time) ([]Ticket, error) {
	rows, err := r.pool.Query(ctx,
		ticketSelect+` WHERE t.status <> $1 AND t.updated_at < $2 ORDER BY t.updated_at`,
		StatusClosed, updatedBefore)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]Ticket, error) {
	defer rows.Close()
	var out []Ticket
	for rows.Next() {
		t, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func scan(row pgx.Row) (*Ticket, error) {
	var t Ticket
	err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.Status,
		&t.CreatedBy, &t.CreatorUsername, &t.AssigneeID, &t.AssigneeUsername,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

var _ Repository = (*PGRepository)(nil)
