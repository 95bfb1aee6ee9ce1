package comments

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quarry-hq/quarry/internal/shared"
)

// Repository defines persistence operations for comments.
type Repository interface {
	ListByTicket(ctx context.Context, ticketID int64) ([]Comment, error)
	GetByID(ctx context.Context, id int64) (*Comment, error)
	Create(ctx context.Context, c *Comment) (*Comment, error)
	UpdateBody(ctx context.Context, id int64, body string) error
	Delete(ctx context.Context, id int64) error
	CommentAuthor(ctx context.Context, commentID int64) (string, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const commentSelect = `
	SELECT c.id, c.ticket_id, c.body, c.created_by, u.username, c.created_at, c.updated_at
	FROM comments c
	JOIN users u ON u.id = c.created_by`

// ListByTicket returns a ticket's comments in posting order.
func (r *PGRepository) ListByTicket(ctx context.Context, ticketID int64) ([]Comment, error) {
	rows, err := r.pool.Query(ctx, commentSelect+` WHERE c.ticket_id = $1 ORDER BY c.created_at`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.TicketID, &c.Body, &c.CreatedBy, &c.AuthorUsername,
			&c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetByID fetches one comment.
func (r *PGRepository) GetByID(ctx context.Context, id int64) (*Comment, error) {
	var c Comment
	err := r.pool.QueryRow(ctx, commentSelect+` WHERE c.id = $1`, id).
		Scan(&c.ID, &c.TicketID, &c.Body, &c.CreatedBy, &c.AuthorUsername, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// Create inserts a comment.
func (r *PGRepository) Create(ctx context.Context, c *Comment) (*Comment, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO comments (ticket_id, body, created_by)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`,
		c.TicketID, c.Body, c.CreatedBy).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateBody replaces a comment's text.
func (r *PGRepository) UpdateBody(ctx context.Context, id int64, body string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE comments SET body = $1, updated_at = now() WHERE id = $2`, body, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes a comment.
func (r *PGRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CommentAuthor returns the author's username.
func (r *PGRepository) CommentAuthor(ctx context.Context, commentID int64) (string, error) {
	var username string
	err := r.pool.QueryRow(ctx, `
		SELECT u.username FROM comments c JOIN users u ON u.id = c.created_by
		WHERE c.id = $1`, commentID).Scan(&username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", shared.ErrNotFound
		}
		return "", err
	}
	return username, nil
}

var _ Repository = (*PGRepository)(nil)
