package projects

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quarry-hq/quarry/internal/platform/db"
	"github.com/quarry-hq/quarry/internal/shared"
)

// TxRepository pairs the open-ticket count with the delete in one snapshot.
type TxRepository interface {
	CountOpenTickets(ctx context.Context, projectID int64) (int64, error)
	Delete(ctx context.Context, projectID int64) error
}

// Repository defines persistence operations for projects.
type Repository interface {
	List(ctx context.Context) ([]Project, error)
	GetByID(ctx context.Context, id int64) (*Project, error)
	Create(ctx context.Context, p *Project) (*Project, error)
	Update(ctx context.Context, p *Project) error
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const projectColumns = `id, name, description, created_by, last_modified_by, created_at, updated_at`

// List returns all projects ordered by name.
func (r *PGRepository) List(ctx context.Context) ([]Project, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedBy, &p.LastModifiedBy,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetByID fetches one project.
func (r *PGRepository) GetByID(ctx context.Context, id int64) (*Project, error) {
	var p Project
	err := r.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Description, &p.CreatedBy, &p.LastModifiedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Create inserts a project.
func (r *PGRepository) Create(ctx context.Context, p *Project) (*Project, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO projects (name, description, created_by, last_modified_by)
		VALUES ($1, $2, $3, $3)
		RETURNING id, created_at, updated_at`,
		p.Name, p.Description, p.CreatedBy).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, shared.ErrDuplicate
		}
		return nil, err
	}
	p.LastModifiedBy = p.CreatedBy
	return p, nil
}

// Update persists name, description and the modifying user.
func (r *PGRepository) Update(ctx context.Context, p *Project) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE projects SET name = $1, description = $2, last_modified_by = $3, updated_at = now()
		WHERE id = $4`,
		p.Name, p.Description, p.LastModifiedBy, p.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// WithTx runs fn against a transactional repository view.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

type pgTxRepository struct {
	tx pgx.Tx
}

func (r *pgTxRepository) CountOpenTickets(ctx context.Context, projectID int64) (int64, error) {
	var count int64
	err := r.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM tickets WHERE project_id = $1 AND status <> 'CLOSED'`,
		projectID).Scan(&count)
	return count, err
}

func (r *pgTxRepository) Delete(ctx context.Context, projectID int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM projects WHERE id = $1`, projectID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
