package permissions

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quarry-hq/quarry/internal/platform/db"
	"github.com/quarry-hq/quarry/internal/shared"
)

// TxRepository groups the reference counts and the delete into one
// transactional view.
type TxRepository interface {
	CountRolesUsing(ctx context.Context, name string) (int64, error)
	CountUsersHoldingDirectly(ctx context.Context, name string) (int64, error)
	Delete(ctx context.Context, name string) error
}

// Repository defines persistence operations for the permission catalog.
type Repository interface {
	List(ctx context.Context) ([]Permission, error)
	Get(ctx context.Context, name string) (*Permission, error)
	Create(ctx context.Context, name, description string) (*Permission, error)
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

// List returns the catalog ordered by name.
func (r *PGRepository) List(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT name, description, created_at FROM permissions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.Name, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// Get fetches a single permission.
func (r *PGRepository) Get(ctx context.Context, name string) (*Permission, error) {
	var p Permission
	err := r.pool.QueryRow(ctx,
		`SELECT name, description, created_at FROM permissions WHERE name = $1`, name).
		Scan(&p.Name, &p.Description, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Create inserts a new permission.
func (r *PGRepository) Create(ctx context.Context, name, description string) (*Permission, error) {
	var p Permission
	err := r.pool.QueryRow(ctx,
		`INSERT INTO permissions (name, description) VALUES ($1, $2)
		 RETURNING name, description, created_at`,
		name, description).Scan(&p.Name, &p.Description, &p.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, shared.ErrDuplicate
		}
		return nil, err
	}
	return &p, nil
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

func (r *pgTxRepository) CountRolesUsing(ctx context.Context, name string) (int64, error) {
	var count int64
	err := r.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM role_permissions WHERE permission_name = $1`, name).Scan(&count)
	return count, err
}

func (r *pgTxRepository) CountUsersHoldingDirectly(ctx context.Context, name string) (int64, error) {
	var count int64
	err := r.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM user_permissions WHERE permission_name = $1`, name).Scan(&count)
	return count, err
}

func (r *pgTxRepository) Delete(ctx context.Context, name string) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM permissions WHERE name = $1`, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
