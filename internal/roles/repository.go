package roles

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quarry-hq/quarry/internal/platform/db"
	"github.com/quarry-hq/quarry/internal/shared"
)

// TxRepository exposes the operations that must share a transaction with a
// role deletion: the holder count and the delete observe one snapshot.
type TxRepository interface {
	CountUsersWithRole(ctx context.Context, roleID int64) (int64, error)
	Delete(ctx context.Context, roleID int64) error
}

// Repository defines persistence operations for roles.
type Repository interface {
	List(ctx context.Context) ([]Role, error)
	GetByID(ctx context.Context, id int64) (*Role, error)
	GetByName(ctx context.Context, name string) (*Role, error)
	Create(ctx context.Context, name string, permissions []string) (*Role, error)
	SetPermissions(ctx context.Context, roleID int64, permissions []string) error
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

// List returns all roles with their permissions, ordered by name.
func (r *PGRepository) List(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.id, r.name, r.created_at, r.updated_at,
		       COALESCE(array_agg(rp.permission_name) FILTER (WHERE rp.permission_name IS NOT NULL), '{}')
		FROM roles r
		LEFT JOIN role_permissions rp ON rp.role_id = r.id
		GROUP BY r.id
		ORDER BY r.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.CreatedAt, &role.UpdatedAt, &role.Permissions); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetByID fetches a role with its permissions.
func (r *PGRepository) GetByID(ctx context.Context, id int64) (*Role, error) {
	return r.get(ctx, `WHERE r.id = $1`, id)
}

// GetByName fetches a role with its permissions by unique name.
func (r *PGRepository) GetByName(ctx context.Context, name string) (*Role, error) {
	return r.get(ctx, `WHERE r.name = $1`, name)
}

func (r *PGRepository) get(ctx context.Context, where string, arg any) (*Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `
		SELECT r.id, r.name, r.created_at, r.updated_at,
		       COALESCE(array_agg(rp.permission_name) FILTER (WHERE rp.permission_name IS NOT NULL), '{}')
		FROM roles r
		LEFT JOIN role_permissions rp ON rp.role_id = r.id
		`+where+`
		GROUP BY r.id`, arg).
		Scan(&role.ID, &role.Name, &role.CreatedAt, &role.UpdatedAt, &role.Permissions)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &role, nil
}

// Create inserts a role and attaches its permissions.
func (r *PGRepository) Create(ctx context.Context, name string, permissions []string) (*Role, error) {
	var created Role
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO roles (name) VALUES ($1) RETURNING id, name, created_at, updated_at`,
			name).Scan(&created.ID, &created.Name, &created.CreatedAt, &created.UpdatedAt)
		if err != nil {
			return mapUniqueViolation(err)
		}
		for _, perm := range permissions {
			if _, err := tx.Exec(ctx,
				`INSERT INTO role_permissions (role_id, permission_name) VALUES ($1, $2)`,
				created.ID, perm); err != nil {
				return err
			}
		}
		created.Permissions = permissions
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// SetPermissions replaces a role's permission set.
func (r *PGRepository) SetPermissions(ctx context.Context, roleID int64, permissions []string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return err
		}
		for _, perm := range permissions {
			if _, err := tx.Exec(ctx,
				`INSERT INTO role_permissions (role_id, permission_name) VALUES ($1, $2)`,
				roleID, perm); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, `UPDATE roles SET updated_at = now() WHERE id = $1`, roleID); err != nil {
			return err
		}
		return nil
	})
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

func (r *pgTxRepository) CountUsersWithRole(ctx context.Context, roleID int64) (int64, error) {
	var count int64
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM user_roles WHERE role_id = $1`, roleID).Scan(&count)
	return count, err
}

func (r *pgTxRepository) Delete(ctx context.Context, roleID int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return shared.ErrDuplicate
	}
	return err
}

var _ Repository = (*PGRepository)(nil)
