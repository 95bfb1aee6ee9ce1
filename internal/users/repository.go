package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quarry-hq/quarry/internal/platform/db"
	"github.com/quarry-hq/quarry/internal/roles"
	"github.com/quarry-hq/quarry/internal/shared"
)

// TxRepository is the transactional view used by user deletion: the
// reference counts and the delete observe one snapshot.
type TxRepository interface {
	ReferenceCounts(ctx context.Context, userID int64) (ReferenceCounts, error)
	Delete(ctx context.Context, userID int64) error
}

// Repository defines persistence operations for users and their role and
// permission memberships.
type Repository interface {
	List(ctx context.Context) ([]User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, user *User) (*User, error)
	UpdateProfile(ctx context.Context, user *User) error
	SetEnabled(ctx context.Context, username string, enabled bool) error
	SetPassword(ctx context.Context, username, passwordHash string) error
	AddRole(ctx context.Context, userID, roleID int64) error
	RemoveRole(ctx context.Context, userID, roleID int64) error
	AddPermission(ctx context.Context, userID int64, permission string) error
	RemovePermission(ctx context.Context, userID int64, permission string) error
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

const userColumns = `u.id, u.username, u.email, u.password_hash, u.first_name, u.last_name,
	u.enabled, u.created_at, u.updated_at`

// List returns all users with their memberships, ordered by username.
func (r *PGRepository) List(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users u ORDER BY u.username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := r.loadMemberships(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// GetByUsername fetches a user with roles and direct permissions.
func (r *PGRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users u WHERE u.username = $1`, username)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	if err := r.loadMemberships(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ExistsByEmail reports whether any user has the given email.
func (r *PGRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email).Scan(&exists)
	return exists, err
}

// Create inserts a user and its role memberships.
func (r *PGRepository) Create(ctx context.Context, user *User) (*User, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO users (username, email, password_hash, first_name, last_name, enabled)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, created_at, updated_at`,
			user.Username, user.Email, user.PasswordHash, user.FirstName, user.LastName, user.Enabled).
			Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
		if err != nil {
			return mapUniqueViolation(err)
		}
		for _, role := range user.Roles {
			if _, err := tx.Exec(ctx,
				`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`,
				user.ID, role.ID); err != nil {
				return err
			}
		}
		for _, perm := range user.Permissions {
			if _, err := tx.Exec(ctx,
				`INSERT INTO user_permissions (user_id, permission_name) VALUES ($1, $2)`,
				user.ID, perm); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateProfile persists the mutable profile fields. Username never changes.
func (r *PGRepository) UpdateProfile(ctx context.Context, user *User) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET email = $1, first_name = $2, last_name = $3, enabled = $4, updated_at = now()
		WHERE id = $5`,
		user.Email, user.FirstName, user.LastName, user.Enabled, user.ID)
	if err != nil {
		return mapUniqueViolation(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetEnabled flips the enabled flag.
func (r *PGRepository) SetEnabled(ctx context.Context, username string, enabled bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET enabled = $1, updated_at = now() WHERE username = $2`, enabled, username)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetPassword stores a new password hash.
func (r *PGRepository) SetPassword(ctx context.Context, username, passwordHash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $1, updated_at = now() WHERE username = $2`,
		passwordHash, username)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// AddRole attaches a role membership. Adding an existing membership is a
// no-op.
func (r *PGRepository) AddRole(ctx context.Context, userID, roleID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, roleID)
	return err
}

// RemoveRole detaches a role membership.
func (r *PGRepository) RemoveRole(ctx context.Context, userID, roleID int64) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	return err
}

// AddPermission attaches a direct permission grant.
func (r *PGRepository) AddPermission(ctx context.Context, userID int64, permission string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_permissions (user_id, permission_name) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, permission)
	return err
}

// RemovePermission detaches a direct permission grant.
func (r *PGRepository) RemovePermission(ctx context.Context, userID int64, permission string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM user_permissions WHERE user_id = $1 AND permission_name = $2`,
		userID, permission)
	return err
}

// WithTx runs fn against a transactional repository view.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

func (r *PGRepository) loadMemberships(ctx context.Context, user *User) error {
	roleRows, err := r.pool.Query(ctx, `
		SELECT r.id, r.name,
		       COALESCE(array_agg(rp.permission_name) FILTER (WHERE rp.permission_name IS NOT NULL), '{}')
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		LEFT JOIN role_permissions rp ON rp.role_id = r.id
		WHERE ur.user_id = $1
		GROUP BY r.id
		ORDER BY r.name`, user.ID)
	if err != nil {
		return err
	}
	defer roleRows.Close()
	user.Roles = user.Roles[:0]
	for roleRows.Next() {
		var role roles.Role
		if err := roleRows.Scan(&role.ID, &role.Name, &role.Permissions); err != nil {
			return err
		}
		user.Roles = append(user.Roles, role)
	}
	if err := roleRows.Err(); err != nil {
		return err
	}

	permRows, err := r.pool.Query(ctx,
		`SELECT permission_name FROM user_permissions WHERE user_id = $1 ORDER BY permission_name`,
		user.ID)
	if err != nil {
		return err
	}
	defer permRows.Close()
	user.Permissions = user.Permissions[:0]
	for permRows.Next() {
		var name string
		if err := permRows.Scan(&name); err != nil {
			return err
		}
		user.Permissions = append(user.Permissions, name)
	}
	return permRows.Err()
}

func scanUser(row pgx.Row) (*User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.FirstName, &user.LastName, &user.Enabled, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

type pgTxRepository struct {
	tx pgx.Tx
}

func (r *pgTxRepository) ReferenceCounts(ctx context.Context, userID int64) (ReferenceCounts, error) {
	var counts ReferenceCounts
	err := r.tx.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM projects WHERE created_by = $1),
			(SELECT COUNT(*) FROM projects WHERE last_modified_by = $1),
			(SELECT COUNT(*) FROM tickets WHERE assignee_id = $1),
			(SELECT COUNT(*) FROM tickets WHERE created_by = $1),
			(SELECT COUNT(*) FROM comments WHERE created_by = $1)`, userID).
		Scan(&counts.ProjectsCreated, &counts.ProjectsModified,
			&counts.TicketsAssigned, &counts.TicketsCreated, &counts.CommentsCreated)
	return counts, err
}

func (r *pgTxRepository) Delete(ctx context.Context, userID int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
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
