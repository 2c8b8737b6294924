package postgres

import (
	"context"

	"github.com/and161185/flasky/internal/model"
	"github.com/gofrs/uuid/v5"
)

// RoleRepo implements RoleRepository using PostgreSQL.
type RoleRepo struct{ db *DB }

// NewRoleRepo constructs a role repository.
func NewRoleRepo(db *DB) *RoleRepo { return &RoleRepo{db: db} }

const roleCols = `id, name, is_default, permissions`

// Upsert inserts the role or updates the existing row with the same name.
func (r *RoleRepo) Upsert(ctx context.Context, role *model.Role) error {
	if role.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		role.ID = id
	}
	const q = `
INSERT INTO roles (id, name, is_default, permissions)
VALUES ($1, $2, $3, $4)
ON CONFLICT (name) DO UPDATE SET is_default = EXCLUDED.is_default, permissions = EXCLUDED.permissions
RETURNING id`
	return r.db.Pool.QueryRow(ctx, q, role.ID, role.Name, role.Default, int(role.Permissions)).Scan(&role.ID)
}

func (r *RoleRepo) one(ctx context.Context, q string, args ...any) (*model.Role, error) {
	var (
		role  model.Role
		perms int
	)
	if err := r.db.Pool.QueryRow(ctx, q, args...).Scan(&role.ID, &role.Name, &role.Default, &perms); err != nil {
		return nil, notFound(err)
	}
	role.Permissions = model.Permission(perms)
	return &role, nil
}

// GetByID selects a role by id.
func (r *RoleRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Role, error) {
	return r.one(ctx, `SELECT `+roleCols+` FROM roles WHERE id=$1`, id)
}

// GetByName selects a role by name.
func (r *RoleRepo) GetByName(ctx context.Context, name string) (*model.Role, error) {
	return r.one(ctx, `SELECT `+roleCols+` FROM roles WHERE name=$1`, name)
}

// GetDefault selects the default role.
func (r *RoleRepo) GetDefault(ctx context.Context) (*model.Role, error) {
	return r.one(ctx, `SELECT `+roleCols+` FROM roles WHERE is_default ORDER BY name LIMIT 1`)
}

// GetByPermissions selects a role holding exactly perms.
func (r *RoleRepo) GetByPermissions(ctx context.Context, perms model.Permission) (*model.Role, error) {
	return r.one(ctx, `SELECT `+roleCols+` FROM roles WHERE permissions=$1 ORDER BY name LIMIT 1`, int(perms))
}

// List returns all roles.
func (r *RoleRepo) List(ctx context.Context) ([]model.Role, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+roleCols+` FROM roles ORDER BY permissions, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Role
	for rows.Next() {
		var (
			role  model.Role
			perms int
		)
		if err := rows.Scan(&role.ID, &role.Name, &role.Default, &perms); err != nil {
			return nil, err
		}
		role.Permissions = model.Permission(perms)
		out = append(out, role)
	}
	return out, rows.Err()
}
