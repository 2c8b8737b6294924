package postgres

import (
	"context"
	"time"

	"github.com/and161185/flasky/internal/errs"
	"github.com/and161185/flasky/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

const (
	userCols = `
u.id, u.email, u.username, u.pwd_hash, u.salt_auth, u.confirmed,
u.name, u.location, u.about_me, u.avatar_hash, u.member_since, u.last_seen,
r.id, r.name, r.is_default, r.permissions`
	userSelect = `SELECT ` + userCols + ` FROM users u JOIN roles r ON r.id = u.role_id`
)

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u     model.User
		perms int
	)
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PwdHash, &u.SaltAuth, &u.Confirmed,
		&u.Name, &u.Location, &u.AboutMe, &u.AvatarHash, &u.MemberSince, &u.LastSeen,
		&u.Role.ID, &u.Role.Name, &u.Role.Default, &perms)
	if err != nil {
		return nil, err
	}
	u.Role.Permissions = model.Permission(perms)
	return &u, nil
}

// Create inserts a new user row and its self-follow edge in one transaction.
func (r *UserRepo) Create(ctx context.Context, u *model.User) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const qUser = `
INSERT INTO users (id, email, username, role_id, pwd_hash, salt_auth, confirmed,
                   name, location, about_me, avatar_hash, member_since, last_seen)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err = tx.Exec(ctx, qUser, u.ID, u.Email, u.Username, u.Role.ID, u.PwdHash, u.SaltAuth, u.Confirmed,
		u.Name, u.Location, u.AboutMe, u.AvatarHash, u.MemberSince, u.LastSeen)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	if err != nil {
		return err
	}

	const qSelf = `
INSERT INTO follows (follower_id, followed_id, created_at) VALUES ($1, $1, $2)
ON CONFLICT DO NOTHING`
	_, err = tx.Exec(ctx, qSelf, u.ID, u.MemberSince)
	return err
}

// GetByID selects a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	u, err := scanUser(r.db.Pool.QueryRow(ctx, userSelect+` WHERE u.id=$1`, id))
	return u, notFound(err)
}

// GetByEmail selects a user by email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(r.db.Pool.QueryRow(ctx, userSelect+` WHERE u.email=$1`, email))
	return u, notFound(err)
}

// GetByUsername selects a user by username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	u, err := scanUser(r.db.Pool.QueryRow(ctx, userSelect+` WHERE u.username=$1`, username))
	return u, notFound(err)
}

// Update overwrites the mutable columns of a user.
func (r *UserRepo) Update(ctx context.Context, u *model.User) error {
	const q = `
UPDATE users SET email=$2, username=$3, role_id=$4, pwd_hash=$5, salt_auth=$6, confirmed=$7,
                 name=$8, location=$9, about_me=$10, avatar_hash=$11
WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, u.ID, u.Email, u.Username, u.Role.ID, u.PwdHash, u.SaltAuth, u.Confirmed,
		u.Name, u.Location, u.AboutMe, u.AvatarHash)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Touch refreshes last_seen.
func (r *UserRepo) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE users SET last_seen=$2 WHERE id=$1`, id, at)
	return err
}

// Delete removes follow edges in both directions, then the user.
func (r *UserRepo) Delete(ctx context.Context, id uuid.UUID) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	if _, err = tx.Exec(ctx, `DELETE FROM follows WHERE follower_id=$1 OR followed_id=$1`, id); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		err = errs.ErrNotFound
		return err
	}
	return nil
}
