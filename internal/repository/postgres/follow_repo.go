package postgres

import (
	"context"
	"time"

	"github.com/and161185/flasky/internal/model"
	"github.com/gofrs/uuid/v5"
)

// FollowRepo implements FollowRepository using PostgreSQL.
type FollowRepo struct{ db *DB }

// NewFollowRepo constructs a follow repository.
func NewFollowRepo(db *DB) *FollowRepo { return &FollowRepo{db: db} }

// Follow inserts the edge unless it already exists.
func (r *FollowRepo) Follow(ctx context.Context, follower, followed uuid.UUID, at time.Time) error {
	const q = `
INSERT INTO follows (follower_id, followed_id, created_at) VALUES ($1, $2, $3)
ON CONFLICT DO NOTHING`
	_, err := r.db.Pool.Exec(ctx, q, follower, followed, at)
	return err
}

// Unfollow deletes the edge.
func (r *FollowRepo) Unfollow(ctx context.Context, follower, followed uuid.UUID) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM follows WHERE follower_id=$1 AND followed_id=$2`, follower, followed)
	return err
}

// Exists reports whether the edge is present.
func (r *FollowRepo) Exists(ctx context.Context, follower, followed uuid.UUID) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM follows WHERE follower_id=$1 AND followed_id=$2)`
	var ok bool
	err := r.db.Pool.QueryRow(ctx, q, follower, followed).Scan(&ok)
	return ok, err
}

// Followers lists who follows userID.
func (r *FollowRepo) Followers(ctx context.Context, userID uuid.UUID, offset, limit int) ([]model.FollowEntry, int, error) {
	const (
		qCount = `SELECT count(*) FROM follows WHERE followed_id=$1 AND follower_id<>$1`
		qList  = `SELECT ` + userCols + `, f.created_at
FROM users u JOIN roles r ON r.id = u.role_id
JOIN follows f ON f.follower_id = u.id
WHERE f.followed_id=$1 AND f.follower_id<>$1
ORDER BY f.created_at DESC
OFFSET $2 LIMIT $3`
	)
	return r.list(ctx, qCount, qList, userID, offset, limit)
}

// Followed lists whom userID follows.
func (r *FollowRepo) Followed(ctx context.Context, userID uuid.UUID, offset, limit int) ([]model.FollowEntry, int, error) {
	const (
		qCount = `SELECT count(*) FROM follows WHERE follower_id=$1 AND followed_id<>$1`
		qList  = `SELECT ` + userCols + `, f.created_at
FROM users u JOIN roles r ON r.id = u.role_id
JOIN follows f ON f.followed_id = u.id
WHERE f.follower_id=$1 AND f.followed_id<>$1
ORDER BY f.created_at DESC
OFFSET $2 LIMIT $3`
	)
	return r.list(ctx, qCount, qList, userID, offset, limit)
}

func (r *FollowRepo) list(ctx context.Context, qCount, qList string, userID uuid.UUID, offset, limit int) ([]model.FollowEntry, int, error) {
	var total int
	if err := r.db.Pool.QueryRow(ctx, qCount, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Pool.Query(ctx, qList, userID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []model.FollowEntry
	for rows.Next() {
		var (
			e     model.FollowEntry
			perms int
		)
		u := &e.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Username, &u.PwdHash, &u.SaltAuth, &u.Confirmed,
			&u.Name, &u.Location, &u.AboutMe, &u.AvatarHash, &u.MemberSince, &u.LastSeen,
			&u.Role.ID, &u.Role.Name, &u.Role.Default, &perms, &e.Since); err != nil {
			return nil, 0, err
		}
		u.Role.Permissions = model.Permission(perms)
		out = append(out, e)
	}
	return out, total, rows.Err()
}

// BackfillSelfFollows inserts the missing self edges.
func (r *FollowRepo) BackfillSelfFollows(ctx context.Context) (int64, error) {
	const q = `
INSERT INTO follows (follower_id, followed_id, created_at)
SELECT id, id, member_since FROM users
ON CONFLICT DO NOTHING`
	tag, err := r.db.Pool.Exec(ctx, q)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
