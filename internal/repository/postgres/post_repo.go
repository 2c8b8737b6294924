package postgres

import (
	"context"

	"github.com/and161185/flasky/internal/errs"
	"github.com/and161185/flasky/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// PostRepo implements PostRepository using PostgreSQL.
type PostRepo struct{ db *DB }

// NewPostRepo constructs a post repository.
func NewPostRepo(db *DB) *PostRepo { return &PostRepo{db: db} }

const postSelect = `
SELECT p.id, p.body, p.body_html, p.created_at, p.author_id,
       (SELECT count(*) FROM comments c WHERE c.post_id = p.id)
FROM posts p`

func scanPost(row pgx.Row) (model.Post, error) {
	var p model.Post
	err := row.Scan(&p.ID, &p.Body, &p.BodyHTML, &p.CreatedAt, &p.AuthorID, &p.Comments)
	return p, err
}

// Create inserts a post.
func (r *PostRepo) Create(ctx context.Context, p *model.Post) error {
	const q = `
INSERT INTO posts (id, body, body_html, created_at, author_id)
VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.Pool.Exec(ctx, q, p.ID, p.Body, p.BodyHTML, p.CreatedAt, p.AuthorID)
	return err
}

// Update stores a new body and its rendered HTML.
func (r *PostRepo) Update(ctx context.Context, p *model.Post) error {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE posts SET body=$2, body_html=$3 WHERE id=$1`, p.ID, p.Body, p.BodyHTML)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// GetByID selects one post.
func (r *PostRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Post, error) {
	p, err := scanPost(r.db.Pool.QueryRow(ctx, postSelect+` WHERE p.id=$1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// List pages through all posts.
func (r *PostRepo) List(ctx context.Context, offset, limit int) ([]model.Post, int, error) {
	return r.page(ctx,
		`SELECT count(*) FROM posts`,
		postSelect+` ORDER BY p.created_at DESC OFFSET $1 LIMIT $2`,
		nil, offset, limit)
}

// ListByAuthor pages through one author's posts.
func (r *PostRepo) ListByAuthor(ctx context.Context, authorID uuid.UUID, offset, limit int) ([]model.Post, int, error) {
	return r.page(ctx,
		`SELECT count(*) FROM posts WHERE author_id=$1`,
		postSelect+` WHERE p.author_id=$1 ORDER BY p.created_at DESC OFFSET $2 LIMIT $3`,
		[]any{authorID}, offset, limit)
}

// ListFollowed pages through posts of authors followed by userID.
func (r *PostRepo) ListFollowed(ctx context.Context, userID uuid.UUID, offset, limit int) ([]model.Post, int, error) {
	return r.page(ctx,
		`SELECT count(*) FROM posts p JOIN follows f ON f.followed_id = p.author_id WHERE f.follower_id=$1`,
		postSelect+` JOIN follows f ON f.followed_id = p.author_id WHERE f.follower_id=$1 ORDER BY p.created_at DESC OFFSET $2 LIMIT $3`,
		[]any{userID}, offset, limit)
}

// CountByAuthor returns how many posts the author wrote.
func (r *PostRepo) CountByAuthor(ctx context.Context, authorID uuid.UUID) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM posts WHERE author_id=$1`, authorID).Scan(&n)
	return n, err
}

func (r *PostRepo) page(ctx context.Context, qCount, qList string, args []any, offset, limit int) ([]model.Post, int, error) {
	var total int
	if err := r.db.Pool.QueryRow(ctx, qCount, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Pool.Query(ctx, qList, append(args, offset, limit)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []model.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}
