package postgres

import (
	"context"

	"github.com/and161185/flasky/internal/errs"
	"github.com/and161185/flasky/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// CommentRepo implements CommentRepository using PostgreSQL.
type CommentRepo struct{ db *DB }

// NewCommentRepo constructs a comment repository.
func NewCommentRepo(db *DB) *CommentRepo { return &CommentRepo{db: db} }

const commentSelect = `SELECT id, body, body_html, created_at, disabled, author_id, post_id FROM comments`

func scanComment(row pgx.Row) (model.Comment, error) {
	var c model.Comment
	err := row.Scan(&c.ID, &c.Body, &c.BodyHTML, &c.CreatedAt, &c.Disabled, &c.AuthorID, &c.PostID)
	return c, err
}

// Create inserts a comment.
func (r *CommentRepo) Create(ctx context.Context, c *model.Comment) error {
	const q = `
INSERT INTO comments (id, body, body_html, created_at, disabled, author_id, post_id)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.Pool.Exec(ctx, q, c.ID, c.Body, c.BodyHTML, c.CreatedAt, c.Disabled, c.AuthorID, c.PostID)
	return err
}

// GetByID selects one comment.
func (r *CommentRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Comment, error) {
	c, err := scanComment(r.db.Pool.QueryRow(ctx, commentSelect+` WHERE id=$1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// ListByPost pages through a post's comments, oldest first.
func (r *CommentRepo) ListByPost(ctx context.Context, postID uuid.UUID, offset, limit int) ([]model.Comment, int, error) {
	return r.page(ctx,
		`SELECT count(*) FROM comments WHERE post_id=$1`,
		commentSelect+` WHERE post_id=$1 ORDER BY created_at ASC OFFSET $2 LIMIT $3`,
		[]any{postID}, offset, limit)
}

// List pages through all comments, newest first.
func (r *CommentRepo) List(ctx context.Context, offset, limit int) ([]model.Comment, int, error) {
	return r.page(ctx,
		`SELECT count(*) FROM comments`,
		commentSelect+` ORDER BY created_at DESC OFFSET $1 LIMIT $2`,
		nil, offset, limit)
}

// SetDisabled flips the moderation flag.
func (r *CommentRepo) SetDisabled(ctx context.Context, id uuid.UUID, disabled bool) error {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE comments SET disabled=$2 WHERE id=$1`, id, disabled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *CommentRepo) page(ctx context.Context, qCount, qList string, args []any, offset, limit int) ([]model.Comment, int, error) {
	var total int
	if err := r.db.Pool.QueryRow(ctx, qCount, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Pool.Query(ctx, qList, append(args, offset, limit)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []model.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}
