package service

import (
	"context"
	"time"

	"github.com/and161185/flasky/internal/model"
	"github.com/and161185/flasky/internal/repository"
	"github.com/gofrs/uuid/v5"
)

// LastPage asks ListByPost for the final page.
const LastPage = -1

// CommentService manages comments and their moderation.
type CommentService interface {
	Create(ctx context.Context, p model.Principal, postID uuid.UUID, body string) (*model.Comment, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Comment, error)
	// ListByPost pages oldest first; LastPage selects the final page.
	ListByPost(ctx context.Context, postID uuid.UUID, page int) (model.Page[model.Comment], error)
	List(ctx context.Context, page int) (model.Page[model.Comment], error)
	// Moderate lists every comment for moderators, newest first.
	Moderate(ctx context.Context, p model.Principal, page int) (model.Page[model.Comment], error)
	SetDisabled(ctx context.Context, p model.Principal, id uuid.UUID, disabled bool) (*model.Comment, error)
}

// CommentServiceImpl implements CommentService.
type CommentServiceImpl struct {
	comments repository.CommentRepository
	posts    repository.PostRepository
	perPage  int
	now      func() time.Time
}

// NewCommentService constructs CommentService.
func NewCommentService(comments repository.CommentRepository, posts repository.PostRepository, perPage int) *CommentServiceImpl {
	if perPage <= 0 {
		perPage = DefaultPaging.Comments
	}
	return &CommentServiceImpl{comments: comments, posts: posts, perPage: perPage, now: time.Now}
}

// Create attaches a comment by p to an existing post.
func (s *CommentServiceImpl) Create(ctx context.Context, p model.Principal, postID uuid.UUID, body string) (*model.Comment, error) {
	if err := Require(p, model.PermComment); err != nil {
		return nil, err
	}
	if _, err := s.posts.GetByID(ctx, postID); err != nil {
		return nil, err
	}
	if err := validateBody(body, "comment"); err != nil {
		return nil, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	c := &model.Comment{ID: id, CreatedAt: s.now().UTC(), AuthorID: p.ID(), PostID: postID}
	c.SetBody(body)
	if err := s.comments.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Get loads one comment.
func (s *CommentServiceImpl) Get(ctx context.Context, id uuid.UUID) (*model.Comment, error) {
	return s.comments.GetByID(ctx, id)
}

// ListByPost pages through a post's comments.
func (s *CommentServiceImpl) ListByPost(ctx context.Context, postID uuid.UUID, page int) (model.Page[model.Comment], error) {
	if _, err := s.posts.GetByID(ctx, postID); err != nil {
		return model.Page[model.Comment]{}, err
	}
	if page == LastPage {
		_, total, err := s.comments.ListByPost(ctx, postID, 0, 0)
		if err != nil {
			return model.Page[model.Comment]{}, err
		}
		page = model.Page[model.Comment]{PerPage: s.perPage, Total: total}.Pages()
	}
	items, total, err := s.comments.ListByPost(ctx, postID, model.Offset(page, s.perPage), s.perPage)
	if err != nil {
		return model.Page[model.Comment]{}, err
	}
	return pageOf(items, total, page, s.perPage), nil
}

// List pages through all comments, newest first.
func (s *CommentServiceImpl) List(ctx context.Context, page int) (model.Page[model.Comment], error) {
	items, total, err := s.comments.List(ctx, model.Offset(page, s.perPage), s.perPage)
	if err != nil {
		return model.Page[model.Comment]{}, err
	}
	return pageOf(items, total, page, s.perPage), nil
}

// Moderate requires PermModerateComments.
func (s *CommentServiceImpl) Moderate(ctx context.Context, p model.Principal, page int) (model.Page[model.Comment], error) {
	if err := Require(p, model.PermModerateComments); err != nil {
		return model.Page[model.Comment]{}, err
	}
	return s.List(ctx, page)
}

// SetDisabled hides or restores a comment.
func (s *CommentServiceImpl) SetDisabled(ctx context.Context, p model.Principal, id uuid.UUID, disabled bool) (*model.Comment, error) {
	if err := Require(p, model.PermModerateComments); err != nil {
		return nil, err
	}
	if err := s.comments.SetDisabled(ctx, id, disabled); err != nil {
		return nil, err
	}
	return s.comments.GetByID(ctx, id)
}
