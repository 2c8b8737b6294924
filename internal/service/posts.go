package service

import (
	"context"
	"strings"
	"time"

	"github.com/and161185/flasky/internal/errs"
	"github.com/and161185/flasky/internal/model"
	"github.com/and161185/flasky/internal/repository"
	"github.com/gofrs/uuid/v5"
)

// PostService manages blog posts.
type PostService interface {
	Create(ctx context.Context, p model.Principal, body string) (*model.Post, error)
	// Edit replaces the body of an existing post owned by p (or any post for administrators).
	// A nil body keeps the current one.
	Edit(ctx context.Context, p model.Principal, id uuid.UUID, body *string) (*model.Post, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Post, error)
	List(ctx context.Context, page int) (model.Page[model.Post], error)
	ListByAuthor(ctx context.Context, authorID uuid.UUID, page int) (model.Page[model.Post], error)
	// Timeline lists posts of users followed by userID, own posts included.
	Timeline(ctx context.Context, userID uuid.UUID, page int) (model.Page[model.Post], error)
}

// PostServiceImpl implements PostService.
type PostServiceImpl struct {
	posts   repository.PostRepository
	users   repository.UserRepository
	perPage int
	now     func() time.Time
}

// NewPostService constructs PostService.
func NewPostService(posts repository.PostRepository, users repository.UserRepository, perPage int) *PostServiceImpl {
	if perPage <= 0 {
		perPage = DefaultPaging.Posts
	}
	return &PostServiceImpl{posts: posts, users: users, perPage: perPage, now: time.Now}
}

func validateBody(body, what string) error {
	if strings.TrimSpace(body) == "" {
		return errs.Validation(what + " does not have a body")
	}
	return nil
}

// Create stores a new post authored by p.
func (s *PostServiceImpl) Create(ctx context.Context, p model.Principal, body string) (*model.Post, error) {
	if err := Require(p, model.PermWriteArticles); err != nil {
		return nil, err
	}
	if err := validateBody(body, "post"); err != nil {
		return nil, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	post := &model.Post{ID: id, CreatedAt: s.now().UTC(), AuthorID: p.ID()}
	post.SetBody(body)
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

// Edit checks the write permission before ownership.
func (s *PostServiceImpl) Edit(ctx context.Context, p model.Principal, id uuid.UUID, body *string) (*model.Post, error) {
	if err := Require(p, model.PermWriteArticles); err != nil {
		return nil, err
	}
	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := RequireOwnerOrAdmin(p, post.AuthorID, model.PermAdminister); err != nil {
		return nil, err
	}
	if body == nil {
		return post, nil
	}
	if err := validateBody(*body, "post"); err != nil {
		return nil, err
	}
	post.SetBody(*body)
	if err := s.posts.Update(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

// Get loads one post.
func (s *PostServiceImpl) Get(ctx context.Context, id uuid.UUID) (*model.Post, error) {
	return s.posts.GetByID(ctx, id)
}

// List pages through all posts, newest first.
func (s *PostServiceImpl) List(ctx context.Context, page int) (model.Page[model.Post], error) {
	items, total, err := s.posts.List(ctx, model.Offset(page, s.perPage), s.perPage)
	if err != nil {
		return model.Page[model.Post]{}, err
	}
	return pageOf(items, total, page, s.perPage), nil
}

// ListByAuthor pages through one user's posts.
func (s *PostServiceImpl) ListByAuthor(ctx context.Context, authorID uuid.UUID, page int) (model.Page[model.Post], error) {
	if _, err := s.users.GetByID(ctx, authorID); err != nil {
		return model.Page[model.Post]{}, err
	}
	items, total, err := s.posts.ListByAuthor(ctx, authorID, model.Offset(page, s.perPage), s.perPage)
	if err != nil {
		return model.Page[model.Post]{}, err
	}
	return pageOf(items, total, page, s.perPage), nil
}

// Timeline relies on the self edge to include the user's own posts.
func (s *PostServiceImpl) Timeline(ctx context.Context, userID uuid.UUID, page int) (model.Page[model.Post], error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return model.Page[model.Post]{}, err
	}
	items, total, err := s.posts.ListFollowed(ctx, userID, model.Offset(page, s.perPage), s.perPage)
	if err != nil {
		return model.Page[model.Post]{}, err
	}
	return pageOf(items, total, page, s.perPage), nil
}
