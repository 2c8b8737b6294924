package service

import (
	"context"
	"time"

	"github.com/and161185/flasky/internal/errs"
	"github.com/and161185/flasky/internal/model"
	"github.com/and161185/flasky/internal/repository"
	"github.com/gofrs/uuid/v5"
)

// SocialService maintains the follow graph.
type SocialService interface {
	Follow(ctx context.Context, p model.Principal, target uuid.UUID) error
	Unfollow(ctx context.Context, p model.Principal, target uuid.UUID) error
	IsFollowing(ctx context.Context, a, b uuid.UUID) (bool, error)
	IsFollowedBy(ctx context.Context, a, b uuid.UUID) (bool, error)
	Followers(ctx context.Context, userID uuid.UUID, page int) (model.Page[model.FollowEntry], error)
	Followed(ctx context.Context, userID uuid.UUID, page int) (model.Page[model.FollowEntry], error)
	// BackfillSelfFollows repairs users created without a self edge.
	BackfillSelfFollows(ctx context.Context) (int64, error)
}

// SocialServiceImpl implements SocialService.
type SocialServiceImpl struct {
	users   repository.UserRepository
	follows repository.FollowRepository
	perPage int
	now     func() time.Time
}

// NewSocialService constructs SocialService.
func NewSocialService(users repository.UserRepository, follows repository.FollowRepository, perPage int) *SocialServiceImpl {
	if perPage <= 0 {
		perPage = DefaultPaging.Followers
	}
	return &SocialServiceImpl{users: users, follows: follows, perPage: perPage, now: time.Now}
}

func (s *SocialServiceImpl) target(ctx context.Context, p model.Principal, id uuid.UUID) error {
	if err := Require(p, model.PermFollow); err != nil {
		return err
	}
	_, err := s.users.GetByID(ctx, id)
	return err
}

// Follow adds p -> target; following twice keeps one edge.
func (s *SocialServiceImpl) Follow(ctx context.Context, p model.Principal, target uuid.UUID) error {
	if err := s.target(ctx, p, target); err != nil {
		return err
	}
	return s.follows.Follow(ctx, p.ID(), target, s.now().UTC())
}

// Unfollow removes p -> target. The self edge cannot be removed.
func (s *SocialServiceImpl) Unfollow(ctx context.Context, p model.Principal, target uuid.UUID) error {
	if err := s.target(ctx, p, target); err != nil {
		return err
	}
	if p.ID() == target {
		return errs.Validation("You cannot unfollow yourself.")
	}
	return s.follows.Unfollow(ctx, p.ID(), target)
}

// IsFollowing reports whether a follows b.
func (s *SocialServiceImpl) IsFollowing(ctx context.Context, a, b uuid.UUID) (bool, error) {
	return s.follows.Exists(ctx, a, b)
}

// IsFollowedBy reports whether b follows a.
func (s *SocialServiceImpl) IsFollowedBy(ctx context.Context, a, b uuid.UUID) (bool, error) {
	return s.follows.Exists(ctx, b, a)
}

// Followers lists who follows userID.
func (s *SocialServiceImpl) Followers(ctx context.Context, userID uuid.UUID, page int) (model.Page[model.FollowEntry], error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return model.Page[model.FollowEntry]{}, err
	}
	items, total, err := s.follows.Followers(ctx, userID, model.Offset(page, s.perPage), s.perPage)
	if err != nil {
		return model.Page[model.FollowEntry]{}, err
	}
	return pageOf(items, total, page, s.perPage), nil
}

// Followed lists whom userID follows.
func (s *SocialServiceImpl) Followed(ctx context.Context, userID uuid.UUID, page int) (model.Page[model.FollowEntry], error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return model.Page[model.FollowEntry]{}, err
	}
	items, total, err := s.follows.Followed(ctx, userID, model.Offset(page, s.perPage), s.perPage)
	if err != nil {
		return model.Page[model.FollowEntry]{}, err
	}
	return pageOf(items, total, page, s.perPage), nil
}

// BackfillSelfFollows delegates to the store.
func (s *SocialServiceImpl) BackfillSelfFollows(ctx context.Context) (int64, error) {
	return s.follows.BackfillSelfFollows(ctx)
}
