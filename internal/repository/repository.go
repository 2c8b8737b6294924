// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/and161185/flasky/internal/model"
	"github.com/gofrs/uuid/v5"
)

// RoleRepository stores the role table.
type RoleRepository interface {
	// Upsert inserts the role or updates the row with the same name. r.ID is set to the stored id.
	Upsert(ctx context.Context, r *model.Role) error
	// GetByID loads a role by id.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Role, error)
	// GetByName loads a role by its unique name.
	GetByName(ctx context.Context, name string) (*model.Role, error)
	// GetDefault loads the role flagged as default.
	GetDefault(ctx context.Context) (*model.Role, error)
	// GetByPermissions loads the first role with exactly the given bits.
	GetByPermissions(ctx context.Context, perms model.Permission) (*model.Role, error)
	// List returns all roles ordered by permissions.
	List(ctx context.Context) ([]model.Role, error)
}

// UserRepository provides CRUD access for users.
type UserRepository interface {
	// Create inserts a new user together with its self-follow edge.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user with its role.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByEmail loads a user by email.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// GetByUsername loads a user by username.
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	// Update overwrites every mutable column of the user.
	Update(ctx context.Context, u *model.User) error
	// Touch sets last_seen.
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
	// Delete removes the user and every follow edge touching it.
	Delete(ctx context.Context, id uuid.UUID) error
}

// FollowRepository stores the directed follow graph.
type FollowRepository interface {
	// Follow adds the edge; an existing edge is left untouched.
	Follow(ctx context.Context, follower, followed uuid.UUID, at time.Time) error
	// Unfollow removes the edge if present.
	Unfollow(ctx context.Context, follower, followed uuid.UUID) error
	// Exists reports whether follower follows followed.
	Exists(ctx context.Context, follower, followed uuid.UUID) (bool, error)
	// Followers lists users following userID, newest first, without the self edge.
	Followers(ctx context.Context, userID uuid.UUID, offset, limit int) ([]model.FollowEntry, int, error)
	// Followed lists users followed by userID, newest first, without the self edge.
	Followed(ctx context.Context, userID uuid.UUID, offset, limit int) ([]model.FollowEntry, int, error)
	// BackfillSelfFollows adds missing self edges and returns how many were created.
	BackfillSelfFollows(ctx context.Context) (int64, error)
}

// PostRepository stores posts.
type PostRepository interface {
	Create(ctx context.Context, p *model.Post) error
	// Update stores body and body_html.
	Update(ctx context.Context, p *model.Post) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Post, error)
	// List returns posts newest first and the total count.
	List(ctx context.Context, offset, limit int) ([]model.Post, int, error)
	ListByAuthor(ctx context.Context, authorID uuid.UUID, offset, limit int) ([]model.Post, int, error)
	// ListFollowed returns posts written by users that userID follows.
	ListFollowed(ctx context.Context, userID uuid.UUID, offset, limit int) ([]model.Post, int, error)
	CountByAuthor(ctx context.Context, authorID uuid.UUID) (int, error)
}

// CommentRepository stores comments.
type CommentRepository interface {
	Create(ctx context.Context, c *model.Comment) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Comment, error)
	// ListByPost returns a post's comments oldest first and the total count.
	ListByPost(ctx context.Context, postID uuid.UUID, offset, limit int) ([]model.Comment, int, error)
	// List returns all comments newest first and the total count.
	List(ctx context.Context, offset, limit int) ([]model.Comment, int, error)
	SetDisabled(ctx context.Context, id uuid.UUID, disabled bool) error
}

// Store bundles every repository of one backend.
type Store struct {
	Roles    RoleRepository
	Users    UserRepository
	Follows  FollowRepository
	Posts    PostRepository
	Comments CommentRepository
	// Ping checks backend liveness.
	Ping func(ctx context.Context) error
}
