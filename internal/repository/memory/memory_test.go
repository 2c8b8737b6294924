package memory

import (
	"context"
	"testing"
	"time"

	"github.com/and161185/flasky/internal/errs"
	"github.com/and161185/flasky/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
)

func TestStore_SocialGraphAndCascade(t *testing.T) {
	ctx := context.Background()
	s := New()
	role := model.Role{Name: "User", Default: true, Permissions: 7}
	require.NoError(t, s.Roles.Upsert(ctx, &role))
	again := model.Role{Name: "User", Default: true, Permissions: 7}
	require.NoError(t, s.Roles.Upsert(ctx, &again))
	require.Equal(t, role.ID, again.ID)

	mk := func(email, name string, at time.Time) *model.User {
		u := &model.User{ID: uuid.Must(uuid.NewV4()), Email: email, Username: name, Role: model.Role{ID: role.ID}, MemberSince: at}
		require.NoError(t, s.Users.Create(ctx, u))
		return u
	}
	base := time.Unix(1_700_000_000, 0)
	john := mk("john@example.com", "john", base)
	susan := mk("susan@example.com", "susan", base.Add(time.Second))
	require.ErrorIs(t, s.Users.Create(ctx, &model.User{ID: uuid.Must(uuid.NewV4()), Email: "JOHN@example.com", Username: "x", Role: role}), errs.ErrAlreadyExists)

	got, err := s.Users.GetByEmail(ctx, "john@example.com")
	require.NoError(t, err)
	require.Equal(t, "User", got.Role.Name)

	ok, err := s.Follows.Exists(ctx, john.ID, john.ID)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.Follows.Follow(ctx, john.ID, susan.ID, base.Add(time.Minute)))
	require.NoError(t, s.Follows.Follow(ctx, john.ID, susan.ID, base.Add(time.Hour)))
	fans, total, err := s.Follows.Followers(ctx, susan.ID, 0, 50)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, base.Add(time.Minute), fans[0].Since)

	p := &model.Post{ID: uuid.Must(uuid.NewV4()), AuthorID: susan.ID, CreatedAt: base}
	p.SetBody("hello")
	require.NoError(t, s.Posts.Create(ctx, p))
	feed, n, err := s.Posts.ListFollowed(ctx, john.ID, 0, 20)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, p.ID, feed[0].ID)

	require.NoError(t, s.Users.Delete(ctx, john.ID))
	_, total, err = s.Follows.Followers(ctx, susan.ID, 0, 50)
	require.NoError(t, err)
	require.Zero(t, total)
	_, err = s.Users.GetByID(ctx, john.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)

	added, err := s.Follows.BackfillSelfFollows(ctx)
	require.NoError(t, err)
	require.Zero(t, added)
}

func TestStore_CommentsOrderAndPaging(t *testing.T) {
	ctx := context.Background()
	s := New()
	role := model.Role{Name: "User", Default: true, Permissions: 7}
	require.NoError(t, s.Roles.Upsert(ctx, &role))
	u := &model.User{ID: uuid.Must(uuid.NewV4()), Email: "a@example.com", Username: "a", Role: role}
	require.NoError(t, s.Users.Create(ctx, u))
	p := &model.Post{ID: uuid.Must(uuid.NewV4()), AuthorID: u.ID}
	require.NoError(t, s.Posts.Create(ctx, p))

	base := time.Unix(1_700_000_000, 0)
	for i := 0; i < 5; i++ {
		c := &model.Comment{ID: uuid.Must(uuid.NewV4()), AuthorID: u.ID, PostID: p.ID, CreatedAt: base.Add(time.Duration(i) * time.Second)}
		c.SetBody(string(rune('a' + i)))
		require.NoError(t, s.Comments.Create(ctx, c))
	}

	page, total, err := s.Comments.ListByPost(ctx, p.ID, 3, 3)
	require.NoError(t, err)
	require.Equal(t, 5, total)
	require.Len(t, page, 2)
	require.Equal(t, "d", page[0].Body)

	newest, _, err := s.Comments.List(ctx, 0, 1)
	require.NoError(t, err)
	require.Equal(t, "e", newest[0].Body)

	got, err := s.Posts.GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, 5, got.Comments)

	require.ErrorIs(t, s.Comments.Create(ctx, &model.Comment{ID: uuid.Must(uuid.NewV4()), PostID: uuid.Must(uuid.NewV4())}), errs.ErrNotFound)
}
