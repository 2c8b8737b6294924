package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func TestFollowRepo_FollowIsIdempotent(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewFollowRepo(db)
	a, b := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	at := time.Unix(1_700_000_000, 0)

	mock.ExpectExec(`INSERT INTO follows .* ON CONFLICT DO NOTHING`).
		WithArgs(a, b, at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO follows .* ON CONFLICT DO NOTHING`).
		WithArgs(a, b, at).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	require.NoError(t, r.Follow(context.Background(), a, b, at))
	require.NoError(t, r.Follow(context.Background(), a, b, at))

	mock.ExpectExec(`DELETE FROM follows WHERE follower_id=\$1 AND followed_id=\$2`).
		WithArgs(a, b).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, r.Unfollow(context.Background(), a, b))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFollowRepo_Exists(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewFollowRepo(db)
	a, b := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM follows WHERE follower_id=\$1 AND followed_id=\$2\)`).
		WithArgs(a, b).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	ok, err := r.Exists(context.Background(), a, b)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestFollowRepo_Followers_ExcludesSelf(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewFollowRepo(db)
	target := sampleUser()
	fan := sampleUser()
	since := time.Unix(1_700_000_500, 0).UTC()

	mock.ExpectQuery(`SELECT count\(\*\) FROM follows WHERE followed_id=\$1 AND follower_id<>\$1`).
		WithArgs(target.ID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`JOIN follows f ON f.follower_id = u.id WHERE f.followed_id=\$1 AND f.follower_id<>\$1`).
		WithArgs(target.ID, 0, 50).
		WillReturnRows(pgxmock.NewRows(append(userColumns, "created_at")).AddRow(
			fan.ID, fan.Email, fan.Username, fan.PwdHash, fan.SaltAuth, fan.Confirmed,
			fan.Name, fan.Location, fan.AboutMe, fan.AvatarHash, fan.MemberSince, fan.LastSeen,
			fan.Role.ID, fan.Role.Name, fan.Role.Default, 7, since))

	entries, total, err := r.Followers(context.Background(), target.ID, 0, 50)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, entries, 1)
	require.Equal(t, fan.ID, entries[0].User.ID)
	require.Equal(t, since, entries[0].Since)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFollowRepo_BackfillSelfFollows(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewFollowRepo(db)

	mock.ExpectExec(`INSERT INTO follows \(follower_id, followed_id, created_at\) SELECT id, id, member_since FROM users ON CONFLICT DO NOTHING`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	n, err := r.BackfillSelfFollows(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}
