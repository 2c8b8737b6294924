package limiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

var testPolicy = Policy{Window: 5 * time.Minute, MaxFails: 5, BlockFor: 10 * time.Minute}

func newPG(t *testing.T, now time.Time) (*PG, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	l := NewPG(mock, testPolicy)
	l.now = func() time.Time { return now }
	return l, mock
}

func TestPGAllow(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0).UTC()
	ctx := context.Background()
	hash := []byte("h")

	tests := []struct {
		name    string
		expect  func(m pgxmock.PgxPoolIface)
		wantOK  bool
		wantDur time.Duration
		wantErr bool
	}{
		{
			name: "no row",
			expect: func(m pgxmock.PgxPoolIface) {
				m.ExpectQuery(`SELECT blocked_until FROM login_attempts`).
					WithArgs("john@example.com", hash).WillReturnError(pgx.ErrNoRows)
			},
			wantOK: true,
		},
		{
			name: "blocked",
			expect: func(m pgxmock.PgxPoolIface) {
				m.ExpectQuery(`SELECT blocked_until FROM login_attempts`).
					WithArgs("john@example.com", hash).
					WillReturnRows(pgxmock.NewRows([]string{"blocked_until"}).AddRow(now.Add(3 * time.Minute)))
			},
			wantDur: 3 * time.Minute,
		},
		{
			name: "block expired",
			expect: func(m pgxmock.PgxPoolIface) {
				m.ExpectQuery(`SELECT blocked_until FROM login_attempts`).
					WithArgs("john@example.com", hash).
					WillReturnRows(pgxmock.NewRows([]string{"blocked_until"}).AddRow(now.Add(-time.Minute)))
			},
			wantOK: true,
		},
		{
			name: "db error",
			expect: func(m pgxmock.PgxPoolIface) {
				m.ExpectQuery(`SELECT blocked_until FROM login_attempts`).
					WithArgs("john@example.com", hash).WillReturnError(errors.New("db boom"))
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			l, mock := newPG(t, now)
			tt.expect(mock)

			ok, dur, err := l.Allow(ctx, "john@example.com", hash)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.wantDur, dur)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPGSuccess(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0).UTC()
	l, mock := newPG(t, now)
	mock.ExpectExec(`INSERT INTO login_attempts`).
		WithArgs("john@example.com", []byte("h"), now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, l.Success(context.Background(), "john@example.com", []byte("h")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGFailure_BelowThreshold(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0).UTC()
	l, mock := newPG(t, now)
	mock.ExpectQuery(`INSERT INTO login_attempts .* RETURNING fail_count`).
		WithArgs("john@example.com", []byte("h"), now, testPolicy.Window).
		WillReturnRows(pgxmock.NewRows([]string{"fail_count"}).AddRow(2))

	blocked, dur, err := l.Failure(context.Background(), "john@example.com", []byte("h"))
	require.NoError(t, err)
	require.False(t, blocked)
	require.Zero(t, dur)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGFailure_BlocksAtThreshold(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0).UTC()
	l, mock := newPG(t, now)
	mock.ExpectQuery(`RETURNING fail_count`).
		WithArgs("john@example.com", []byte("h"), now, testPolicy.Window).
		WillReturnRows(pgxmock.NewRows([]string{"fail_count"}).AddRow(5))
	mock.ExpectExec(`UPDATE login_attempts SET blocked_until`).
		WithArgs("john@example.com", []byte("h"), now.Add(testPolicy.BlockFor)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	blocked, dur, err := l.Failure(context.Background(), "john@example.com", []byte("h"))
	require.NoError(t, err)
	require.True(t, blocked)
	require.Equal(t, testPolicy.BlockFor, dur)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGFailure_QueryError(t *testing.T) {
	t.Parallel()

	l, mock := newPG(t, time.Now())
	mock.ExpectQuery(`RETURNING fail_count`).WillReturnError(errors.New("query error"))

	_, _, err := l.Failure(context.Background(), "john@example.com", []byte("h"))
	require.Error(t, err)
}
