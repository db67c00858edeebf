package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/session-auth/internal/model"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newMockTokenRepo(t *testing.T) (*TokenRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	r := NewTokenRepo(db)
	r.now = func() time.Time { return fixedNow }
	return r, mock
}

func TestTokenRepoStoreAndLookup(t *testing.T) {
	r, mock := newMockTokenRepo(t)
	ctx := context.Background()
	exp := fixedNow.Add(7 * 24 * time.Hour)

	mock.ExpectExec("INSERT INTO refresh_tokens").WithArgs(uint64(1), "h1", exp).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, r.Store(ctx, 1, "h1", exp))

	mock.ExpectQuery("SELECT 1 FROM refresh_tokens").WithArgs(uint64(1), "h1", fixedNow).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	require.NoError(t, r.Lookup(ctx, 1, "h1"))

	mock.ExpectQuery("SELECT 1 FROM refresh_tokens").WithArgs(uint64(1), "nope", fixedNow).
		WillReturnError(sql.ErrNoRows)
	assert.ErrorIs(t, r.Lookup(ctx, 1, "nope"), ErrTokenNotFound)

	mock.ExpectQuery("SELECT 1 FROM refresh_tokens").WillReturnError(errors.New("gone away"))
	err := r.Lookup(ctx, 1, "h1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTokenNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepoRotate(t *testing.T) {
	ctx := context.Background()
	next := model.RefreshToken{UserID: 1, TokenHash: "h2", ExpiresAt: fixedNow.Add(time.Hour)}

	t.Run("success", func(t *testing.T) {
		r, mock := newMockTokenRepo(t)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM refresh_tokens").WithArgs(uint64(1), "h1", fixedNow).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO refresh_tokens").WithArgs(uint64(1), "h2", next.ExpiresAt).
			WillReturnResult(sqlmock.NewResult(2, 1))
		mock.ExpectCommit()

		require.NoError(t, r.Rotate(ctx, 1, "h1", next))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already consumed", func(t *testing.T) {
		r, mock := newMockTokenRepo(t)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM refresh_tokens").WithArgs(uint64(1), "h1", fixedNow).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		assert.ErrorIs(t, r.Rotate(ctx, 1, "h1", next), ErrTokenNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert failure rolls back", func(t *testing.T) {
		r, mock := newMockTokenRepo(t)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM refresh_tokens").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO refresh_tokens").WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		err := r.Rotate(ctx, 1, "h1", next)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrTokenNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin failure", func(t *testing.T) {
		r, mock := newMockTokenRepo(t)
		mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

		assert.Error(t, r.Rotate(ctx, 1, "h1", next))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTokenRepoDelete(t *testing.T) {
	r, mock := newMockTokenRepo(t)
	ctx := context.Background()

	mock.ExpectExec("DELETE FROM refresh_tokens WHERE user_id=\\? AND token_hash=\\?").
		WithArgs(uint64(1), "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, r.Delete(ctx, 1, "missing"))

	mock.ExpectExec("DELETE FROM refresh_tokens WHERE user_id=\\?$").
		WithArgs(uint64(1)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	n, err := r.DeleteAllForUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	mock.ExpectExec("DELETE FROM refresh_tokens WHERE expires_at <=").
		WithArgs(fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 5))
	n, err = r.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	assert.NoError(t, mock.ExpectationsWereMet())
}
