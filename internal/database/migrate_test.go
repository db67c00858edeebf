package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatements(t *testing.T) {
	stmts := Statements()
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "CREATE TABLE IF NOT EXISTS users")
	assert.Contains(t, stmts[0], "UNIQUE KEY uq_users_email (email)")
	assert.Contains(t, stmts[0], "UNIQUE KEY uq_users_external_id (external_id)")
	assert.Contains(t, stmts[1], "CREATE TABLE IF NOT EXISTS refresh_tokens")
	assert.Contains(t, stmts[1], "UNIQUE KEY uq_refresh_tokens_hash (token_hash)")
}

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS refresh_tokens").WillReturnResult(sqlmock.NewResult(0, 0))

		require.NoError(t, Migrate(context.Background(), db))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stops at first failure", func(t *testing.T) {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnError(errors.New("denied"))

		err := Migrate(context.Background(), db)
		assert.ErrorContains(t, err, "statement 1")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
