package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/session-auth/internal/model"
)

// TokenRepo is the Session Store: one refresh_tokens row per live session.
// Rows are keyed by the SHA-256 hash of the token, never the token itself.
type TokenRepo struct {
	DB  *sql.DB
	now func() time.Time
}

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db, now: time.Now} }

func (r *TokenRepo) clock() time.Time { return r.now().UTC() }

// Store inserts a refresh token hash row.
func (r *TokenRepo) Store(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?,?,?)",
		userID, tokenHash, exp.UTC())
	if err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

// Lookup succeeds when a non-expired row exists for (userID, tokenHash).
func (r *TokenRepo) Lookup(ctx context.Context, userID uint64, tokenHash string) error {
	var one int
	err := r.DB.QueryRowContext(ctx,
		"SELECT 1 FROM refresh_tokens WHERE user_id=? AND token_hash=? AND expires_at > ? LIMIT 1",
		userID, tokenHash, r.clock()).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrTokenNotFound
		}
		return fmt.Errorf("lookup refresh token: %w", err)
	}
	return nil
}

// Rotate consumes the (userID, oldHash) row and inserts next in a single
// transaction.  The delete is conditional and must remove exactly one live
// row; a concurrent rotation that got there first leaves zero rows and this
// call fails with ErrTokenNotFound without inserting anything.
func (r *TokenRepo) Rotate(ctx context.Context, userID uint64, oldHash string, next model.RefreshToken) (err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("rotate refresh token: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE user_id=? AND token_hash=? AND expires_at > ?",
		userID, oldHash, r.clock())
	if err != nil {
		return fmt.Errorf("rotate refresh token: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rotate refresh token: rows affected: %w", err)
	}
	if n != 1 {
		return ErrTokenNotFound
	}

	if _, err = tx.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?,?,?)",
		next.UserID, next.TokenHash, next.ExpiresAt.UTC()); err != nil {
		return fmt.Errorf("rotate refresh token: insert: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("rotate refresh token: commit: %w", err)
	}
	return nil
}

// Delete removes one session.  Deleting a row that does not exist is not an
// error.
func (r *TokenRepo) Delete(ctx context.Context, userID uint64, tokenHash string) error {
	if _, err := r.DB.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE user_id=? AND token_hash=?",
		userID, tokenHash); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

// DeleteAllForUser revokes every session of a user and reports how many
// rows went away.
func (r *TokenRepo) DeleteAllForUser(ctx context.Context, userID uint64) (int64, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE user_id=?", userID)
	if err != nil {
		return 0, fmt.Errorf("delete user refresh tokens: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// PurgeExpired removes rows whose expiry has passed.  They are already
// rejected by Lookup and Rotate; this only reclaims space.
func (r *TokenRepo) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE expires_at <= ?", r.clock())
	if err != nil {
		return 0, fmt.Errorf("purge expired refresh tokens: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
