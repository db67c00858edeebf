package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/session-auth/internal/model"
)

// UserRepo is the Credential Store: it owns the `users` table.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id,email,password_hash,full_name,avatar_url,role,is_active,auth_provider,external_id,email_verified,newsletter_opt_in,created_at"

// Create inserts a user and returns its ID.  The email is normalized before
// insertion; uniqueness is enforced by the table's unique keys.
func (r *UserRepo) Create(ctx context.Context, u model.User) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO users (email,password_hash,full_name,avatar_url,role,is_active,auth_provider,external_id,email_verified,newsletter_opt_in)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		model.NormalizeEmail(u.Email), nullString(u.PasswordHash), u.FullName, nullString(u.AvatarURL),
		string(u.Role), u.IsActive, string(u.AuthProvider), nullString(u.ExternalID), u.EmailVerified, u.NewsletterOptIn)
	if err != nil {
		if dup := classifyDuplicate(err); dup != err {
			return 0, dup
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return r.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", model.NormalizeEmail(email))
}

// GetByID fetches a user by id, active or not.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return r.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
}

// GetByExternalID fetches the user linked to an identity-provider subject.
func (r *UserRepo) GetByExternalID(ctx context.Context, externalID string) (model.User, error) {
	return r.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE external_id=? LIMIT 1", externalID)
}

func (r *UserRepo) getOne(ctx context.Context, query string, arg interface{}) (model.User, error) {
	var (
		u                      model.User
		hash, avatar, external sql.NullString
		role, provider         string
	)
	err := r.DB.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Email, &hash, &u.FullName, &avatar, &role, &u.IsActive,
		&provider, &external, &u.EmailVerified, &u.NewsletterOptIn, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("select user: %w", err)
	}
	u.PasswordHash = hash.String
	u.AvatarURL = avatar.String
	u.ExternalID = external.String
	u.Role = model.Role(role)
	u.AuthProvider = model.AuthProvider(provider)
	return u, nil
}

// LinkExternal attaches an external identity to an existing account.  The
// avatar is copied only when the account has none yet.
func (r *UserRepo) LinkExternal(ctx context.Context, id uint64, externalID, avatarURL string, emailVerified bool) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE users
		    SET auth_provider=?, external_id=?,
		        avatar_url=COALESCE(NULLIF(avatar_url,''), ?),
		        email_verified=?
		  WHERE id=?`,
		string(model.ProviderExternal), externalID, nullString(avatarURL), emailVerified, id)
	if err != nil {
		if dup := classifyDuplicate(err); dup != err {
			return dup
		}
		return fmt.Errorf("link external identity: %w", err)
	}
	return nil
}

// UpdatePassword replaces the stored hash.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uint64, hash string) error {
	return r.exec(ctx, "update password", "UPDATE users SET password_hash=? WHERE id=?", hash, id)
}

// SetNewsletter stores the newsletter preference.
func (r *UserRepo) SetNewsletter(ctx context.Context, id uint64, optIn bool) error {
	return r.exec(ctx, "set newsletter", "UPDATE users SET newsletter_opt_in=? WHERE id=?", optIn, id)
}

// UpdateProfile changes the display attributes.  Nil arguments leave the
// column untouched.
func (r *UserRepo) UpdateProfile(ctx context.Context, id uint64, fullName, avatarURL *string) error {
	return r.exec(ctx, "update profile",
		"UPDATE users SET full_name=COALESCE(?, full_name), avatar_url=COALESCE(?, avatar_url) WHERE id=?",
		ptrArg(fullName), ptrArg(avatarURL), id)
}

// SetActive toggles users.is_active.
func (r *UserRepo) SetActive(ctx context.Context, id uint64, active bool) error {
	return r.exec(ctx, "set active", "UPDATE users SET is_active=? WHERE id=?", active, id)
}

// SetRole changes users.role.
func (r *UserRepo) SetRole(ctx context.Context, id uint64, role model.Role) error {
	return r.exec(ctx, "set role", "UPDATE users SET role=? WHERE id=?", string(role), id)
}

// exec runs an UPDATE.  RowsAffected is not consulted: MySQL reports 0 for
// updates that leave a row unchanged, so existence is checked by callers.
func (r *UserRepo) exec(ctx context.Context, op, query string, args ...interface{}) error {
	if _, err := r.DB.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func ptrArg(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}
