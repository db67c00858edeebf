// Package service holds the Session Manager: it orchestrates the credential
// store, the session store, the token minter and the identity verifiers, and
// turns every outcome into either a result or a typed *Error.
package service

import (
	"context"
	"time"

	"github.com/iliyamo/session-auth/internal/model"
	"github.com/iliyamo/session-auth/internal/queue"
)

// UserStore is the Credential Store contract.  *repository.UserRepo
// implements it.
type UserStore interface {
	Create(ctx context.Context, u model.User) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	GetByExternalID(ctx context.Context, externalID string) (model.User, error)
	LinkExternal(ctx context.Context, id uint64, externalID, avatarURL string, emailVerified bool) error
	UpdatePassword(ctx context.Context, id uint64, hash string) error
	SetNewsletter(ctx context.Context, id uint64, optIn bool) error
	UpdateProfile(ctx context.Context, id uint64, fullName, avatarURL *string) error
	SetActive(ctx context.Context, id uint64, active bool) error
	SetRole(ctx context.Context, id uint64, role model.Role) error
}

// SessionStore is the Session Store contract.  *repository.TokenRepo
// implements it.
type SessionStore interface {
	Store(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	Lookup(ctx context.Context, userID uint64, tokenHash string) error
	Rotate(ctx context.Context, userID uint64, oldHash string, next model.RefreshToken) error
	Delete(ctx context.Context, userID uint64, tokenHash string) error
	DeleteAllForUser(ctx context.Context, userID uint64) (int64, error)
}

// PasswordHasher is satisfied by *identity.PasswordHasher.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) bool
}

// EventPublisher delivers auth events to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.AuthEvent) error
}

// NopPublisher drops every event.  Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, queue.AuthEvent) error { return nil }
