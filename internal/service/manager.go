package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/session-auth/internal/identity"
	"github.com/iliyamo/session-auth/internal/model"
	"github.com/iliyamo/session-auth/internal/queue"
	"github.com/iliyamo/session-auth/internal/repository"
	"github.com/iliyamo/session-auth/internal/token"
)

// Options wires a Manager.  Users, Sessions, Minter and Passwords are
// required; the rest have working defaults.
type Options struct {
	Users     UserStore
	Sessions  SessionStore
	Minter    *token.Minter
	Passwords PasswordHasher
	External  identity.ExternalVerifier
	Events    EventPublisher
	Log       logrus.FieldLogger

	ResetTTL             time.Duration
	ResetTokenInResponse bool
	Now                  func() time.Time
}

// Manager is the Session Manager.  It holds no per-user state; every
// decision is taken against the stores, so any number of instances may run
// side by side.
type Manager struct {
	users     UserStore
	sessions  SessionStore
	minter    *token.Minter
	passwords PasswordHasher
	external  identity.ExternalVerifier
	events    EventPublisher
	log       logrus.FieldLogger

	resetTTL        time.Duration
	resetInResponse bool
	now             func() time.Time
}

func NewManager(o Options) *Manager {
	m := &Manager{
		users:           o.Users,
		sessions:        o.Sessions,
		minter:          o.Minter,
		passwords:       o.Passwords,
		external:        o.External,
		events:          o.Events,
		log:             o.Log,
		resetTTL:        o.ResetTTL,
		resetInResponse: o.ResetTokenInResponse,
		now:             o.Now,
	}
	if m.external == nil {
		m.external = identity.DisabledVerifier{}
	}
	if m.events == nil {
		m.events = NopPublisher{}
	}
	if m.log == nil {
		m.log = logrus.StandardLogger()
	}
	if m.resetTTL <= 0 {
		m.resetTTL = 15 * time.Minute
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// AuthResult is returned by every operation that opens a session.  The pair
// is flattened so the wire shape is {user, access, refresh}.
type AuthResult struct {
	User model.SafeUser `json:"user"`
	token.Pair
}

// RegisterInput carries the fields of a new local account.
type RegisterInput struct {
	Email           string
	Password        string
	FullName        string
	Role            model.Role
	NewsletterOptIn bool
}

// Register creates a local account and opens its first session.
func (m *Manager) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	email := model.NormalizeEmail(in.Email)
	if email == "" {
		return AuthResult{}, invalidInput("email is required")
	}
	role := in.Role
	if role == "" {
		role = model.RoleClient
	}
	if !role.Valid() {
		return AuthResult{}, invalidInput("unknown role")
	}
	if err := identity.CheckPolicy(in.Password); err != nil {
		return AuthResult{}, ErrWeakPassword
	}

	if _, err := m.users.GetByEmail(ctx, email); err == nil {
		return AuthResult{}, ErrEmailExists
	} else if !errors.Is(err, repository.ErrNotFound) {
		return AuthResult{}, m.infra("register.lookup", 0, err)
	}

	hash, err := m.passwords.Hash(in.Password)
	if err != nil {
		return AuthResult{}, m.infra("register.hash", 0, err)
	}
	u := model.User{
		Email:           email,
		PasswordHash:    hash,
		FullName:        strings.TrimSpace(in.FullName),
		Role:            role,
		IsActive:        true,
		AuthProvider:    model.ProviderLocal,
		NewsletterOptIn: in.NewsletterOptIn,
		CreatedAt:       m.now().UTC(),
	}
	id, err := m.users.Create(ctx, u)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return AuthResult{}, ErrEmailExists
		}
		return AuthResult{}, m.infra("register.create", 0, err)
	}
	u.ID = id
	return m.openSession(ctx, u)
}

// Login authenticates with email and password.  Unknown email and wrong
// password are indistinguishable; the active flag is only consulted after
// the password matched.  A non-nil newsletter updates the preference.
func (m *Manager) Login(ctx context.Context, email, password string, newsletter *bool) (AuthResult, error) {
	u, err := m.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			m.passwords.Verify(password, "")
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, m.infra("login.lookup", 0, err)
	}
	if !m.passwords.Verify(password, u.PasswordHash) {
		return AuthResult{}, ErrInvalidCredentials
	}
	if !u.IsActive {
		return AuthResult{}, ErrAccountDeactivated
	}
	if newsletter != nil && *newsletter != u.NewsletterOptIn {
		if err := m.users.SetNewsletter(ctx, u.ID, *newsletter); err != nil {
			return AuthResult{}, m.infra("login.newsletter", u.ID, err)
		}
		u.NewsletterOptIn = *newsletter
	}
	return m.openSession(ctx, u)
}

// Refresh exchanges a refresh token for a new pair.  The presented token is
// consumed: a second exchange of the same token fails, and of two
// concurrent exchanges exactly one succeeds.
func (m *Manager) Refresh(ctx context.Context, raw string) (AuthResult, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return AuthResult{}, ErrMissingToken
	}
	claims, err := m.minter.VerifyType(raw, token.TypeRefresh)
	if err != nil {
		return AuthResult{}, ErrInvalidRefreshToken
	}
	uid := claims.UserID
	oldHash := token.Hash(raw)

	if err := m.sessions.Lookup(ctx, uid, oldHash); err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return AuthResult{}, ErrInvalidRefreshToken
		}
		return AuthResult{}, m.infra("refresh.lookup", uid, err)
	}

	u, err := m.users.GetByID(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return AuthResult{}, ErrUserNotFound
		}
		return AuthResult{}, m.infra("refresh.user", uid, err)
	}
	if !u.IsActive {
		return AuthResult{}, ErrUserNotFound
	}

	pair, err := m.minter.MintSessionPair(u.ID, u.Role)
	if err != nil {
		return AuthResult{}, m.infra("refresh.mint", uid, err)
	}
	next := model.RefreshToken{
		UserID:    u.ID,
		TokenHash: token.Hash(pair.Refresh.Token),
		ExpiresAt: pair.Refresh.ExpiresAt,
	}
	if err := m.sessions.Rotate(ctx, uid, oldHash, next); err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return AuthResult{}, ErrInvalidRefreshToken
		}
		return AuthResult{}, m.infra("refresh.rotate", uid, err)
	}
	return AuthResult{User: u.Safe(), Pair: pair}, nil
}

// Logout deletes the session behind raw for userID.  An empty or unknown
// token is not an error.
func (m *Manager) Logout(ctx context.Context, userID uint64, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if err := m.sessions.Delete(ctx, userID, token.Hash(raw)); err != nil {
		return m.infra("logout", userID, err)
	}
	return nil
}

// LogoutAll revokes every session of userID.
func (m *Manager) LogoutAll(ctx context.Context, userID uint64) error {
	n, err := m.sessions.DeleteAllForUser(ctx, userID)
	if err != nil {
		return m.infra("logout_all", userID, err)
	}
	m.log.WithFields(logrus.Fields{"user_id": userID, "sessions": n}).Info("sessions revoked")
	return nil
}

// openSession mints a pair and persists the refresh half.
func (m *Manager) openSession(ctx context.Context, u model.User) (AuthResult, error) {
	pair, err := m.minter.MintSessionPair(u.ID, u.Role)
	if err != nil {
		return AuthResult{}, m.infra("session.mint", u.ID, err)
	}
	if err := m.sessions.Store(ctx, u.ID, token.Hash(pair.Refresh.Token), pair.Refresh.ExpiresAt); err != nil {
		return AuthResult{}, m.infra("session.store", u.ID, err)
	}
	return AuthResult{User: u.Safe(), Pair: pair}, nil
}

// infra logs an infrastructure failure with context and returns the generic
// StoreUnavailable error.
func (m *Manager) infra(op string, userID uint64, err error) error {
	entry := m.log.WithField("op", op).WithError(err)
	if userID != 0 {
		entry = entry.WithField("user_id", userID)
	}
	entry.Error("auth operation failed")
	return storeUnavailable(err)
}

// publish hands ev to the broker.  Failure is logged and never fails the
// caller.
func (m *Manager) publish(ctx context.Context, ev queue.AuthEvent) {
	ev.OccurredAt = m.now().UTC()
	if err := m.events.Publish(ctx, ev); err != nil {
		m.log.WithFields(logrus.Fields{"kind": ev.Kind, "user_id": ev.UserID}).WithError(err).
			Warn("auth event not published")
	}
}
