package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/session-auth/internal/identity"
	"github.com/iliyamo/session-auth/internal/logger"
	"github.com/iliyamo/session-auth/internal/model"
	"github.com/iliyamo/session-auth/internal/queue"
	"github.com/iliyamo/session-auth/internal/repository"
	"github.com/iliyamo/session-auth/internal/token"
)

// memUsers mirrors the unique keys of the users table.
type memUsers struct {
	mu     sync.Mutex
	rows   map[uint64]model.User
	nextID uint64
	fail   error
}

func newMemUsers() *memUsers { return &memUsers{rows: map[uint64]model.User{}} }

func (s *memUsers) Create(_ context.Context, u model.User) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return 0, s.fail
	}
	u.Email = model.NormalizeEmail(u.Email)
	for _, r := range s.rows {
		if r.Email == u.Email {
			return 0, repository.ErrEmailExists
		}
		if u.ExternalID != "" && r.ExternalID == u.ExternalID {
			return 0, repository.ErrExternalIDExists
		}
	}
	s.nextID++
	u.ID = s.nextID
	s.rows[u.ID] = u
	return u.ID, nil
}

func (s *memUsers) find(match func(model.User) bool) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return model.User{}, s.fail
	}
	for _, r := range s.rows {
		if match(r) {
			return r, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (s *memUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	email = model.NormalizeEmail(email)
	return s.find(func(u model.User) bool { return u.Email == email })
}

func (s *memUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	return s.find(func(u model.User) bool { return u.ID == id })
}

func (s *memUsers) GetByExternalID(_ context.Context, ext string) (model.User, error) {
	return s.find(func(u model.User) bool { return u.ExternalID != "" && u.ExternalID == ext })
}

func (s *memUsers) update(id uint64, fn func(*model.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	u, ok := s.rows[id]
	if !ok {
		return nil
	}
	fn(&u)
	s.rows[id] = u
	return nil
}

func (s *memUsers) LinkExternal(_ context.Context, id uint64, ext, avatar string, verified bool) error {
	return s.update(id, func(u *model.User) {
		u.AuthProvider = model.ProviderExternal
		u.ExternalID = ext
		u.EmailVerified = verified
		if u.AvatarURL == "" {
			u.AvatarURL = avatar
		}
	})
}

func (s *memUsers) UpdatePassword(_ context.Context, id uint64, hash string) error {
	return s.update(id, func(u *model.User) { u.PasswordHash = hash })
}

func (s *memUsers) SetNewsletter(_ context.Context, id uint64, optIn bool) error {
	return s.update(id, func(u *model.User) { u.NewsletterOptIn = optIn })
}

func (s *memUsers) UpdateProfile(_ context.Context, id uint64, name, avatar *string) error {
	return s.update(id, func(u *model.User) {
		if name != nil {
			u.FullName = *name
		}
		if avatar != nil {
			u.AvatarURL = *avatar
		}
	})
}

func (s *memUsers) SetActive(_ context.Context, id uint64, active bool) error {
	return s.update(id, func(u *model.User) { u.IsActive = active })
}

func (s *memUsers) SetRole(_ context.Context, id uint64, role model.Role) error {
	return s.update(id, func(u *model.User) { u.Role = role })
}

func (s *memUsers) get(t *testing.T, id uint64) model.User {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.rows[id]
	require.True(t, ok)
	return u
}

type sessionKey struct {
	userID uint64
	hash   string
}

// memSessions rotates with the same conditional delete the SQL store uses.
type memSessions struct {
	mu   sync.Mutex
	rows map[sessionKey]time.Time
	fail error
}

func newMemSessions() *memSessions { return &memSessions{rows: map[sessionKey]time.Time{}} }

func (s *memSessions) Store(_ context.Context, uid uint64, hash string, exp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.rows[sessionKey{uid, hash}] = exp
	return nil
}

func (s *memSessions) Lookup(_ context.Context, uid uint64, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	exp, ok := s.rows[sessionKey{uid, hash}]
	if !ok || !exp.After(time.Now()) {
		return repository.ErrTokenNotFound
	}
	return nil
}

func (s *memSessions) Rotate(_ context.Context, uid uint64, oldHash string, next model.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	k := sessionKey{uid, oldHash}
	exp, ok := s.rows[k]
	if !ok || !exp.After(time.Now()) {
		return repository.ErrTokenNotFound
	}
	delete(s.rows, k)
	s.rows[sessionKey{next.UserID, next.TokenHash}] = next.ExpiresAt
	return nil
}

func (s *memSessions) Delete(_ context.Context, uid uint64, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	delete(s.rows, sessionKey{uid, hash})
	return nil
}

func (s *memSessions) DeleteAllForUser(_ context.Context, uid uint64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return 0, s.fail
	}
	var n int64
	for k := range s.rows {
		if k.userID == uid {
			delete(s.rows, k)
			n++
		}
	}
	return n, nil
}

func (s *memSessions) count(uid uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.rows {
		if k.userID == uid {
			n++
		}
	}
	return n
}

type stubExternal struct {
	id  identity.ExternalIdentity
	err error
}

func (s *stubExternal) VerifyExternalIdentity(context.Context, string) (identity.ExternalIdentity, error) {
	return s.id, s.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.AuthEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.AuthEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Kind)
	}
	return out
}

type harness struct {
	mgr      *Manager
	users    *memUsers
	sessions *memSessions
	minter   *token.Minter
	external *stubExternal
	events   *recordingPublisher
}

var errBoom = errors.New("connection refused")

func newHarness(t *testing.T, opts ...func(*Options)) *harness {
	t.Helper()
	minter, err := token.New(token.Options{
		Current:    token.Key{ID: "k1", Secret: "test-secret"},
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	})
	require.NoError(t, err)
	hasher, err := identity.NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)

	h := &harness{
		users:    newMemUsers(),
		sessions: newMemSessions(),
		minter:   minter,
		external: &stubExternal{},
		events:   &recordingPublisher{},
	}
	o := Options{
		Users:     h.users,
		Sessions:  h.sessions,
		Minter:    minter,
		Passwords: hasher,
		External:  h.external,
		Events:    h.events,
		Log:       logger.Discard(),
		ResetTTL:  15 * time.Minute,
	}
	for _, fn := range opts {
		fn(&o)
	}
	h.mgr = NewManager(o)
	return h
}

func withResetTokenInResponse(o *Options) { o.ResetTokenInResponse = true }
