package service

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/session-auth/internal/model"
	"github.com/iliyamo/session-auth/internal/repository"
)

// ProfileUpdate holds the display attributes a user may change.  Nil fields
// are left as they are.
type ProfileUpdate struct {
	FullName  *string
	AvatarURL *string
}

// Me returns the signed-in user.
func (m *Manager) Me(ctx context.Context, userID uint64) (model.SafeUser, error) {
	u, err := m.activeUser(ctx, userID)
	if err != nil {
		return model.SafeUser{}, err
	}
	return u.Safe(), nil
}

// UpdateProfile changes the caller's display attributes.
func (m *Manager) UpdateProfile(ctx context.Context, userID uint64, p ProfileUpdate) (model.SafeUser, error) {
	if p.FullName != nil {
		name := strings.TrimSpace(*p.FullName)
		if name == "" {
			return model.SafeUser{}, invalidInput("full_name must not be empty")
		}
		p.FullName = &name
	}
	if _, err := m.activeUser(ctx, userID); err != nil {
		return model.SafeUser{}, err
	}
	if p.FullName == nil && p.AvatarURL == nil {
		return m.Me(ctx, userID)
	}
	if err := m.users.UpdateProfile(ctx, userID, p.FullName, p.AvatarURL); err != nil {
		return model.SafeUser{}, m.infra("profile.update", userID, err)
	}
	return m.Me(ctx, userID)
}

// GetUser is the administrative lookup.  Deactivated accounts are returned
// as well.
func (m *Manager) GetUser(ctx context.Context, userID uint64) (model.SafeUser, error) {
	u, err := m.anyUser(ctx, userID)
	if err != nil {
		return model.SafeUser{}, err
	}
	return u.Safe(), nil
}

// SetActive toggles the active flag.  Deactivation revokes every session.
func (m *Manager) SetActive(ctx context.Context, userID uint64, active bool) (model.SafeUser, error) {
	u, err := m.anyUser(ctx, userID)
	if err != nil {
		return model.SafeUser{}, err
	}
	if err := m.users.SetActive(ctx, userID, active); err != nil {
		return model.SafeUser{}, m.infra("admin.set_active", userID, err)
	}
	u.IsActive = active
	if !active {
		n, err := m.sessions.DeleteAllForUser(ctx, userID)
		if err != nil {
			return model.SafeUser{}, m.infra("admin.revoke", userID, err)
		}
		m.log.WithFields(logrus.Fields{"user_id": userID, "sessions": n}).Info("account deactivated")
	}
	return u.Safe(), nil
}

// SetRole changes the role of a user.
func (m *Manager) SetRole(ctx context.Context, userID uint64, role model.Role) (model.SafeUser, error) {
	if !role.Valid() {
		return model.SafeUser{}, invalidInput("unknown role")
	}
	u, err := m.anyUser(ctx, userID)
	if err != nil {
		return model.SafeUser{}, err
	}
	if err := m.users.SetRole(ctx, userID, role); err != nil {
		return model.SafeUser{}, m.infra("admin.set_role", userID, err)
	}
	u.Role = role
	return u.Safe(), nil
}

func (m *Manager) anyUser(ctx context.Context, userID uint64) (model.User, error) {
	u, err := m.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.User{}, ErrUserNotFound
		}
		return model.User{}, m.infra("user.lookup", userID, err)
	}
	return u, nil
}
