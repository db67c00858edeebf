package service

import (
	"context"
	"errors"
	"strings"

	"github.com/iliyamo/session-auth/internal/model"
	"github.com/iliyamo/session-auth/internal/queue"
	"github.com/iliyamo/session-auth/internal/repository"
)

// LoginWithExternalIdentity signs in with a token issued by the external
// identity provider.
//
// Resolution order:
//  1. a user already linked to the provider subject;
//  2. a user with the same email, linked now, but only when the provider
//     vouches for the email (account.linked is published);
//  3. a new passwordless user.
func (m *Manager) LoginWithExternalIdentity(ctx context.Context, providerToken string) (AuthResult, error) {
	providerToken = strings.TrimSpace(providerToken)
	if providerToken == "" {
		return AuthResult{}, ErrMissingToken
	}
	ext, err := m.external.VerifyExternalIdentity(ctx, providerToken)
	if err != nil {
		m.log.WithError(err).Warn("external identity rejected")
		return AuthResult{}, ErrInvalidExternalAudience
	}
	if !ext.AudienceOK || ext.Subject == "" {
		return AuthResult{}, ErrInvalidExternalAudience
	}

	u, err := m.resolveExternal(ctx, ext.Subject, model.NormalizeEmail(ext.Email), ext.EmailVerified, ext.DisplayName, ext.Avatar)
	if err != nil {
		return AuthResult{}, err
	}
	if !u.IsActive {
		return AuthResult{}, ErrAccountDeactivated
	}
	return m.openSession(ctx, u)
}

func (m *Manager) resolveExternal(ctx context.Context, subject, email string, verified bool, name, avatar string) (model.User, error) {
	u, err := m.users.GetByExternalID(ctx, subject)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return model.User{}, m.infra("external.lookup_subject", 0, err)
	}
	if email == "" {
		return model.User{}, invalidInput("identity provider did not assert an email")
	}

	u, err = m.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return m.linkExternal(ctx, u, subject, verified, avatar)
	case !errors.Is(err, repository.ErrNotFound):
		return model.User{}, m.infra("external.lookup_email", 0, err)
	}

	u = model.User{
		Email:         email,
		FullName:      strings.TrimSpace(name),
		AvatarURL:     avatar,
		Role:          model.RoleClient,
		IsActive:      true,
		AuthProvider:  model.ProviderExternal,
		ExternalID:    subject,
		EmailVerified: verified,
		CreatedAt:     m.now().UTC(),
	}
	id, err := m.users.Create(ctx, u)
	switch {
	case err == nil:
		u.ID = id
		return u, nil
	case errors.Is(err, repository.ErrExternalIDExists):
		// A concurrent first login for the same subject won the insert.
		return m.userByExternalID(ctx, subject)
	case errors.Is(err, repository.ErrEmailExists):
		return model.User{}, ErrEmailExists
	default:
		return model.User{}, m.infra("external.create", 0, err)
	}
}

func (m *Manager) linkExternal(ctx context.Context, u model.User, subject string, verified bool, avatar string) (model.User, error) {
	if !u.IsActive {
		// Deactivated accounts are left untouched.
		return model.User{}, ErrAccountDeactivated
	}
	if !verified {
		return model.User{}, ErrUnverifiedExternalEmail
	}
	if u.ExternalID != "" && u.ExternalID != subject {
		// The address already belongs to a different provider subject.
		return model.User{}, ErrEmailExists
	}
	if err := m.users.LinkExternal(ctx, u.ID, subject, avatar, verified); err != nil {
		if errors.Is(err, repository.ErrExternalIDExists) {
			return m.userByExternalID(ctx, subject)
		}
		return model.User{}, m.infra("external.link", u.ID, err)
	}
	u.AuthProvider = model.ProviderExternal
	u.ExternalID = subject
	u.EmailVerified = verified
	if u.AvatarURL == "" {
		u.AvatarURL = avatar
	}
	m.log.WithField("user_id", u.ID).Info("external identity linked to existing account")
	m.publish(ctx, queue.AuthEvent{Kind: queue.KindAccountLinked, UserID: u.ID, Email: u.Email, ExternalID: subject})
	return u, nil
}

func (m *Manager) userByExternalID(ctx context.Context, subject string) (model.User, error) {
	u, err := m.users.GetByExternalID(ctx, subject)
	if err != nil {
		return model.User{}, m.infra("external.reload", 0, err)
	}
	return u, nil
}
