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

// ForgotMessage is the acknowledgement returned for every reset request.
const ForgotMessage = "if the account exists, a password reset has been issued"

// ForgotResult is the response of ForgotPassword.  ResetToken is only set
// when the manager runs with ResetTokenInResponse.
type ForgotResult struct {
	Message    string     `json:"message"`
	ResetToken string     `json:"reset_token,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// ForgotPassword issues a password reset token for email.  The answer is
// the same whether the account exists or not; the token travels by email
// through the password.reset_requested event.
func (m *Manager) ForgotPassword(ctx context.Context, email string) (ForgotResult, error) {
	res := ForgotResult{Message: ForgotMessage}

	u, err := m.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return res, nil
		}
		return ForgotResult{}, m.infra("forgot.lookup", 0, err)
	}
	if !u.IsActive {
		return res, nil
	}

	reset, err := m.minter.MintSinglePurpose(u.ID, token.PurposePasswordReset, m.resetTTL)
	if err != nil {
		return ForgotResult{}, m.infra("forgot.mint", u.ID, err)
	}
	m.publish(ctx, queue.AuthEvent{
		Kind:       queue.KindPasswordResetRequested,
		UserID:     u.ID,
		Email:      u.Email,
		ResetToken: reset.Token,
		ExpiresAt:  reset.ExpiresAt,
	})
	if m.resetInResponse {
		exp := reset.ExpiresAt
		res.ResetToken = reset.Token
		res.ExpiresAt = &exp
	}
	return res, nil
}

// ResetPassword sets a new password from a reset token and revokes every
// session of the user.
func (m *Manager) ResetPassword(ctx context.Context, raw, newPassword string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ErrMissingToken
	}
	claims, err := m.minter.VerifyPurpose(raw, token.PurposePasswordReset)
	if err != nil {
		return ErrInvalidOrExpiredToken
	}
	if err := identity.CheckPolicy(newPassword); err != nil {
		return ErrWeakPassword
	}

	u, err := m.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return m.infra("reset.user", claims.UserID, err)
	}
	if err := m.replacePassword(ctx, u.ID, newPassword); err != nil {
		return err
	}
	m.publish(ctx, queue.AuthEvent{Kind: queue.KindPasswordReset, UserID: u.ID, Email: u.Email})
	return nil
}

// ChangePassword replaces the password of a signed-in user after checking
// the current one.  Every session is revoked and a fresh one is opened for
// the caller.
func (m *Manager) ChangePassword(ctx context.Context, userID uint64, current, next string) (AuthResult, error) {
	u, err := m.activeUser(ctx, userID)
	if err != nil {
		return AuthResult{}, err
	}
	if !m.passwords.Verify(current, u.PasswordHash) {
		return AuthResult{}, ErrInvalidCredentials
	}
	if err := identity.CheckPolicy(next); err != nil {
		return AuthResult{}, ErrWeakPassword
	}
	if err := m.replacePassword(ctx, u.ID, next); err != nil {
		return AuthResult{}, err
	}
	return m.openSession(ctx, u)
}

func (m *Manager) replacePassword(ctx context.Context, userID uint64, plain string) error {
	hash, err := m.passwords.Hash(plain)
	if err != nil {
		return m.infra("password.hash", userID, err)
	}
	if err := m.users.UpdatePassword(ctx, userID, hash); err != nil {
		return m.infra("password.update", userID, err)
	}
	n, err := m.sessions.DeleteAllForUser(ctx, userID)
	if err != nil {
		return m.infra("password.revoke", userID, err)
	}
	m.log.WithFields(logrus.Fields{"user_id": userID, "sessions": n}).Info("password replaced, sessions revoked")
	return nil
}

func (m *Manager) activeUser(ctx context.Context, userID uint64) (model.User, error) {
	u, err := m.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.User{}, ErrUserNotFound
		}
		return model.User{}, m.infra("user.lookup", userID, err)
	}
	if !u.IsActive {
		return model.User{}, ErrAccountDeactivated
	}
	return u, nil
}
