package handler

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/iliyamo/session-auth/internal/token"
)

const (
	stateCookie = "oauth_state"
	stateTTL    = 10 * time.Minute
)

// CodeExchanger is the part of *oauth2.Config the web flow uses.
type CodeExchanger interface {
	AuthCodeURL(state string, opts ...oauth2.AuthCodeOption) string
	Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error)
}

// StateTokens mints and checks the signed state parameter.  *token.Minter
// implements it.
type StateTokens interface {
	MintSinglePurpose(userID uint64, purpose string, ttl time.Duration) (token.Signed, error)
	VerifyPurpose(raw, purpose string) (*token.Claims, error)
}

// OAuthFlow runs the authorization-code flow against the identity provider
// and ends in LoginWithExternalIdentity with the returned ID token.
type OAuthFlow struct {
	Config CodeExchanger
	States StateTokens
	Secure bool // mark the state cookie Secure
}

// NewGoogleOAuth returns the oauth2 configuration for Google sign-in.
func NewGoogleOAuth(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     google.Endpoint,
	}
}

// ExternalLogin redirects the browser to the provider.  The state is a
// signed single-purpose token, also kept in a cookie so the callback can
// tell it was started by the same browser.
func (h *AuthHandler) ExternalLogin(c echo.Context) error {
	if h.OAuth == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "external login not configured", "code": "NOT_CONFIGURED"})
	}
	state, err := h.OAuth.States.MintSinglePurpose(0, token.PurposeOAuthState, stateTTL)
	if err != nil {
		return h.writeError(c, err)
	}
	c.SetCookie(&http.Cookie{
		Name:     stateCookie,
		Value:    state.Token,
		Path:     "/v1/auth/external",
		Expires:  state.ExpiresAt,
		HttpOnly: true,
		Secure:   h.OAuth.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return c.Redirect(http.StatusFound, h.OAuth.Config.AuthCodeURL(state.Token))
}

// ExternalCallback checks the state, exchanges the code and signs the user
// in with the ID token from the token response.
func (h *AuthHandler) ExternalCallback(c echo.Context) error {
	if h.OAuth == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "external login not configured", "code": "NOT_CONFIGURED"})
	}
	state := c.QueryParam("state")
	cookie, err := c.Cookie(stateCookie)
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		return badRequest(c, "invalid oauth state")
	}
	if _, err := h.OAuth.States.VerifyPurpose(state, token.PurposeOAuthState); err != nil {
		return badRequest(c, "invalid oauth state")
	}
	c.SetCookie(&http.Cookie{Name: stateCookie, Value: "", Path: "/v1/auth/external", MaxAge: -1, HttpOnly: true})

	code := c.QueryParam("code")
	if code == "" {
		return badRequest(c, "code is required")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	tok, err := h.OAuth.Config.Exchange(ctx, code)
	if err != nil {
		h.Log.WithError(err).Warn("oauth code exchange failed")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "code exchange failed", "code": "INVALID_EXTERNAL_AUDIENCE"})
	}
	idToken, _ := tok.Extra("id_token").(string)

	res, err := h.Svc.LoginWithExternalIdentity(ctx, idToken)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
