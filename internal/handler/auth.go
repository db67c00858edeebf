package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/session-auth/internal/model"
	"github.com/iliyamo/session-auth/internal/service"
)

// ----- DTOs -----

type registerReq struct {
	Email      string `json:"email" validate:"required,email,max=255"`
	Password   string `json:"password" validate:"required"`
	FullName   string `json:"full_name" validate:"max=255"`
	Newsletter bool   `json:"newsletter_opt_in"`
}

type loginReq struct {
	Email      string `json:"email" validate:"required"`
	Password   string `json:"password" validate:"required"`
	Newsletter *bool  `json:"newsletter_opt_in"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type externalReq struct {
	IDToken string `json:"id_token"`
}

type forgotReq struct {
	Email string `json:"email" validate:"required,email"`
}

type resetReq struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password" validate:"required"`
}

// Register: create a local client account and return its first session.
// Public registration never grants the admin role.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if ok, resp := bind(c, &req); !ok {
		return resp
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	res, err := h.Svc.Register(ctx, service.RegisterInput{
		Email:           req.Email,
		Password:        req.Password,
		FullName:        req.FullName,
		Role:            model.RoleClient,
		NewsletterOptIn: req.Newsletter,
	})
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// Login: verify email and password and return a new pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if ok, resp := bind(c, &req); !ok {
		return resp
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	res, err := h.Svc.Login(ctx, req.Email, req.Password, req.Newsletter)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Refresh: rotate the presented refresh token.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if ok, resp := bind(c, &req); !ok {
		return resp
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	res, err := h.Svc.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return h.writeError(c, err, override{service.CodeUserNotFound, http.StatusUnauthorized})
	}
	return c.JSON(http.StatusOK, res)
}

// Logout: drop the session behind refresh_token, if one is given.  Requires
// a bearer token so only the owner can end a session.
func (h *AuthHandler) Logout(c echo.Context) error {
	uid, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}
	var req refreshReq
	_ = c.Bind(&req) // the body is optional
	ctx, cancel := requestCtx(c)
	defer cancel()

	if err := h.Svc.Logout(ctx, uid, req.RefreshToken); err != nil {
		return h.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// LogoutAll: revoke every session of the caller.
func (h *AuthHandler) LogoutAll(c echo.Context) error {
	uid, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	if err := h.Svc.LogoutAll(ctx, uid); err != nil {
		return h.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// External: sign in with an ID token obtained from the identity provider.
func (h *AuthHandler) External(c echo.Context) error {
	var req externalReq
	if ok, resp := bind(c, &req); !ok {
		return resp
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	res, err := h.Svc.LoginWithExternalIdentity(ctx, req.IDToken)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// ForgotPassword: always answers with the same acknowledgement.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotReq
	if ok, resp := bind(c, &req); !ok {
		return resp
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	res, err := h.Svc.ForgotPassword(ctx, req.Email)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// ResetPassword: set a new password with a reset token.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetReq
	if ok, resp := bind(c, &req); !ok {
		return resp
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	if err := h.Svc.ResetPassword(ctx, req.Token, req.NewPassword); err != nil {
		return h.writeError(c, err, override{service.CodeMissingToken, http.StatusBadRequest})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "password updated"})
}
