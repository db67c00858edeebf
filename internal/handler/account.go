package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/session-auth/internal/model"
	"github.com/iliyamo/session-auth/internal/service"
)

type profileReq struct {
	FullName  *string `json:"full_name" validate:"omitempty,max=255"`
	AvatarURL *string `json:"avatar_url" validate:"omitempty,url,max=1024"`
}

type changePasswordReq struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

type adminUpdateReq struct {
	IsActive *bool  `json:"is_active"`
	Role     string `json:"role" validate:"omitempty,oneof=client admin"`
}

// Me: the signed-in user.
func (h *AuthHandler) Me(c echo.Context) error {
	uid, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	u, err := h.Svc.Me(ctx, uid)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

// UpdateMe: change display name and avatar.
func (h *AuthHandler) UpdateMe(c echo.Context) error {
	uid, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}
	var req profileReq
	if ok, resp := bind(c, &req); !ok {
		return resp
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	u, err := h.Svc.UpdateProfile(ctx, uid, service.ProfileUpdate{FullName: req.FullName, AvatarURL: req.AvatarURL})
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

// ChangePassword: replace the password; every other session ends.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	uid, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}
	var req changePasswordReq
	if ok, resp := bind(c, &req); !ok {
		return resp
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	res, err := h.Svc.ChangePassword(ctx, uid, req.CurrentPassword, req.NewPassword)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// AdminGetUser: look up any account, deactivated ones included.
func (h *AuthHandler) AdminGetUser(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "invalid user id")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	u, err := h.Svc.GetUser(ctx, id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

// AdminUpdateUser: toggle is_active and/or change role.
func (h *AuthHandler) AdminUpdateUser(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "invalid user id")
	}
	var req adminUpdateReq
	if ok, resp := bind(c, &req); !ok {
		return resp
	}
	if req.IsActive == nil && req.Role == "" {
		return badRequest(c, "nothing to update")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	var (
		u   model.SafeUser
		err error
	)
	if req.IsActive != nil {
		if u, err = h.Svc.SetActive(ctx, id, *req.IsActive); err != nil {
			return h.writeError(c, err)
		}
	}
	if req.Role != "" {
		if u, err = h.Svc.SetRole(ctx, id, model.Role(req.Role)); err != nil {
			return h.writeError(c, err)
		}
	}
	return c.JSON(http.StatusOK, u)
}
