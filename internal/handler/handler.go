// Package handler is the HTTP controller: it binds and validates requests,
// calls the Session Manager and maps its typed outcomes to status codes.
package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/session-auth/internal/middleware"
	"github.com/iliyamo/session-auth/internal/model"
	"github.com/iliyamo/session-auth/internal/service"
)

// requestTimeout bounds the store calls of one request.
const requestTimeout = 5 * time.Second

// Sessions is the slice of *service.Manager the handlers call.
type Sessions interface {
	Register(ctx context.Context, in service.RegisterInput) (service.AuthResult, error)
	Login(ctx context.Context, email, password string, newsletter *bool) (service.AuthResult, error)
	Refresh(ctx context.Context, raw string) (service.AuthResult, error)
	Logout(ctx context.Context, userID uint64, raw string) error
	LogoutAll(ctx context.Context, userID uint64) error
	LoginWithExternalIdentity(ctx context.Context, providerToken string) (service.AuthResult, error)
	ForgotPassword(ctx context.Context, email string) (service.ForgotResult, error)
	ResetPassword(ctx context.Context, raw, newPassword string) error
	ChangePassword(ctx context.Context, userID uint64, current, next string) (service.AuthResult, error)

	Me(ctx context.Context, userID uint64) (model.SafeUser, error)
	UpdateProfile(ctx context.Context, userID uint64, p service.ProfileUpdate) (model.SafeUser, error)
	GetUser(ctx context.Context, userID uint64) (model.SafeUser, error)
	SetActive(ctx context.Context, userID uint64, active bool) (model.SafeUser, error)
	SetRole(ctx context.Context, userID uint64, role model.Role) (model.SafeUser, error)
}

// AuthHandler bundles dependencies for auth, profile and admin endpoints.
type AuthHandler struct {
	Svc   Sessions
	OAuth *OAuthFlow // nil when the web flow is not configured
	Log   logrus.FieldLogger
}

func NewAuthHandler(svc Sessions, oauth *OAuthFlow, log logrus.FieldLogger) *AuthHandler {
	return &AuthHandler{Svc: svc, OAuth: oauth, Log: log}
}

func requestCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// caller returns the id stored by middleware.Authenticate.
func caller(c echo.Context) (uint64, bool) { return middleware.UserID(c) }

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "code": "UNAUTHORIZED"})
}

func pathID(c echo.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	return id, err == nil && id != 0
}
