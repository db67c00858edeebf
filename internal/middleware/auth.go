package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/session-auth/internal/token"
)

// AccessVerifier checks access tokens.  *token.Minter implements it.
type AccessVerifier interface {
	VerifyType(raw string, want token.Type) (*token.Claims, error)
}

// Authenticate validates a Bearer access token and stores the caller's id
// and role in the context (see UserID and Role).  Access tokens are not
// looked up in any store; they stay valid until their own expiry.
func Authenticate(v AccessVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token", "code": "MISSING_TOKEN"})
			}
			raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))

			claims, err := v.VerifyType(raw, token.TypeAccess)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token", "code": "INVALID_ACCESS_TOKEN"})
			}
			c.Set(ctxUserID, claims.UserID)
			c.Set(ctxRole, claims.Role)
			return next(c)
		}
	}
}
