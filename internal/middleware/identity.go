package middleware

// identity.go holds the context keys set by Authenticate and the accessors
// handlers use to read them back.

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/session-auth/internal/model"
)

const (
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// UserID returns the authenticated user id.  ok is false on routes that
// did not run Authenticate.
func UserID(c echo.Context) (id uint64, ok bool) {
	id, ok = c.Get(ctxUserID).(uint64)
	return id, ok && id != 0
}

// Role returns the authenticated role, or "" when unauthenticated.
func Role(c echo.Context) model.Role {
	r, _ := c.Get(ctxRole).(model.Role)
	return r
}
