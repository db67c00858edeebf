package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/session-auth/internal/service"
)

var statusByCode = map[service.Code]int{
	service.CodeEmailExists:             http.StatusConflict,
	service.CodeInvalidCredentials:      http.StatusUnauthorized,
	service.CodeAccountDeactivated:      http.StatusForbidden,
	service.CodeMissingToken:            http.StatusUnauthorized,
	service.CodeInvalidRefreshToken:     http.StatusUnauthorized,
	service.CodeUserNotFound:            http.StatusNotFound,
	service.CodeInvalidExternalAudience: http.StatusUnauthorized,
	service.CodeUnverifiedExternalEmail: http.StatusConflict,
	service.CodeInvalidOrExpiredToken:   http.StatusBadRequest,
	service.CodeWeakPassword:            http.StatusBadRequest,
	service.CodeInvalidInput:            http.StatusBadRequest,
	service.CodeStoreUnavailable:        http.StatusInternalServerError,
}

// override replaces the default status of one code for one endpoint.
type override struct {
	code   service.Code
	status int
}

// writeError renders err as {"error", "code"}.  Anything that is not a
// *service.Error is an internal failure and is reported generically.
func (h *AuthHandler) writeError(c echo.Context, err error, overrides ...override) error {
	var se *service.Error
	if !errors.As(err, &se) {
		h.Log.WithError(err).WithField("path", c.Path()).Error("unexpected handler error")
		se = service.ErrStoreUnavailable
	}
	status, ok := statusByCode[se.Code]
	if !ok {
		status = http.StatusInternalServerError
	}
	for _, o := range overrides {
		if o.code == se.Code {
			status = o.status
		}
	}
	if status >= http.StatusInternalServerError {
		h.Log.WithFields(logrus.Fields{"path": c.Path(), "code": se.Code}).Warn("request failed")
	}
	return c.JSON(status, echo.Map{"error": se.Message, "code": se.Code})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg, "code": service.CodeInvalidInput})
}
