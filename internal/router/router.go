package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/session-auth/internal/handler"
	"github.com/iliyamo/session-auth/internal/middleware"
	"github.com/iliyamo/session-auth/internal/model"
)

// Deps are the pieces the route table is assembled from.
type Deps struct {
	Handler  *handler.AuthHandler
	Verifier middleware.AccessVerifier // *token.Minter
	Limiter  echo.MiddlewareFunc       // nil disables rate limiting
	DB       handler.Pinger
}

// RegisterRoutes registers routes that do not require authentication.
// Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
}

// RegisterAuth registers the credential endpoints and applies the
// necessary middleware.  Operations that open or exchange a session live
// under /v1/auth behind the rate limiter; the rest need an access token.
func RegisterAuth(e *echo.Echo, d Deps) {
	a := d.Handler
	auth := middleware.Authenticate(d.Verifier)

	var public []echo.MiddlewareFunc
	if d.Limiter != nil {
		public = append(public, d.Limiter)
	}
	g := e.Group("/v1/auth", public...)
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh) // rotates the refresh token
	g.POST("/external", a.External)
	g.GET("/external/login", a.ExternalLogin)
	g.GET("/external/callback", a.ExternalCallback)
	g.POST("/forgot-password", a.ForgotPassword)
	g.POST("/reset-password", a.ResetPassword)

	// Ending a session requires the owner's access token.
	g.POST("/logout", a.Logout, auth)
	g.POST("/logout-all", a.LogoutAll, auth)

	me := e.Group("/v1/me", auth)
	me.GET("", a.Me)
	me.PATCH("", a.UpdateMe)
	me.POST("/password", a.ChangePassword)

	admin := e.Group("/v1/admin", auth, middleware.RequireRole(model.RoleAdmin))
	admin.GET("/users/:id", a.AdminGetUser)
	admin.PATCH("/users/:id", a.AdminUpdateUser)
}

// Register wires the whole route table.
func Register(e *echo.Echo, d Deps) {
	RegisterRoutes(e, d.DB)
	RegisterAuth(e, d)
}
