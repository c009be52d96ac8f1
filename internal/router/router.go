// Package router wires handlers and middleware onto the echo instance.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cafeteria-procurement/internal/handler"
	"github.com/iliyamo/cafeteria-procurement/internal/middleware"
	"github.com/iliyamo/cafeteria-procurement/internal/model"
)

// Deps collects what the routes need.  RateLimit may be nil.
type Deps struct {
	Auth      *handler.AuthHandler
	Audit     *handler.AuditHandler
	Health    handler.Health
	Verifier  middleware.AccessVerifier
	RateLimit echo.MiddlewareFunc
}

// Register mounts the health check at /healthz and the API under /api/v1.
// Middleware is attached per route so unknown paths still answer 404.
func Register(e *echo.Echo, d Deps) {
	e.GET("/healthz", d.Health.Check)

	authn := middleware.Authenticate(d.Verifier)
	// Credential endpoints are throttled when a limiter is available.
	var limited []echo.MiddlewareFunc
	if d.RateLimit != nil {
		limited = append(limited, d.RateLimit)
	}

	api := e.Group("/api/v1")

	auth := api.Group("/auth")
	auth.POST("/register", d.Auth.Register)
	auth.POST("/login", d.Auth.Login, limited...)
	auth.POST("/refresh", d.Auth.Refresh)
	auth.POST("/forgot-password", d.Auth.ForgotPassword, limited...)
	auth.POST("/reset-password", d.Auth.ResetPassword, limited...)
	auth.POST("/logout", d.Auth.Logout, authn)
	auth.GET("/me", d.Auth.Me, authn)
	auth.GET("/activity", d.Audit.Activity, authn)

	api.GET("/audit-logs", d.Audit.List, authn, middleware.Authorize(model.RoleAdmin))
}
