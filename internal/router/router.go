// Package router registers the HTTP routes of the API on an echo instance.
// Each Register function owns one area; role gates are applied per group
// and ownership rules are left to the services.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iliyamo/evms/internal/config"
	"github.com/iliyamo/evms/internal/handler"
	"github.com/iliyamo/evms/internal/middleware"
	"github.com/iliyamo/evms/internal/model"
)

// Role sets used by the route groups.
var (
	anyRole = []string{model.RoleAdmin, model.RoleEventManager, model.RoleStudent}
	staff   = []string{model.RoleAdmin, model.RoleEventManager}
	admin   = []string{model.RoleAdmin}
)

// Cache bundles what the response cache middleware needs.  A nil Redis
// client turns both read-through and purge into no-ops.
type Cache struct {
	Config config.CacheConfig
	Redis  *redis.Client
	Log    zerolog.Logger
}

func (c Cache) read() echo.MiddlewareFunc {
	return middleware.NewRedisCache(c.Config, c.Redis, c.Log)
}

func (c Cache) purge(route string) echo.MiddlewareFunc {
	return middleware.PurgeOnWrite(c.Config, c.Redis, route, c.Log)
}

// RegisterRoutes registers the unauthenticated health endpoints.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health)
	e.GET("/api/health", handler.Readiness(db))
}

// RegisterAuth registers /api/auth.  Login, register and refresh are
// public; logout and me need a valid access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/api/auth")
	g.POST("/login", a.Login)
	g.POST("/register", a.Register)
	g.POST("/refresh-token", a.Refresh)

	signed := e.Group("/api/auth", middleware.JWTAuth(jwtSecret), middleware.RequireRole(anyRole...))
	signed.POST("/logout", a.Logout)
	signed.GET("/me", a.Me)
}

// protected returns a group under prefix that requires a valid access
// token and one of roles.
func protected(e *echo.Echo, prefix, jwtSecret string, roles []string, m ...echo.MiddlewareFunc) *echo.Group {
	mw := append([]echo.MiddlewareFunc{middleware.JWTAuth(jwtSecret), middleware.RequireRole(roles...)}, m...)
	return e.Group(prefix, mw...)
}
