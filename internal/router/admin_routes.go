package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/evms/internal/handler"
	"github.com/iliyamo/evms/internal/middleware"
)

// RegisterVenues registers /api/venues.  Reads are open to every role and
// the list goes through the response cache; writes are admin only and
// purge it.
func RegisterVenues(e *echo.Echo, h *handler.VenueHandler, jwtSecret string, cache Cache) {
	g := protected(e, "/api/venues", jwtSecret, anyRole, cache.purge("/api/venues"))
	g.GET("", h.List, cache.read())
	g.GET("/:id", h.Get)

	w := middleware.RequireRole(admin...)
	g.POST("", h.Create, w)
	g.PUT("/:id", h.Update, w)
	g.DELETE("/:id", h.Delete, w)
}

// RegisterColleges registers /api/colleges with the same split as venues.
func RegisterColleges(e *echo.Echo, h *handler.CollegeHandler, jwtSecret string, cache Cache) {
	g := protected(e, "/api/colleges", jwtSecret, anyRole, cache.purge("/api/colleges"))
	g.GET("", h.List, cache.read())
	g.GET("/:id", h.Get)

	w := middleware.RequireRole(admin...)
	g.POST("", h.Create, w)
	g.PUT("/:id", h.Update, w)
	g.DELETE("/:id", h.Delete, w)
}

// RegisterUsers registers /api/users.  Get, update and password change
// accept the caller's own id; the service decides.
func RegisterUsers(e *echo.Echo, h *handler.UserHandler, jwtSecret string) {
	g := protected(e, "/api/users", jwtSecret, anyRole)
	w := middleware.RequireRole(admin...)
	g.GET("", h.List, w)
	g.POST("", h.Create, w)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.PUT("/:id/password", h.ChangePassword)
	g.DELETE("/:id", h.Delete, w)
}

// RegisterMigration registers the admin migration upload and log routes.
func RegisterMigration(e *echo.Echo, h *handler.MigrationHandler, jwtSecret string) {
	g := protected(e, "/api/migration", jwtSecret, admin)
	g.POST("/upload", h.Upload)
	g.GET("/logs", h.List)
	g.GET("/logs/:id", h.Get)
	g.POST("/logs/:id/retry", h.Retry)
}
