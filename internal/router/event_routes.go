package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/evms/internal/handler"
	"github.com/iliyamo/evms/internal/middleware"
)

// RegisterEvents registers /api/events.  Static paths are added before
// /:id so they are not captured as ids.
func RegisterEvents(e *echo.Echo, h *handler.EventHandler, jwtSecret string) {
	g := protected(e, "/api/events", jwtSecret, anyRole)
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/stats", h.Stats, middleware.RequireRole(staff...))
	g.GET("/export/csv", h.ExportCSV, middleware.RequireRole(staff...))
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.PATCH("/:id/status", h.SetStatus, middleware.RequireRole(admin...))
	g.PATCH("/:id/hold", h.Hold, middleware.RequireRole(staff...))
	g.DELETE("/:id", h.Delete, middleware.RequireRole(admin...))
	g.GET("/:id/registrations", h.Registrations, middleware.RequireRole(staff...))
}

// RegisterRegistrations registers /api/registrations.  Students see and
// cancel only their own rows; the service enforces that.
func RegisterRegistrations(e *echo.Echo, h *handler.RegistrationHandler, jwtSecret string) {
	g := protected(e, "/api/registrations", jwtSecret, anyRole)
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/export/csv", h.ExportCSV, middleware.RequireRole(staff...))
	g.GET("/:id", h.Get)
	g.PATCH("/:id/cancel", h.Cancel)
}

// RegisterInvoices registers /api/invoices for staff.
func RegisterInvoices(e *echo.Echo, h *handler.InvoiceHandler, jwtSecret string) {
	g := protected(e, "/api/invoices", jwtSecret, staff)
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/export/csv", h.ExportCSV)
	g.GET("/:id", h.Get)
	g.POST("/:id/pay", h.Pay)
	g.POST("/:id/refund", h.Refund)
}

// RegisterDocuments registers /api/documents.  Any signed-in user may
// reach these; upload and delete rights depend on the event and uploader.
func RegisterDocuments(e *echo.Echo, h *handler.DocumentHandler, jwtSecret string) {
	g := protected(e, "/api/documents", jwtSecret, anyRole)
	g.POST("", h.Upload)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.GET("/:id/download", h.Download)
	g.DELETE("/:id", h.Delete)
}
