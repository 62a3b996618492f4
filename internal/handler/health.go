package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Health is the liveness probe.  It returns a plain "ok".
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Pinger reports whether a dependency is reachable.
type Pinger func(ctx context.Context) error

// Readiness returns GET /api/health.  It answers 503 while the database
// ping fails.
func Readiness(db Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := requestCtx(c)
		defer cancel()
		if err := db(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable", "database": "down"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ok", "database": "up"})
	}
}
