package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/evms/internal/apperror"
)

// RequireRole rejects callers whose role is not in roles with 403 before
// the handler runs.  It must be installed after JWTAuth.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFrom(c)
			if !ok {
				return apperror.ErrUnauthorized
			}
			if !allowed[id.Role] {
				return apperror.ErrForbidden
			}
			return next(c)
		}
	}
}
