package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/evms/internal/apperror"
	"github.com/iliyamo/evms/internal/utils"
)

// JWTAuth validates the Bearer access token and stores the caller's
// Identity in the context.  Protected route groups are wrapped with it.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, err := bearerIdentity(secret, c.Request())
			if err != nil {
				return err
			}
			SetIdentity(c, id)
			return next(c)
		}
	}
}

// bearerIdentity reads the caller from the Authorization header.
func bearerIdentity(secret string, r *http.Request) (Identity, error) {
	auth := r.Header.Get(echo.HeaderAuthorization)
	if !strings.HasPrefix(auth, "Bearer ") {
		return Identity{}, apperror.ErrUnauthorized
	}
	raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	if raw == "" {
		return Identity{}, apperror.ErrUnauthorized
	}

	claims, err := utils.ParseToken(secret, raw)
	if err != nil {
		return Identity{}, apperror.ErrInvalidToken
	}
	uid, err := claims.UserID()
	if err != nil {
		return Identity{}, apperror.ErrInvalidToken
	}
	return Identity{UserID: uid, Role: claims.Role, Email: claims.Email}, nil
}
