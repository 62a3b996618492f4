package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/evms/internal/apperror"
)

const identityKey = "evms.identity"

// Identity is the authenticated caller of one request.  It is set once by
// JWTAuth and only read afterwards.
type Identity struct {
	UserID uint64
	Role   string
	Email  string
}

// SetIdentity stores id in the request context.
func SetIdentity(c echo.Context, id Identity) { c.Set(identityKey, id) }

// IdentityFrom returns the caller, if JWTAuth ran for this request.
func IdentityFrom(c echo.Context) (Identity, bool) {
	id, ok := c.Get(identityKey).(Identity)
	return id, ok && id.UserID != 0
}

// MustIdentity is IdentityFrom for handlers behind JWTAuth.  A missing
// identity yields ErrUnauthorized.
func MustIdentity(c echo.Context) (Identity, error) {
	id, ok := IdentityFrom(c)
	if !ok {
		return Identity{}, apperror.ErrUnauthorized
	}
	return id, nil
}

// userKey identifies the caller for rate limit keys.  Global middleware
// runs before JWTAuth, so the bearer token is read here when no Identity
// is set yet.  "anon" when neither yields a user.
func userKey(c echo.Context, secret string) string {
	id, ok := IdentityFrom(c)
	if !ok && secret != "" {
		if bid, err := bearerIdentity(secret, c.Request()); err == nil {
			id, ok = bid, true
		}
	}
	if ok {
		return strconv.FormatUint(id.UserID, 10)
	}
	return "anon"
}
