package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/evms/internal/apperror"
	"github.com/iliyamo/evms/internal/model"
	"github.com/iliyamo/evms/internal/utils"
)

func testAuthConfig() AuthConfig {
	return AuthConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
		BcryptCost:    bcrypt.MinCost,
	}
}

func newAuthFixture(t *testing.T) (*AuthService, *memUsers, *memTokens) {
	t.Helper()
	users, tokens := newMemUsers(), newMemTokens()
	svc := NewAuthService(users, tokens, testAuthConfig(), zerolog.Nop())
	_, err := svc.Register(context.Background(), RegisterInput{Name: "Alice", Email: "alice@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)
	return svc, users, tokens
}

func TestAuthRegister_Roles(t *testing.T) {
	users, tokens := newMemUsers(), newMemTokens()
	svc := NewAuthService(users, tokens, testAuthConfig(), zerolog.Nop())
	ctx := context.Background()

	res, err := svc.Register(ctx, RegisterInput{Name: "Dee", Email: "dee@example.com", Password: "pw-123456"})
	require.NoError(t, err)
	assert.Equal(t, model.RoleStudent, res.User.Role)
	assert.NotEmpty(t, res.Token)
	assert.NotEmpty(t, res.RefreshToken)

	res, err = svc.Register(ctx, RegisterInput{Name: "Max", Email: "max@example.com", Password: "pw-123456", Role: model.RoleEventManager})
	require.NoError(t, err)
	assert.Equal(t, model.RoleEventManager, res.User.Role)

	_, err = svc.Register(ctx, RegisterInput{Name: "Eve", Email: "eve@example.com", Password: "pw-123456", Role: model.RoleAdmin})
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = svc.Register(ctx, RegisterInput{Name: "Eve", Email: "eve@example.com", Password: "pw-123456", Role: "root"})
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	_, err = svc.Register(ctx, RegisterInput{Name: "Dee 2", Email: "DEE@example.com", Password: "pw-123456"})
	assert.ErrorIs(t, err, apperror.ErrDuplicateUser)
}

func TestAuthLogin_SameErrorForUnknownEmailAndWrongPassword(t *testing.T) {
	svc, _, _ := newAuthFixture(t)
	ctx := context.Background()

	_, wrongPass := svc.Login(ctx, "alice@example.com", "nope")
	_, unknown := svc.Login(ctx, "nobody@example.com", "s3cret-pass")

	require.Error(t, wrongPass)
	require.Error(t, unknown)
	assert.ErrorIs(t, wrongPass, apperror.ErrInvalidCredentials)
	assert.ErrorIs(t, unknown, apperror.ErrInvalidCredentials)
	assert.Equal(t, wrongPass.Error(), unknown.Error())

	res, err := svc.Login(ctx, "Alice@Example.com", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", res.User.Email)
}

func TestAuthLogin_RehashesWeakerHash(t *testing.T) {
	users, tokens := newMemUsers(), newMemTokens()
	svc := NewAuthService(users, tokens, testAuthConfig(), zerolog.Nop())
	ctx := context.Background()

	old, err := utils.HashPassword("s3cret-pass", bcrypt.MinCost+1)
	require.NoError(t, err)
	u := &model.User{Email: "old@example.com", PasswordHash: old, Name: "Old", Role: model.RoleStudent}
	require.NoError(t, users.Create(ctx, u))

	_, err = svc.Login(ctx, "old@example.com", "s3cret-pass")
	require.NoError(t, err)

	stored, err := users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.NotEqual(t, old, stored.PasswordHash)
	assert.False(t, utils.NeedsRehash(stored.PasswordHash, bcrypt.MinCost))
	assert.True(t, utils.VerifyPassword(stored.PasswordHash, "s3cret-pass"))
}

func TestAuthRefresh_RotatesToken(t *testing.T) {
	svc, _, tokens := newAuthFixture(t)
	ctx := context.Background()

	first, err := svc.Login(ctx, "alice@example.com", "s3cret-pass")
	require.NoError(t, err)

	second, err := svc.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.Equal(t, first.User.ID, second.User.ID)

	// the rotated token is spent
	_, err = svc.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, apperror.ErrInvalidToken)

	// register and login each issued one, the rotation replaced one
	assert.Equal(t, 2, tokens.active(first.User.ID))
}

func TestAuthRefresh_RejectsBadTokens(t *testing.T) {
	svc, _, _ := newAuthFixture(t)
	ctx := context.Background()
	res, err := svc.Login(ctx, "alice@example.com", "s3cret-pass")
	require.NoError(t, err)

	for name, raw := range map[string]string{
		"empty":        "",
		"garbage":      "not-a-jwt",
		"access token": res.Token,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Refresh(ctx, raw)
			assert.ErrorIs(t, err, apperror.ErrInvalidToken)
		})
	}
}

func TestAuthRefresh_RevokedOrOrphaned(t *testing.T) {
	svc, users, _ := newAuthFixture(t)
	ctx := context.Background()

	res, err := svc.Login(ctx, "alice@example.com", "s3cret-pass")
	require.NoError(t, err)
	alice := Actor{UserID: res.User.ID, Role: res.User.Role}
	require.NoError(t, svc.Logout(ctx, alice, res.RefreshToken))
	_, err = svc.Refresh(ctx, res.RefreshToken)
	assert.ErrorIs(t, err, apperror.ErrInvalidToken, "logged out token")

	res, err = svc.Login(ctx, "alice@example.com", "s3cret-pass")
	require.NoError(t, err)
	require.NoError(t, users.Delete(ctx, res.User.ID))
	_, err = svc.Refresh(ctx, res.RefreshToken)
	assert.ErrorIs(t, err, apperror.ErrInvalidToken, "token of a deleted user")
}

func TestAuthLogout(t *testing.T) {
	svc, _, tokens := newAuthFixture(t)
	ctx := context.Background()
	res, err := svc.Login(ctx, "alice@example.com", "s3cret-pass")
	require.NoError(t, err)
	alice := Actor{UserID: res.User.ID, Role: res.User.Role}

	assert.ErrorIs(t, svc.Logout(ctx, Actor{UserID: alice.UserID + 1}, res.RefreshToken), apperror.ErrForbidden)

	require.NoError(t, svc.Logout(ctx, alice, res.RefreshToken))
	_, err = svc.Refresh(ctx, res.RefreshToken)
	assert.ErrorIs(t, err, apperror.ErrInvalidToken)

	require.NoError(t, svc.Logout(ctx, alice, ""))
	assert.Zero(t, tokens.active(alice.UserID))
}

func TestAuthMe(t *testing.T) {
	svc, users, _ := newAuthFixture(t)
	u, err := users.GetByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)

	me, err := svc.Me(context.Background(), Actor{UserID: u.ID, Role: u.Role})
	require.NoError(t, err)
	assert.Equal(t, "Alice", me.Name)

	_, err = svc.Me(context.Background(), Actor{UserID: 404})
	assert.ErrorIs(t, err, apperror.ErrUserNotFound)
}
