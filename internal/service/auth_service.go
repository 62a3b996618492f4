package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/evms/internal/apperror"
	"github.com/iliyamo/evms/internal/model"
	"github.com/iliyamo/evms/internal/repository"
	"github.com/iliyamo/evms/internal/utils"
)

// UserStore is the users persistence used by auth and user services.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id uint64) (*model.User, error)
	List(ctx context.Context, f repository.UserFilter) ([]model.User, error)
	Update(ctx context.Context, id uint64, p repository.UserPatch) error
	UpdatePassword(ctx context.Context, id uint64, hash string) error
	Delete(ctx context.Context, id uint64) error
}

// TokenStore keeps refresh token digests.
type TokenStore interface {
	Store(ctx context.Context, t *model.RefreshToken) error
	FindActive(ctx context.Context, hash string, now time.Time) (*model.RefreshToken, error)
	Rotate(ctx context.Context, oldHash string, next *model.RefreshToken) error
	Revoke(ctx context.Context, hash string) error
	RevokeAll(ctx context.Context, userID uint64) error
}

// AuthConfig holds token and hashing parameters.
type AuthConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	BcryptCost    int
}

// AuthResult is returned by login, register and refresh.
type AuthResult struct {
	Token        string      `json:"token"`
	RefreshToken string      `json:"refreshToken"`
	ExpiresAt    time.Time   `json:"expiresAt"`
	User         *model.User `json:"user"`
}

// RegisterInput is the public sign-up payload.
type RegisterInput struct {
	Name      string
	Email     string
	Password  string
	Role      string
	CollegeID *uint64
}

// AuthService issues and validates tokens.
type AuthService struct {
	users  UserStore
	tokens TokenStore
	cfg    AuthConfig
	log    zerolog.Logger
	clock  Clock

	// dummyHash keeps unknown-email logins as slow as wrong-password ones.
	dummyHash string
}

func NewAuthService(users UserStore, tokens TokenStore, cfg AuthConfig, log zerolog.Logger) *AuthService {
	dummy, _ := utils.HashPassword("evms-dummy-password", cfg.BcryptCost)
	return &AuthService{users: users, tokens: tokens, cfg: cfg, log: log, dummyHash: dummy}
}

// Login checks the credentials.  An unknown email and a wrong password
// produce the same error.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, internal(err)
		}
		utils.VerifyPassword(s.dummyHash, password)
		return nil, apperror.ErrInvalidCredentials
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		s.log.Debug().Uint64("user_id", u.ID).Msg("login rejected")
		return nil, apperror.ErrInvalidCredentials
	}
	if utils.NeedsRehash(u.PasswordHash, s.cfg.BcryptCost) {
		s.rehash(ctx, u.ID, password)
	}
	return s.issue(ctx, u, "")
}

// rehash upgrades a stored hash to the configured cost.  Failures are
// logged and the login goes ahead.
func (s *AuthService) rehash(ctx context.Context, userID uint64, password string) {
	hash, err := utils.HashPassword(password, s.cfg.BcryptCost)
	if err == nil {
		err = s.users.UpdatePassword(ctx, userID, hash)
	}
	if err != nil {
		s.log.Warn().Err(err).Uint64("user_id", userID).Msg("password rehash failed")
	}
}

// Register creates a student or eventManager account and logs it in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	role := in.Role
	switch role {
	case "":
		role = model.RoleStudent
	case model.RoleStudent, model.RoleEventManager:
	case model.RoleAdmin:
		return nil, apperror.ErrForbidden.WithMessage("admin accounts can only be created by an administrator")
	default:
		return nil, invalid("role", "must be one of: student, eventManager")
	}
	hash, err := utils.HashPassword(in.Password, s.cfg.BcryptCost)
	if err != nil {
		return nil, internal(err)
	}
	u := &model.User{Email: in.Email, PasswordHash: hash, Name: in.Name, Role: role, CollegeID: in.CollegeID}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, userWriteErr(err)
	}
	s.log.Info().Uint64("user_id", u.ID).Str("role", u.Role).Msg("user registered")
	return s.issue(ctx, u, "")
}

// Refresh validates a refresh token and rotates it.
func (s *AuthService) Refresh(ctx context.Context, raw string) (*AuthResult, error) {
	if raw == "" {
		return nil, apperror.ErrInvalidToken
	}
	claims, err := utils.ParseToken(s.cfg.RefreshSecret, raw)
	if err != nil {
		return nil, apperror.ErrInvalidToken
	}
	uid, _ := claims.UserID()
	hash := utils.HashToken(raw)
	stored, err := s.tokens.FindActive(ctx, hash, s.clock.now())
	if err != nil {
		return nil, tokenErr(err)
	}
	if stored.UserID != uid {
		return nil, apperror.ErrInvalidToken
	}
	u, err := s.users.GetByID(ctx, uid)
	if err != nil {
		return nil, tokenErr(err)
	}
	return s.issue(ctx, u, hash)
}

// Logout revokes one refresh token, or every token of the caller when raw
// is empty.
func (s *AuthService) Logout(ctx context.Context, actor Actor, raw string) error {
	if raw == "" {
		return internal(s.tokens.RevokeAll(ctx, actor.UserID))
	}
	claims, err := utils.ParseToken(s.cfg.RefreshSecret, raw)
	if err != nil {
		return apperror.ErrInvalidToken
	}
	if uid, _ := claims.UserID(); uid != actor.UserID {
		return apperror.ErrForbidden
	}
	return internal(s.tokens.Revoke(ctx, utils.HashToken(raw)))
}

// Me returns the caller's profile.
func (s *AuthService) Me(ctx context.Context, actor Actor) (*model.User, error) {
	u, err := s.users.GetByID(ctx, actor.UserID)
	if err != nil {
		return nil, notFound(err, apperror.ErrUserNotFound)
	}
	return u, nil
}

// issue signs a new pair for u.  When oldHash is set the previous refresh
// token is revoked in the same transaction.
func (s *AuthService) issue(ctx context.Context, u *model.User, oldHash string) (*AuthResult, error) {
	now := s.clock.now()
	access, err := utils.NewToken(s.cfg.AccessSecret, u.ID, u.Role, u.Email, s.cfg.AccessTTL, now)
	if err != nil {
		return nil, internal(err)
	}
	refresh, err := utils.NewToken(s.cfg.RefreshSecret, u.ID, u.Role, u.Email, s.cfg.RefreshTTL, now)
	if err != nil {
		return nil, internal(err)
	}
	rt := &model.RefreshToken{UserID: u.ID, TokenHash: utils.HashToken(refresh.Token), ExpiresAt: refresh.Exp}
	if oldHash == "" {
		err = s.tokens.Store(ctx, rt)
	} else {
		err = s.tokens.Rotate(ctx, oldHash, rt)
	}
	if err != nil {
		return nil, tokenErr(err)
	}
	return &AuthResult{Token: access.Token, RefreshToken: refresh.Token, ExpiresAt: access.Exp, User: u}, nil
}

func tokenErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperror.ErrInvalidToken
	}
	return internal(err)
}

func userWriteErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrEmailExists):
		return apperror.ErrDuplicateUser
	case errors.Is(err, repository.ErrConflict):
		return apperror.ErrCollegeNotFound
	case errors.Is(err, repository.ErrNotFound):
		return apperror.ErrUserNotFound
	}
	return internal(err)
}
