package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/iliyamo/evms/internal/apperror"
	"github.com/iliyamo/evms/internal/model"
	"github.com/iliyamo/evms/internal/repository"
	"github.com/iliyamo/evms/internal/utils"
)

// CreateUserInput is the admin payload for new accounts of any role.
type CreateUserInput struct {
	Name      string
	Email     string
	Password  string
	Role      string
	CollegeID *uint64
}

// UserService manages accounts.
type UserService struct {
	users      UserStore
	tokens     TokenStore
	bcryptCost int
	log        zerolog.Logger
}

func NewUserService(users UserStore, tokens TokenStore, bcryptCost int, log zerolog.Logger) *UserService {
	return &UserService{users: users, tokens: tokens, bcryptCost: bcryptCost, log: log}
}

// List returns users filtered by role and college.
func (s *UserService) List(ctx context.Context, f repository.UserFilter) ([]model.User, error) {
	if f.Role != "" && !model.ValidRole(f.Role) {
		return nil, invalid("role", "must be one of: admin, eventManager, student")
	}
	out, err := s.users.List(ctx, f)
	return out, internal(err)
}

// Get returns a user to an admin or to the user themself.
func (s *UserService) Get(ctx context.Context, actor Actor, id uint64) (*model.User, error) {
	if !actor.IsAdmin() && actor.UserID != id {
		return nil, apperror.ErrForbidden
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, apperror.ErrUserNotFound)
	}
	return u, nil
}

// Create adds an account with any role.
func (s *UserService) Create(ctx context.Context, in CreateUserInput) (*model.User, error) {
	if !model.ValidRole(in.Role) {
		return nil, invalid("role", "must be one of: admin, eventManager, student")
	}
	hash, err := utils.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, internal(err)
	}
	u := &model.User{Email: in.Email, PasswordHash: hash, Name: in.Name, Role: in.Role, CollegeID: in.CollegeID}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, userWriteErr(err)
	}
	return u, nil
}

// Update applies a partial profile update.  Only admins may change role or
// college.
func (s *UserService) Update(ctx context.Context, actor Actor, id uint64, p repository.UserPatch) (*model.User, error) {
	if !actor.IsAdmin() {
		if actor.UserID != id {
			return nil, apperror.ErrForbidden
		}
		if p.Role != nil || p.CollegeID != nil {
			return nil, apperror.ErrForbidden.WithMessage("only administrators can change role or college")
		}
	}
	p.Name = trimmed(p.Name)
	if p.Name == nil && p.Email == nil && p.Role == nil && p.CollegeID == nil {
		return nil, apperror.ErrNoFieldsProvided
	}
	if p.Role != nil && !model.ValidRole(*p.Role) {
		return nil, invalid("role", "must be one of: admin, eventManager, student")
	}
	if err := s.users.Update(ctx, id, p); err != nil {
		return nil, userWriteErr(err)
	}
	return s.Get(ctx, actor, id)
}

// ChangePassword replaces the caller's password after checking the current
// one, and signs out every other session.
func (s *UserService) ChangePassword(ctx context.Context, actor Actor, id uint64, current, next string) error {
	if actor.UserID != id {
		return apperror.ErrForbidden
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return notFound(err, apperror.ErrUserNotFound)
	}
	if !utils.VerifyPassword(u.PasswordHash, current) {
		return invalid("currentPassword", "is incorrect")
	}
	hash, err := utils.HashPassword(next, s.bcryptCost)
	if err != nil {
		return internal(err)
	}
	if err := s.users.UpdatePassword(ctx, id, hash); err != nil {
		return notFound(err, apperror.ErrUserNotFound)
	}
	return internal(s.tokens.RevokeAll(ctx, id))
}

// Delete removes another user's account.  Admins cannot delete themselves.
func (s *UserService) Delete(ctx context.Context, actor Actor, id uint64) error {
	if actor.UserID == id {
		return apperror.ErrSelfDeletion
	}
	err := s.users.Delete(ctx, id)
	switch {
	case errors.Is(err, repository.ErrConflict):
		return apperror.ErrUserInUse
	case err != nil:
		return notFound(err, apperror.ErrUserNotFound)
	}
	// the foreign key cascade already drops the rows in MySQL
	if err := s.tokens.RevokeAll(ctx, id); err != nil {
		s.log.Warn().Err(err).Uint64("user_id", id).Msg("revoke tokens of deleted user")
	}
	s.log.Info().Uint64("actor_id", actor.UserID).Uint64("user_id", id).Msg("user deleted")
	return nil
}
