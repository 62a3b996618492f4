package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/evms/internal/model"
	"github.com/iliyamo/evms/internal/repository"
	"github.com/iliyamo/evms/internal/service"
)

type userService interface {
	List(ctx context.Context, f repository.UserFilter) ([]model.User, error)
	Get(ctx context.Context, actor service.Actor, id uint64) (*model.User, error)
	Create(ctx context.Context, in service.CreateUserInput) (*model.User, error)
	Update(ctx context.Context, actor service.Actor, id uint64, p repository.UserPatch) (*model.User, error)
	ChangePassword(ctx context.Context, actor service.Actor, id uint64, current, next string) error
	Delete(ctx context.Context, actor service.Actor, id uint64) error
}

// UserHandler serves /api/users.
type UserHandler struct {
	Users userService
}

func NewUserHandler(users userService) *UserHandler { return &UserHandler{Users: users} }

type createUserReq struct {
	Name      string  `json:"name" validate:"required,max=255"`
	Email     string  `json:"email" validate:"required,email,max=255"`
	Password  string  `json:"password" validate:"required,min=8,max=72"`
	Role      string  `json:"role" validate:"required,oneof=admin eventManager student"`
	CollegeID *uint64 `json:"collegeId"`
}

type updateUserReq struct {
	Name      *string `json:"name" validate:"omitempty,max=255"`
	Email     *string `json:"email" validate:"omitempty,email,max=255"`
	Role      *string `json:"role" validate:"omitempty,oneof=admin eventManager student"`
	CollegeID *uint64 `json:"collegeId"`
}

type passwordReq struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=72"`
}

// List handles GET /api/users?role=&collegeId=.
func (h *UserHandler) List(c echo.Context) error {
	college, err := queryUint(c, "collegeId")
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	out, err := h.Users.List(ctx, repository.UserFilter{Role: strings.TrimSpace(c.QueryParam("role")), CollegeID: college})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items(out))
}

func (h *UserHandler) Get(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	u, err := h.Users.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

// Create handles POST /api/users.  Admins may create any role.
func (h *UserHandler) Create(c echo.Context) error {
	var req createUserReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	u, err := h.Users.Create(ctx, service.CreateUserInput{
		Name:      strings.TrimSpace(req.Name),
		Email:     req.Email,
		Password:  req.Password,
		Role:      req.Role,
		CollegeID: req.CollegeID,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *UserHandler) Update(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var req updateUserReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	u, err := h.Users.Update(ctx, actor, id, repository.UserPatch{
		Name:      req.Name,
		Email:     req.Email,
		Role:      req.Role,
		CollegeID: req.CollegeID,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

// ChangePassword handles PUT /api/users/:id/password.
func (h *UserHandler) ChangePassword(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var req passwordReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	if err := h.Users.ChangePassword(ctx, actor, id, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *UserHandler) Delete(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	if err := h.Users.Delete(ctx, actor, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
