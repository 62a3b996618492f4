package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/evms/internal/model"
	"github.com/iliyamo/evms/internal/service"
)

type authService interface {
	Login(ctx context.Context, email, password string) (*service.AuthResult, error)
	Register(ctx context.Context, in service.RegisterInput) (*service.AuthResult, error)
	Refresh(ctx context.Context, raw string) (*service.AuthResult, error)
	Logout(ctx context.Context, actor service.Actor, raw string) error
	Me(ctx context.Context, actor service.Actor) (*model.User, error)
}

// AuthHandler serves /api/auth.
type AuthHandler struct {
	Auth authService
}

func NewAuthHandler(auth authService) *AuthHandler { return &AuthHandler{Auth: auth} }

// ----- DTOs -----

type loginReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type registerReq struct {
	Name      string  `json:"name" validate:"required,max=255"`
	Email     string  `json:"email" validate:"required,email,max=255"`
	Password  string  `json:"password" validate:"required,min=8,max=72"`
	Role      string  `json:"role" validate:"omitempty,oneof=admin eventManager student"`
	CollegeID *uint64 `json:"collegeId"`
}

type refreshReq struct {
	RefreshToken string `json:"refreshToken"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	res, err := h.Auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// Register handles POST /api/auth/register and logs the new user in.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	res, err := h.Auth.Register(ctx, service.RegisterInput{
		Name:      req.Name,
		Email:     req.Email,
		Password:  req.Password,
		Role:      req.Role,
		CollegeID: req.CollegeID,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, res)
}

// Refresh handles POST /api/auth/refresh-token.  The refresh token is
// rotated.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	res, err := h.Auth.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// Logout handles POST /api/auth/logout.  With a refreshToken in the body
// only that token is revoked; without one every session of the caller is.
func (h *AuthHandler) Logout(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var req refreshReq
	if c.Request().ContentLength != 0 {
		if err := bind(c, &req); err != nil {
			return err
		}
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	if err := h.Auth.Logout(ctx, actor, req.RefreshToken); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	u, err := h.Auth.Me(ctx, actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}
