package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/evms/internal/model"
	"github.com/iliyamo/evms/internal/repository"
)

type collegeService interface {
	List(ctx context.Context) ([]model.College, error)
	Get(ctx context.Context, id uint64) (*model.College, error)
	Create(ctx context.Context, c *model.College) error
	Update(ctx context.Context, id uint64, p repository.CollegePatch) (*model.College, error)
	Delete(ctx context.Context, id uint64) error
}

// CollegeHandler serves /api/colleges.
type CollegeHandler struct {
	Colleges collegeService
}

func NewCollegeHandler(colleges collegeService) *CollegeHandler {
	return &CollegeHandler{Colleges: colleges}
}

type collegeReq struct {
	Name    string  `json:"name" validate:"required,max=255"`
	Code    *string `json:"code" validate:"omitempty,max=32"`
	Address *string `json:"address" validate:"omitempty,max=512"`
}

type updateCollegeReq struct {
	Name    *string `json:"name" validate:"omitempty,min=1,max=255"`
	Code    *string `json:"code" validate:"omitempty,max=32"`
	Address *string `json:"address" validate:"omitempty,max=512"`
}

func (h *CollegeHandler) List(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()
	out, err := h.Colleges.List(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items(out))
}

func (h *CollegeHandler) Get(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	col, err := h.Colleges.Get(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, col)
}

func (h *CollegeHandler) Create(c echo.Context) error {
	var req collegeReq
	if err := bind(c, &req); err != nil {
		return err
	}
	col := &model.College{Name: strings.TrimSpace(req.Name), Code: req.Code, Address: req.Address}
	ctx, cancel := requestCtx(c)
	defer cancel()
	if err := h.Colleges.Create(ctx, col); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, col)
}

func (h *CollegeHandler) Update(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var req updateCollegeReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	col, err := h.Colleges.Update(ctx, id, repository.CollegePatch{Name: req.Name, Code: req.Code, Address: req.Address})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, col)
}

func (h *CollegeHandler) Delete(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	if err := h.Colleges.Delete(ctx, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
