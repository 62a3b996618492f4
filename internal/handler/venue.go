package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/evms/internal/model"
	"github.com/iliyamo/evms/internal/repository"
)

type venueService interface {
	List(ctx context.Context, f repository.VenueFilter) ([]model.Venue, error)
	Get(ctx context.Context, id uint64) (*model.Venue, error)
	Create(ctx context.Context, v *model.Venue) error
	Update(ctx context.Context, id uint64, p repository.VenuePatch) (*model.Venue, error)
	Delete(ctx context.Context, id uint64) error
}

// VenueHandler serves /api/venues.
type VenueHandler struct {
	Venues venueService
}

func NewVenueHandler(venues venueService) *VenueHandler { return &VenueHandler{Venues: venues} }

type createVenueReq struct {
	Name        string   `json:"name" validate:"required,max=255"`
	Capacity    *int     `json:"capacity" validate:"omitempty,gte=0"`
	Description *string  `json:"description"`
	Location    *string  `json:"location" validate:"omitempty,max=512"`
	Amenities   []string `json:"amenities" validate:"omitempty,dive,required,max=100"`
	HourlyRate  *float64 `json:"hourlyRate" validate:"omitempty,gte=0"`
	IsActive    *bool    `json:"isActive"`
}

type updateVenueReq struct {
	Name        *string   `json:"name" validate:"omitempty,min=1,max=255"`
	Capacity    *int      `json:"capacity" validate:"omitempty,gte=0"`
	Description *string   `json:"description"`
	Location    *string   `json:"location" validate:"omitempty,max=512"`
	Amenities   *[]string `json:"amenities" validate:"omitempty,dive,required,max=100"`
	HourlyRate  *float64  `json:"hourlyRate" validate:"omitempty,gte=0"`
	IsActive    *bool     `json:"isActive"`
}

// List handles GET /api/venues?active=true&search=.
func (h *VenueHandler) List(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()
	out, err := h.Venues.List(ctx, repository.VenueFilter{
		ActiveOnly: queryBool(c, "active"),
		Search:     c.QueryParam("search"),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items(out))
}

// Get handles GET /api/venues/:id.
func (h *VenueHandler) Get(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	v, err := h.Venues.Get(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

// Create handles POST /api/venues.
func (h *VenueHandler) Create(c echo.Context) error {
	var req createVenueReq
	if err := bind(c, &req); err != nil {
		return err
	}
	v := &model.Venue{
		Name:        strings.TrimSpace(req.Name),
		Capacity:    req.Capacity,
		Description: req.Description,
		Location:    req.Location,
		Amenities:   req.Amenities,
		HourlyRate:  req.HourlyRate,
		IsActive:    req.IsActive == nil || *req.IsActive,
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	if err := h.Venues.Create(ctx, v); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, v)
}

// Update handles PUT /api/venues/:id.
func (h *VenueHandler) Update(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var req updateVenueReq
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.Name != nil {
		n := strings.TrimSpace(*req.Name)
		req.Name = &n
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	v, err := h.Venues.Update(ctx, id, repository.VenuePatch{
		Name:        req.Name,
		Capacity:    req.Capacity,
		Description: req.Description,
		Location:    req.Location,
		Amenities:   req.Amenities,
		HourlyRate:  req.HourlyRate,
		IsActive:    req.IsActive,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

// Delete handles DELETE /api/venues/:id.
func (h *VenueHandler) Delete(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	if err := h.Venues.Delete(ctx, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
