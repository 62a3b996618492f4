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

type eventService interface {
	Create(ctx context.Context, actor service.Actor, in service.CreateEventInput) (*model.Event, error)
	Get(ctx context.Context, id uint64) (*model.Event, error)
	List(ctx context.Context, f repository.EventFilter) (*service.EventPage, error)
	Export(ctx context.Context, f repository.EventFilter) ([]model.Event, error)
	Update(ctx context.Context, actor service.Actor, id uint64, p model.EventPatch) (*model.Event, error)
	SetStatus(ctx context.Context, actor service.Actor, id uint64, status string) (*model.Event, error)
	Hold(ctx context.Context, actor service.Actor, id uint64) (*model.Event, error)
	Delete(ctx context.Context, id uint64) error
	Registrations(ctx context.Context, id uint64) ([]model.Registration, error)
	Stats(ctx context.Context) (model.EventStats, error)
}

// EventHandler serves /api/events.
type EventHandler struct {
	Events eventService
}

func NewEventHandler(events eventService) *EventHandler { return &EventHandler{Events: events} }

type createEventReq struct {
	Title       string  `json:"title" validate:"required,max=255"`
	CollegeID   *uint64 `json:"collegeId"`
	VenueID     *uint64 `json:"venueId"`
	Date        string  `json:"date" validate:"required,date"`
	StartTime   *string `json:"startTime" validate:"omitempty,clock"`
	EndTime     *string `json:"endTime" validate:"omitempty,clock"`
	Description *string `json:"description"`
	MaxCapacity *int    `json:"maxCapacity" validate:"omitempty,gt=0"`
}

type updateEventReq struct {
	Title       *string `json:"title" validate:"omitempty,max=255"`
	CollegeID   *uint64 `json:"collegeId"`
	VenueID     *uint64 `json:"venueId"`
	Date        *string `json:"date" validate:"omitempty,date"`
	StartTime   *string `json:"startTime" validate:"omitempty,clock"`
	EndTime     *string `json:"endTime" validate:"omitempty,clock"`
	Description *string `json:"description"`
	MaxCapacity *int    `json:"maxCapacity" validate:"omitempty,gt=0"`
}

type statusReq struct {
	Status string `json:"status" validate:"required"`
}

// filter reads the list query.  mine=true restricts to the caller's own
// requests.
func (h *EventHandler) filter(c echo.Context, actor service.Actor) (repository.EventFilter, error) {
	f := repository.EventFilter{
		Status:    strings.TrimSpace(c.QueryParam("status")),
		StartDate: strings.TrimSpace(c.QueryParam("startDate")),
		EndDate:   strings.TrimSpace(c.QueryParam("endDate")),
		Search:    c.QueryParam("search"),
	}
	var err error
	if f.VenueID, err = queryUint(c, "venueId"); err != nil {
		return f, err
	}
	if f.CollegeID, err = queryUint(c, "collegeId"); err != nil {
		return f, err
	}
	if f.RequesterID, err = queryUint(c, "requesterId"); err != nil {
		return f, err
	}
	if queryBool(c, "mine") {
		f.RequesterID = &actor.UserID
	}
	if f.Page, err = queryInt(c, "page"); err != nil {
		return f, err
	}
	if f.PageSize, err = queryInt(c, "pageSize"); err != nil {
		return f, err
	}
	return f, nil
}

// List handles GET /api/events.
func (h *EventHandler) List(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	f, err := h.filter(c, actor)
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	page, err := h.Events.List(ctx, f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

// Get handles GET /api/events/:id.
func (h *EventHandler) Get(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	ev, err := h.Events.Get(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ev)
}

// Create handles POST /api/events.  New events always start Pending.
func (h *EventHandler) Create(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var req createEventReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	ev, err := h.Events.Create(ctx, actor, service.CreateEventInput{
		Title:       req.Title,
		CollegeID:   req.CollegeID,
		VenueID:     req.VenueID,
		Date:        req.Date,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Description: req.Description,
		MaxCapacity: req.MaxCapacity,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, ev)
}

// Update handles PUT /api/events/:id with partial update semantics.
func (h *EventHandler) Update(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var req updateEventReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	ev, err := h.Events.Update(ctx, actor, id, model.EventPatch{
		Title:       req.Title,
		CollegeID:   req.CollegeID,
		VenueID:     req.VenueID,
		Date:        req.Date,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Description: req.Description,
		MaxCapacity: req.MaxCapacity,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ev)
}

// SetStatus handles PATCH /api/events/:id/status.
func (h *EventHandler) SetStatus(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var req statusReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	ev, err := h.Events.SetStatus(ctx, actor, id, strings.TrimSpace(req.Status))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ev)
}

// Hold handles PATCH /api/events/:id/hold.
func (h *EventHandler) Hold(c echo.Context) error {
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
	ev, err := h.Events.Hold(ctx, actor, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ev)
}

// Delete handles DELETE /api/events/:id.
func (h *EventHandler) Delete(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	if err := h.Events.Delete(ctx, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Registrations handles GET /api/events/:id/registrations.
func (h *EventHandler) Registrations(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	regs, err := h.Events.Registrations(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items(regs))
}

// Stats handles GET /api/events/stats.
func (h *EventHandler) Stats(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()
	st, err := h.Events.Stats(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

var eventCSVHeader = []string{"id", "title", "date", "start_time", "end_time", "venue", "college", "max_capacity", "status", "requester_id"}

// ExportCSV handles GET /api/events/export/csv with the list filters.
func (h *EventHandler) ExportCSV(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	f, err := h.filter(c, actor)
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	events, err := h.Events.Export(ctx, f)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(events))
	for _, e := range events {
		rows = append(rows, []string{
			num(&e.ID), e.Title, e.Date, str(e.StartTime), str(e.EndTime),
			str(e.VenueName), str(e.CollegeName), num(e.MaxCapacity), e.Status, num(&e.RequesterID),
		})
	}
	return writeCSV(c, "events.csv", eventCSVHeader, rows)
}
