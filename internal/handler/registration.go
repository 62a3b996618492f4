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

type registrationService interface {
	Create(ctx context.Context, actor service.Actor, in service.CreateRegistrationInput) (*model.Registration, error)
	Get(ctx context.Context, actor service.Actor, id uint64) (*model.Registration, error)
	List(ctx context.Context, actor service.Actor, f repository.RegistrationFilter) ([]model.Registration, error)
	Export(ctx context.Context, eventID *uint64) ([]model.Registration, error)
	Cancel(ctx context.Context, actor service.Actor, id uint64) (*model.Registration, error)
}

// RegistrationHandler serves /api/registrations.
type RegistrationHandler struct {
	Registrations registrationService
}

func NewRegistrationHandler(regs registrationService) *RegistrationHandler {
	return &RegistrationHandler{Registrations: regs}
}

type createRegistrationReq struct {
	EventID               uint64  `json:"eventId" validate:"required"`
	Name                  string  `json:"name" validate:"required,max=255"`
	Email                 string  `json:"email" validate:"required,email,max=255"`
	Phone                 *string `json:"phone" validate:"omitempty,max=64"`
	DietaryRestrictions   *string `json:"dietaryRestrictions"`
	SpecialAccommodations *string `json:"specialAccommodations"`
}

// Create handles POST /api/registrations.
func (h *RegistrationHandler) Create(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var req createRegistrationReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	reg, err := h.Registrations.Create(ctx, actor, service.CreateRegistrationInput{
		EventID:               req.EventID,
		Name:                  req.Name,
		Email:                 req.Email,
		Phone:                 req.Phone,
		DietaryRestrictions:   req.DietaryRestrictions,
		SpecialAccommodations: req.SpecialAccommodations,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, reg)
}

// List handles GET /api/registrations?eventId=&status=.  Students only
// receive their own rows.
func (h *RegistrationHandler) List(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	eventID, err := queryUint(c, "eventId")
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	out, err := h.Registrations.List(ctx, actor, repository.RegistrationFilter{
		EventID: eventID,
		Status:  strings.TrimSpace(c.QueryParam("status")),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items(out))
}

func (h *RegistrationHandler) Get(c echo.Context) error {
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
	reg, err := h.Registrations.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, reg)
}

// Cancel handles PATCH /api/registrations/:id/cancel.
func (h *RegistrationHandler) Cancel(c echo.Context) error {
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
	reg, err := h.Registrations.Cancel(ctx, actor, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, reg)
}

var registrationCSVHeader = []string{
	"id", "event_id", "event_title", "name", "email", "phone",
	"dietary_restrictions", "special_accommodations", "status", "created_at",
}

// ExportCSV handles GET /api/registrations/export/csv?eventId=.
func (h *RegistrationHandler) ExportCSV(c echo.Context) error {
	eventID, err := queryUint(c, "eventId")
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	regs, err := h.Registrations.Export(ctx, eventID)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(regs))
	for _, r := range regs {
		rows = append(rows, []string{
			num(&r.ID), num(&r.EventID), str(r.EventTitle), r.Name, r.Email, str(r.Phone),
			str(r.DietaryRestrictions), str(r.SpecialAccommodations), r.Status, stamp(&r.CreatedAt),
		})
	}
	return writeCSV(c, "registrations.csv", registrationCSVHeader, rows)
}
