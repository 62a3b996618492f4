package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/iliyamo/evms/internal/apperror"
	"github.com/iliyamo/evms/internal/model"
	"github.com/iliyamo/evms/internal/repository"
)

// EventStore is the events persistence.
type EventStore interface {
	Create(ctx context.Context, e *model.Event) error
	GetByID(ctx context.Context, id uint64) (*model.Event, error)
	List(ctx context.Context, f repository.EventFilter) ([]model.Event, int64, error)
	Export(ctx context.Context, f repository.EventFilter) ([]model.Event, error)
	Update(ctx context.Context, id uint64, p model.EventPatch) error
	SetStatus(ctx context.Context, id uint64, status string) (string, error)
	Delete(ctx context.Context, id uint64) error
	Stats(ctx context.Context) (model.EventStats, error)
	Registrations(ctx context.Context, eventID uint64) ([]model.Registration, error)
}

// venueLookup and collegeLookup confirm that referenced ids exist.
type venueLookup interface {
	GetByID(ctx context.Context, id uint64) (*model.Venue, error)
}

type collegeLookup interface {
	GetByID(ctx context.Context, id uint64) (*model.College, error)
}

// CreateEventInput is the payload of a new event request.
type CreateEventInput struct {
	Title       string
	CollegeID   *uint64
	VenueID     *uint64
	Date        string
	StartTime   *string
	EndTime     *string
	Description *string
	MaxCapacity *int
}

// EventPage is one page of an event listing.
type EventPage struct {
	Items    []model.Event `json:"items"`
	Total    int64         `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"pageSize"`
}

// EventService owns the event lifecycle: creation as Pending, partial
// updates with ownership checks, and admin or manager status changes.
type EventService struct {
	events   EventStore
	venues   venueLookup
	colleges collegeLookup
	log      zerolog.Logger
}

func NewEventService(events EventStore, venues venueLookup, colleges collegeLookup, log zerolog.Logger) *EventService {
	return &EventService{events: events, venues: venues, colleges: colleges, log: log}
}

// Create stores a new request owned by the caller.  Status is always
// Pending regardless of the caller's role.
func (s *EventService) Create(ctx context.Context, actor Actor, in CreateEventInput) (*model.Event, error) {
	e := &model.Event{
		Title:       strings.TrimSpace(in.Title),
		CollegeID:   in.CollegeID,
		VenueID:     in.VenueID,
		Date:        in.Date,
		StartTime:   trimmed(in.StartTime),
		EndTime:     trimmed(in.EndTime),
		Description: in.Description,
		MaxCapacity: in.MaxCapacity,
		Status:      model.EventPending,
		RequesterID: actor.UserID,
	}
	if e.Title == "" {
		return nil, invalid("title", "is required")
	}
	if err := s.check(ctx, e.Date, e.StartTime, e.EndTime, e.MaxCapacity, e.VenueID, e.CollegeID); err != nil {
		return nil, err
	}
	if err := s.events.Create(ctx, e); err != nil {
		return nil, eventWriteErr(err)
	}
	s.log.Info().Uint64("event_id", e.ID).Uint64("requester_id", actor.UserID).Msg("event requested")
	return e, nil
}

// Get returns one event.
func (s *EventService) Get(ctx context.Context, id uint64) (*model.Event, error) {
	e, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, apperror.ErrEventNotFound)
	}
	return e, nil
}

// List returns one page of events matching f.
func (s *EventService) List(ctx context.Context, f repository.EventFilter) (*EventPage, error) {
	if err := checkFilter(f); err != nil {
		return nil, err
	}
	items, total, err := s.events.List(ctx, f)
	if err != nil {
		return nil, internal(err)
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	size := f.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	return &EventPage{Items: items, Total: total, Page: page, PageSize: size}, nil
}

// Export returns every event matching f for the CSV export.
func (s *EventService) Export(ctx context.Context, f repository.EventFilter) ([]model.Event, error) {
	if err := checkFilter(f); err != nil {
		return nil, err
	}
	out, err := s.events.Export(ctx, f)
	return out, internal(err)
}

// Update writes the supplied fields.  A student may update only events
// they requested; staff may update any.  Status is never changed here.
func (s *EventService) Update(ctx context.Context, actor Actor, id uint64, p model.EventPatch) (*model.Event, error) {
	if p.Empty() {
		return nil, apperror.ErrNoFieldsProvided
	}
	cur, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, apperror.ErrEventNotFound)
	}
	if !actor.IsStaff() && cur.RequesterID != actor.UserID {
		return nil, apperror.ErrForbidden.WithMessage("you can only update events you requested")
	}
	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		if t == "" {
			return nil, invalid("title", "must not be empty")
		}
		p.Title = &t
	}

	// validate the merged result so a lone endTime is still checked
	// against the stored startTime
	date, start, end := cur.Date, cur.StartTime, cur.EndTime
	if p.Date != nil {
		date = *p.Date
	}
	if p.StartTime != nil {
		start = p.StartTime
	}
	if p.EndTime != nil {
		end = p.EndTime
	}
	if err := s.check(ctx, date, start, end, p.MaxCapacity, p.VenueID, p.CollegeID); err != nil {
		return nil, err
	}
	if err := s.events.Update(ctx, id, p); err != nil {
		return nil, eventWriteErr(err)
	}
	return s.Get(ctx, id)
}

// SetStatus lets an admin move an event to any of the four states,
// including back from Approved.  Every change is logged with the actor.
func (s *EventService) SetStatus(ctx context.Context, actor Actor, id uint64, status string) (*model.Event, error) {
	if !model.ValidEventStatus(status) {
		return nil, apperror.ErrInvalidStatus.WithField("status", "must be one of: Pending, Approved, Rejected, Tentative")
	}
	return s.transition(ctx, actor, id, status)
}

// Hold forces Tentative from any state.
func (s *EventService) Hold(ctx context.Context, actor Actor, id uint64) (*model.Event, error) {
	return s.transition(ctx, actor, id, model.EventTentative)
}

func (s *EventService) transition(ctx context.Context, actor Actor, id uint64, status string) (*model.Event, error) {
	prev, err := s.events.SetStatus(ctx, id, status)
	if err != nil {
		return nil, notFound(err, apperror.ErrEventNotFound)
	}
	ev := s.log.Info()
	if prev == model.EventApproved && status != model.EventApproved {
		ev = s.log.Warn()
	}
	ev.Uint64("event_id", id).
		Uint64("actor_id", actor.UserID).
		Str("actor_role", actor.Role).
		Str("from", prev).
		Str("to", status).
		Msg("event status changed")
	return s.Get(ctx, id)
}

// Delete removes an event with no registrations, invoices or documents.
func (s *EventService) Delete(ctx context.Context, id uint64) error {
	err := s.events.Delete(ctx, id)
	if errors.Is(err, repository.ErrConflict) {
		return apperror.ErrEventInUse
	}
	if err != nil {
		return notFound(err, apperror.ErrEventNotFound)
	}
	return nil
}

// Registrations lists every registration of an event.
func (s *EventService) Registrations(ctx context.Context, id uint64) ([]model.Registration, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	out, err := s.events.Registrations(ctx, id)
	return out, internal(err)
}

// Stats counts events per status.
func (s *EventService) Stats(ctx context.Context) (model.EventStats, error) {
	st, err := s.events.Stats(ctx)
	return st, internal(err)
}

func (s *EventService) check(ctx context.Context, date string, start, end *string, capacity *int, venueID, collegeID *uint64) error {
	if err := checkDate("date", date); err != nil {
		return err
	}
	if err := checkTimes(start, end); err != nil {
		return err
	}
	if capacity != nil && *capacity <= 0 {
		return invalid("maxCapacity", "must be greater than 0")
	}
	if venueID != nil {
		if _, err := s.venues.GetByID(ctx, *venueID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperror.ErrVenueNotFound.WithField("venueId", "does not exist")
			}
			return internal(err)
		}
	}
	if collegeID != nil {
		if _, err := s.colleges.GetByID(ctx, *collegeID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperror.ErrCollegeNotFound.WithField("collegeId", "does not exist")
			}
			return internal(err)
		}
	}
	return nil
}

func checkFilter(f repository.EventFilter) error {
	if f.Status != "" && !model.ValidEventStatus(f.Status) {
		return apperror.ErrInvalidStatus.WithField("status", "must be one of: Pending, Approved, Rejected, Tentative")
	}
	if f.StartDate != "" {
		if err := checkDate("startDate", f.StartDate); err != nil {
			return err
		}
	}
	if f.EndDate != "" {
		if err := checkDate("endDate", f.EndDate); err != nil {
			return err
		}
	}
	return nil
}

func eventWriteErr(err error) error {
	if errors.Is(err, repository.ErrConflict) {
		return apperror.Validation("validation failed", map[string]string{"venueId": "venue or college does not exist"})
	}
	return notFound(err, apperror.ErrEventNotFound)
}
