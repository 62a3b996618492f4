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

// RegistrationStore is the registrations persistence.  Capacity and
// duplicate checks run inside WithinTx.
type RegistrationStore interface {
	WithinTx(ctx context.Context, fn func(repository.RegistrationTx) error) error
	GetByID(ctx context.Context, id uint64) (*model.Registration, error)
	List(ctx context.Context, f repository.RegistrationFilter) ([]model.Registration, error)
}

// CreateRegistrationInput is the payload of a registration submission.
type CreateRegistrationInput struct {
	EventID               uint64
	Name                  string
	Email                 string
	Phone                 *string
	DietaryRestrictions   *string
	SpecialAccommodations *string
}

// RegistrationService enforces event capacity and one active registration
// per email and event.
type RegistrationService struct {
	store RegistrationStore
	log   zerolog.Logger
}

func NewRegistrationService(store RegistrationStore, log zerolog.Logger) *RegistrationService {
	return &RegistrationService{store: store, log: log}
}

// Create registers an attendee.  Inside one transaction, with the event
// row locked, it checks in order: event exists, event is Approved, no
// active registration for the same email, active count below capacity.
func (s *RegistrationService) Create(ctx context.Context, actor Actor, in CreateRegistrationInput) (*model.Registration, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("name", "is required")
	}
	if email == "" {
		return nil, invalid("email", "is required")
	}

	reg := &model.Registration{
		EventID:               in.EventID,
		Name:                  name,
		Email:                 email,
		Phone:                 trimmed(in.Phone),
		DietaryRestrictions:   trimmed(in.DietaryRestrictions),
		SpecialAccommodations: trimmed(in.SpecialAccommodations),
		Status:                model.RegistrationConfirmed,
	}
	if actor.UserID != 0 {
		reg.UserID = ptr(actor.UserID)
	}

	err := s.store.WithinTx(ctx, func(tx repository.RegistrationTx) error {
		ev, err := tx.LockEvent(ctx, in.EventID)
		if err != nil {
			return notFound(err, apperror.ErrEventNotFound)
		}
		if ev.Status != model.EventApproved {
			return apperror.ErrEventNotApproved
		}
		dup, err := tx.HasActive(ctx, in.EventID, email)
		if err != nil {
			return internal(err)
		}
		if dup {
			return apperror.ErrDuplicateRegistration
		}
		if ev.MaxCapacity != nil {
			n, err := tx.CountActive(ctx, in.EventID)
			if err != nil {
				return internal(err)
			}
			if n >= *ev.MaxCapacity {
				return apperror.ErrEventFull
			}
		}
		if err := tx.Insert(ctx, reg); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperror.ErrDuplicateRegistration
			}
			return internal(err)
		}
		return nil
	})
	if err != nil {
		return nil, internal(err)
	}
	s.log.Info().Uint64("registration_id", reg.ID).Uint64("event_id", reg.EventID).Msg("registration confirmed")
	return reg, nil
}

// Get returns a registration to staff or to the user who submitted it.
func (s *RegistrationService) Get(ctx context.Context, actor Actor, id uint64) (*model.Registration, error) {
	reg, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, apperror.ErrRegistrationNotFound)
	}
	if !actor.IsStaff() && !ownedBy(reg, actor) {
		return nil, apperror.ErrForbidden
	}
	return reg, nil
}

// List returns registrations.  Students only ever see their own.
func (s *RegistrationService) List(ctx context.Context, actor Actor, f repository.RegistrationFilter) ([]model.Registration, error) {
	if f.Status != "" && !validRegistrationStatus(f.Status) {
		return nil, apperror.ErrInvalidStatus.WithField("status", "must be one of: confirmed, cancelled, waitlist")
	}
	if !actor.IsStaff() {
		f.UserID = ptr(actor.UserID)
	}
	out, err := s.store.List(ctx, f)
	return out, internal(err)
}

// Export lists registrations for the CSV export, optionally for one event.
func (s *RegistrationService) Export(ctx context.Context, eventID *uint64) ([]model.Registration, error) {
	out, err := s.store.List(ctx, repository.RegistrationFilter{EventID: eventID})
	return out, internal(err)
}

// Cancel soft-deletes a registration.  The owner or staff may cancel; the
// row stays but no longer counts toward capacity.
func (s *RegistrationService) Cancel(ctx context.Context, actor Actor, id uint64) (*model.Registration, error) {
	err := s.store.WithinTx(ctx, func(tx repository.RegistrationTx) error {
		reg, err := tx.LockRegistration(ctx, id)
		if err != nil {
			return notFound(err, apperror.ErrRegistrationNotFound)
		}
		if !actor.IsStaff() && !ownedBy(reg, actor) {
			return apperror.ErrForbidden
		}
		if reg.Status == model.RegistrationCancelled {
			return apperror.ErrAlreadyCancelled
		}
		return notFound(tx.SetStatus(ctx, id, model.RegistrationCancelled), apperror.ErrRegistrationNotFound)
	})
	if err != nil {
		return nil, internal(err)
	}
	s.log.Info().Uint64("registration_id", id).Uint64("actor_id", actor.UserID).Msg("registration cancelled")
	reg, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, apperror.ErrRegistrationNotFound)
	}
	return reg, nil
}

func ownedBy(reg *model.Registration, actor Actor) bool {
	return reg.UserID != nil && *reg.UserID == actor.UserID
}

func validRegistrationStatus(s string) bool {
	switch s {
	case model.RegistrationConfirmed, model.RegistrationCancelled, model.RegistrationWaitlist:
		return true
	}
	return false
}
