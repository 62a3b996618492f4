package service

import (
	"context"
	"errors"

	"github.com/iliyamo/evms/internal/apperror"
	"github.com/iliyamo/evms/internal/model"
	"github.com/iliyamo/evms/internal/repository"
)

// VenueStore is the venues persistence.
type VenueStore interface {
	Create(ctx context.Context, v *model.Venue) error
	GetByID(ctx context.Context, id uint64) (*model.Venue, error)
	List(ctx context.Context, f repository.VenueFilter) ([]model.Venue, error)
	Update(ctx context.Context, id uint64, p repository.VenuePatch) error
	Delete(ctx context.Context, id uint64) error
}

type VenueService struct {
	venues VenueStore
}

func NewVenueService(venues VenueStore) *VenueService { return &VenueService{venues: venues} }

func (s *VenueService) List(ctx context.Context, f repository.VenueFilter) ([]model.Venue, error) {
	out, err := s.venues.List(ctx, f)
	return out, internal(err)
}

func (s *VenueService) Get(ctx context.Context, id uint64) (*model.Venue, error) {
	v, err := s.venues.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, apperror.ErrVenueNotFound)
	}
	return v, nil
}

// Create stores a new venue.  Names are unique ignoring case.
func (s *VenueService) Create(ctx context.Context, v *model.Venue) error {
	if v.Capacity != nil && *v.Capacity < 0 {
		return invalid("capacity", "must be zero or more")
	}
	if v.HourlyRate != nil && *v.HourlyRate < 0 {
		return invalid("hourlyRate", "must be zero or more")
	}
	if v.Amenities == nil {
		v.Amenities = []string{}
	}
	return venueErr(s.venues.Create(ctx, v))
}

func (s *VenueService) Update(ctx context.Context, id uint64, p repository.VenuePatch) (*model.Venue, error) {
	if p == (repository.VenuePatch{}) {
		return nil, apperror.ErrNoFieldsProvided
	}
	if p.Capacity != nil && *p.Capacity < 0 {
		return nil, invalid("capacity", "must be zero or more")
	}
	if p.HourlyRate != nil && *p.HourlyRate < 0 {
		return nil, invalid("hourlyRate", "must be zero or more")
	}
	if err := s.venues.Update(ctx, id, p); err != nil {
		return nil, venueErr(err)
	}
	return s.Get(ctx, id)
}

// Delete fails with ErrVenueInUse while any event references the venue.
func (s *VenueService) Delete(ctx context.Context, id uint64) error {
	return venueErr(s.venues.Delete(ctx, id))
}

func venueErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrDuplicateName):
		return apperror.ErrDuplicateVenueName
	case errors.Is(err, repository.ErrConflict):
		return apperror.ErrVenueInUse
	}
	return notFound(err, apperror.ErrVenueNotFound)
}
