package service

import (
	"context"
	"errors"

	"github.com/iliyamo/evms/internal/apperror"
	"github.com/iliyamo/evms/internal/model"
	"github.com/iliyamo/evms/internal/repository"
)

// CollegeStore is the colleges persistence.
type CollegeStore interface {
	Create(ctx context.Context, c *model.College) error
	GetByID(ctx context.Context, id uint64) (*model.College, error)
	List(ctx context.Context) ([]model.College, error)
	Update(ctx context.Context, id uint64, p repository.CollegePatch) error
	Delete(ctx context.Context, id uint64) error
}

type CollegeService struct {
	colleges CollegeStore
}

func NewCollegeService(colleges CollegeStore) *CollegeService {
	return &CollegeService{colleges: colleges}
}

func (s *CollegeService) List(ctx context.Context) ([]model.College, error) {
	out, err := s.colleges.List(ctx)
	return out, internal(err)
}

func (s *CollegeService) Get(ctx context.Context, id uint64) (*model.College, error) {
	c, err := s.colleges.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, apperror.ErrCollegeNotFound)
	}
	return c, nil
}

func (s *CollegeService) Create(ctx context.Context, c *model.College) error {
	c.Code, c.Address = trimmed(c.Code), trimmed(c.Address)
	return collegeErr(s.colleges.Create(ctx, c))
}

func (s *CollegeService) Update(ctx context.Context, id uint64, p repository.CollegePatch) (*model.College, error) {
	if p.Name == nil && p.Code == nil && p.Address == nil {
		return nil, apperror.ErrNoFieldsProvided
	}
	if err := s.colleges.Update(ctx, id, p); err != nil {
		return nil, collegeErr(err)
	}
	return s.Get(ctx, id)
}

// Delete fails with ErrCollegeInUse while users or events reference it.
func (s *CollegeService) Delete(ctx context.Context, id uint64) error {
	return collegeErr(s.colleges.Delete(ctx, id))
}

func collegeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrDuplicateName):
		return apperror.ErrDuplicateCollegeName
	case errors.Is(err, repository.ErrConflict):
		return apperror.ErrCollegeInUse
	}
	return notFound(err, apperror.ErrCollegeNotFound)
}
