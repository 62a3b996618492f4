// Package service implements the business rules of the EVMS API.  Services
// depend on small store interfaces satisfied by the repository package and
// return *apperror.Error values for every domain failure.
package service

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/iliyamo/evms/internal/apperror"
	"github.com/iliyamo/evms/internal/model"
	"github.com/iliyamo/evms/internal/repository"
)

// Actor is the authenticated caller a service acts for.
type Actor struct {
	UserID uint64
	Role   string
}

func (a Actor) IsAdmin() bool { return a.Role == model.RoleAdmin }

// IsStaff reports admin or eventManager.
func (a Actor) IsStaff() bool { return model.IsStaff(a.Role) }

// internal passes domain errors through and classifies anything else as a
// server error.
func internal(err error) error {
	if err == nil {
		return nil
	}
	var ae *apperror.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperror.Internal(err)
}

// notFound maps repository.ErrNotFound to nf and classifies the rest.
func notFound(err error, nf *apperror.Error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return nf
	}
	return internal(err)
}

func invalid(field, msg string) *apperror.Error {
	return apperror.Validation("validation failed", map[string]string{field: msg})
}

var clockRe = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// checkDate validates a YYYY-MM-DD string.
func checkDate(field, v string) error {
	if _, err := time.Parse(time.DateOnly, v); err != nil {
		return invalid(field, "must be a date in YYYY-MM-DD format")
	}
	return nil
}

// checkTimes validates optional HH:MM times and that end follows start.
func checkTimes(start, end *string) error {
	if start != nil && !clockRe.MatchString(*start) {
		return invalid("startTime", "must be a time in HH:MM format")
	}
	if end != nil && !clockRe.MatchString(*end) {
		return invalid("endTime", "must be a time in HH:MM format")
	}
	// zero padded HH:MM compares correctly as a string
	if start != nil && end != nil && *end <= *start {
		return invalid("endTime", "must be after startTime")
	}
	return nil
}

// trimmed returns nil for nil or blank input.
func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func ptr[T any](v T) *T { return &v }

// Clock is swapped in tests.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}
