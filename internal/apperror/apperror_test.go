package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIs_MatchesOnCode(t *testing.T) {
	err := ErrEventFull.WithMessage("event 7 is full")
	assert.True(t, errors.Is(err, ErrEventFull))
	assert.False(t, errors.Is(err, ErrDuplicateRegistration))

	wrapped := fmt.Errorf("create: %w", err)
	assert.True(t, errors.Is(wrapped, ErrEventFull))
}

func TestWithField_DoesNotMutateSentinel(t *testing.T) {
	err := ErrValidation.WithField("email", "required")
	assert.Equal(t, "required", err.Fields["email"])
	assert.Nil(t, ErrValidation.Fields)
}

func TestKindStatus(t *testing.T) {
	cases := map[*Error]int{
		ErrValidation:         http.StatusBadRequest,
		ErrInvalidCredentials: http.StatusUnauthorized,
		ErrForbidden:          http.StatusForbidden,
		ErrVenueNotFound:      http.StatusNotFound,
		ErrAlreadyPaid:        http.StatusBadRequest,
		ErrServer:             http.StatusInternalServerError,
	}
	for e, want := range cases {
		assert.Equal(t, want, e.Kind.Status(), e.Code)
	}
}

func TestInternal_KeepsCause(t *testing.T) {
	cause := errors.New("disk on fire")
	err := Internal(cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindServer, KindOf(err))
	assert.Equal(t, KindServer, KindOf(errors.New("plain")))
}
