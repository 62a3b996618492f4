// Package apperror defines the error taxonomy shared by services and the
// HTTP layer.  Every domain failure is an *Error with a Kind (which picks
// the status code) and a stable Code (which clients switch on).  Sentinel
// values below are compared with errors.Is, which matches on Code, so a
// service may return a copy with a more specific message or field details.
package apperror

import (
	"errors"
	"net/http"
)

// Kind groups errors by how they surface over HTTP.
type Kind int

const (
	KindServer Kind = iota
	KindValidation
	KindAuth
	KindForbidden
	KindNotFound
	KindConflict
)

// Status maps a kind to its HTTP status.  Conflicts are reported as 400.
func (k Kind) Status() int {
	switch k {
	case KindValidation, KindConflict:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified domain error.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Fields  map[string]string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithMessage returns a copy carrying a different human readable message.
func (e *Error) WithMessage(msg string) *Error {
	cp := *e
	cp.Message = msg
	return &cp
}

// WithField returns a copy with one more field-level detail.
func (e *Error) WithField(field, msg string) *Error {
	cp := *e
	cp.Fields = make(map[string]string, len(e.Fields)+1)
	for k, v := range e.Fields {
		cp.Fields[k] = v
	}
	cp.Fields[field] = msg
	return &cp
}

// Wrap attaches an underlying cause without changing the classification.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.cause = cause
	return &cp
}

func newErr(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

// Validation builds a 400 error with field details.
func Validation(msg string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Code: "VALIDATION_ERROR", Message: msg, Fields: fields}
}

// Internal wraps an unexpected persistence or filesystem failure.
func Internal(cause error) *Error {
	return ErrServer.Wrap(cause)
}

// KindOf classifies any error; unknown errors are server errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindServer
}

var (
	ErrServer           = newErr(KindServer, "SERVER_ERROR", "internal server error")
	ErrValidation       = newErr(KindValidation, "VALIDATION_ERROR", "validation failed")
	ErrNoFieldsProvided = newErr(KindValidation, "NO_FIELDS_PROVIDED", "no fields provided for update")
	ErrInvalidStatus    = newErr(KindValidation, "INVALID_STATUS", "invalid status value")

	ErrUnauthorized       = newErr(KindAuth, "UNAUTHORIZED", "authentication required")
	ErrInvalidCredentials = newErr(KindAuth, "INVALID_CREDENTIALS", "invalid email or password")
	ErrInvalidToken       = newErr(KindAuth, "INVALID_TOKEN", "invalid or expired token")

	ErrForbidden    = newErr(KindForbidden, "FORBIDDEN", "insufficient permissions")
	ErrSelfDeletion = newErr(KindForbidden, "SELF_DELETION", "you cannot delete your own account")

	ErrNotFound             = newErr(KindNotFound, "NOT_FOUND", "resource not found")
	ErrUserNotFound         = newErr(KindNotFound, "USER_NOT_FOUND", "user not found")
	ErrEventNotFound        = newErr(KindNotFound, "EVENT_NOT_FOUND", "event not found")
	ErrVenueNotFound        = newErr(KindNotFound, "VENUE_NOT_FOUND", "venue not found")
	ErrCollegeNotFound      = newErr(KindNotFound, "COLLEGE_NOT_FOUND", "college not found")
	ErrRegistrationNotFound = newErr(KindNotFound, "REGISTRATION_NOT_FOUND", "registration not found")
	ErrInvoiceNotFound      = newErr(KindNotFound, "INVOICE_NOT_FOUND", "invoice not found")
	ErrDocumentNotFound     = newErr(KindNotFound, "DOCUMENT_NOT_FOUND", "document not found")
	ErrMigrationNotFound    = newErr(KindNotFound, "MIGRATION_NOT_FOUND", "migration log not found")
	ErrFileMissing          = newErr(KindNotFound, "FILE_MISSING", "stored file no longer exists")

	ErrDuplicateUser         = newErr(KindConflict, "DUPLICATE_USER", "a user with this email already exists")
	ErrDuplicateVenueName    = newErr(KindConflict, "DUPLICATE_VENUE_NAME", "a venue with this name already exists")
	ErrDuplicateCollegeName  = newErr(KindConflict, "DUPLICATE_COLLEGE_NAME", "a college with this name already exists")
	ErrDuplicateRegistration = newErr(KindConflict, "DUPLICATE_REGISTRATION", "this email is already registered for the event")
	ErrEventNotApproved      = newErr(KindConflict, "EVENT_NOT_APPROVED", "event is not open for registration")
	ErrEventFull             = newErr(KindConflict, "EVENT_FULL", "event has reached maximum capacity")
	ErrAlreadyCancelled      = newErr(KindConflict, "ALREADY_CANCELLED", "registration is already cancelled")
	ErrAlreadyPaid           = newErr(KindConflict, "ALREADY_PAID", "invoice has already been paid")
	ErrNotPaid               = newErr(KindConflict, "NOT_PAID", "invoice must be paid before it can be refunded")
	ErrVenueInUse            = newErr(KindConflict, "VENUE_IN_USE", "venue is referenced by existing events")
	ErrCollegeInUse          = newErr(KindConflict, "COLLEGE_IN_USE", "college is referenced by users or events")
	ErrEventInUse            = newErr(KindConflict, "EVENT_IN_USE", "event has registrations, invoices or documents")
	ErrUserInUse             = newErr(KindConflict, "USER_IN_USE", "user still owns events, invoices or uploads")
	ErrRetryNotAllowed       = newErr(KindConflict, "RETRY_NOT_ALLOWED", "only failed migrations can be retried")
)
