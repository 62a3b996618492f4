package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/evms/internal/apperror"
	"github.com/iliyamo/evms/internal/logger"
	"github.com/iliyamo/evms/internal/middleware"
	"github.com/iliyamo/evms/internal/model"
	"github.com/iliyamo/evms/internal/repository"
	"github.com/iliyamo/evms/internal/service"
	"github.com/iliyamo/evms/internal/validation"
)

// --- mocks ---
//
// Each mock embeds its interface so tests only stub what they call.

type mockEvents struct {
	eventService
	createFn func(ctx context.Context, actor service.Actor, in service.CreateEventInput) (*model.Event, error)
	exportFn func(ctx context.Context, f repository.EventFilter) ([]model.Event, error)
}

func (m *mockEvents) Create(ctx context.Context, actor service.Actor, in service.CreateEventInput) (*model.Event, error) {
	return m.createFn(ctx, actor, in)
}
func (m *mockEvents) Export(ctx context.Context, f repository.EventFilter) ([]model.Event, error) {
	return m.exportFn(ctx, f)
}

type mockRegistrations struct {
	registrationService
	createFn func(ctx context.Context, actor service.Actor, in service.CreateRegistrationInput) (*model.Registration, error)
}

func (m *mockRegistrations) Create(ctx context.Context, actor service.Actor, in service.CreateRegistrationInput) (*model.Registration, error) {
	return m.createFn(ctx, actor, in)
}

type mockAuth struct {
	authService
	loginFn func(ctx context.Context, email, password string) (*service.AuthResult, error)
}

func (m *mockAuth) Login(ctx context.Context, email, password string) (*service.AuthResult, error) {
	return m.loginFn(ctx, email, password)
}

type mockDocuments struct {
	documentService
	openFn func(ctx context.Context, id uint64) (*model.Document, *os.File, error)
}

func (m *mockDocuments) Open(ctx context.Context, id uint64) (*model.Document, *os.File, error) {
	return m.openFn(ctx, id)
}

// --- helpers ---

var manager = &middleware.Identity{UserID: 7, Role: model.RoleEventManager, Email: "mgr@college.edu"}

type call struct {
	method string
	target string
	route  string // echo path pattern; defaults to the target path
	body   string
	who    *middleware.Identity
}

// serve routes one request to h through echo with the production error
// handler and validator.
func serve(t *testing.T, h echo.HandlerFunc, in call) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.HTTPErrorHandler = middleware.HTTPErrorHandler(logger.Nop())
	e.Validator = validation.New()

	route := in.route
	if route == "" {
		route, _, _ = strings.Cut(in.target, "?")
	}
	e.Add(in.method, route, h, func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if in.who != nil {
				middleware.SetIdentity(c, *in.who)
			}
			return next(c)
		}
	})

	req := httptest.NewRequest(in.method, in.target, strings.NewReader(in.body))
	if in.body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) middleware.ErrorBody {
	t.Helper()
	var body middleware.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// --- events ---

func TestEventCreate_Created(t *testing.T) {
	var got service.CreateEventInput
	var gotActor service.Actor
	h := NewEventHandler(&mockEvents{createFn: func(_ context.Context, a service.Actor, in service.CreateEventInput) (*model.Event, error) {
		got, gotActor = in, a
		return &model.Event{ID: 3, Title: in.Title, Date: in.Date, Status: model.EventPending, RequesterID: a.UserID}, nil
	}})

	rec := serve(t, h.Create, call{
		method: http.MethodPost,
		target: "/api/events",
		body:   `{"title":"Spring Fair","date":"2026-04-02","startTime":"10:00","endTime":"14:00","maxCapacity":120}`,
		who:    manager,
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Spring Fair", got.Title)
	require.NotNil(t, got.MaxCapacity)
	assert.Equal(t, 120, *got.MaxCapacity)
	assert.Equal(t, uint64(7), gotActor.UserID)
	assert.Equal(t, model.RoleEventManager, gotActor.Role)

	var ev model.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ev))
	assert.Equal(t, model.EventPending, ev.Status)
	assert.Equal(t, uint64(7), ev.RequesterID)
}

func TestEventCreate_ValidationFields(t *testing.T) {
	h := NewEventHandler(&mockEvents{createFn: func(context.Context, service.Actor, service.CreateEventInput) (*model.Event, error) {
		t.Fatal("service must not be called")
		return nil, nil
	}})

	rec := serve(t, h.Create, call{
		method: http.MethodPost,
		target: "/api/events",
		body:   `{"title":"","date":"14/03/2026","startTime":"9am","maxCapacity":0}`,
		who:    manager,
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, apperror.ErrValidation.Code, body.Error)
	assert.Contains(t, body.Fields, "title")
	assert.Contains(t, body.Fields, "date")
	assert.Contains(t, body.Fields, "startTime")
}

func TestEventCreate_MalformedBody(t *testing.T) {
	h := NewEventHandler(&mockEvents{})
	rec := serve(t, h.Create, call{method: http.MethodPost, target: "/api/events", body: `{"title":`, who: manager})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperror.ErrValidation.Code, decodeError(t, rec).Error)
}

func TestEventCreate_Unauthenticated(t *testing.T) {
	h := NewEventHandler(&mockEvents{})
	rec := serve(t, h.Create, call{method: http.MethodPost, target: "/api/events", body: `{}`})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, apperror.ErrUnauthorized.Code, decodeError(t, rec).Error)
}

func TestEventExportCSV(t *testing.T) {
	var gotFilter repository.EventFilter
	venue := "Main Hall"
	h := NewEventHandler(&mockEvents{exportFn: func(_ context.Context, f repository.EventFilter) ([]model.Event, error) {
		gotFilter = f
		start := "10:00"
		capacity := 50
		return []model.Event{{
			ID: 1, Title: "Orientation, Day 1", Date: "2026-04-02", StartTime: &start,
			VenueName: &venue, MaxCapacity: &capacity, Status: model.EventApproved, RequesterID: 20,
		}}, nil
	}})

	rec := serve(t, h.ExportCSV, call{method: http.MethodGet, target: "/api/events/export/csv?status=Approved&venueId=4", who: manager})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Approved", gotFilter.Status)
	require.NotNil(t, gotFilter.VenueID)
	assert.Equal(t, uint64(4), *gotFilter.VenueID)
	assert.True(t, strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), "text/csv"))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "events.csv")

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "id,title,date,start_time,end_time,venue,college,max_capacity,status,requester_id", lines[0])
	assert.Equal(t, `1,"Orientation, Day 1",2026-04-02,10:00,,Main Hall,,50,Approved,20`, lines[1])
}

func TestEventExportCSV_BadQuery(t *testing.T) {
	h := NewEventHandler(&mockEvents{})
	rec := serve(t, h.ExportCSV, call{method: http.MethodGet, target: "/api/events/export/csv?venueId=abc", who: manager})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Fields, "venueId")
}

// --- registrations ---

func TestRegistrationCreate_EventFull(t *testing.T) {
	h := NewRegistrationHandler(&mockRegistrations{createFn: func(context.Context, service.Actor, service.CreateRegistrationInput) (*model.Registration, error) {
		return nil, apperror.ErrEventFull
	}})

	rec := serve(t, h.Create, call{
		method: http.MethodPost,
		target: "/api/registrations",
		body:   `{"eventId":5,"name":"Alice","email":"alice@college.edu"}`,
		who:    manager,
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "EVENT_FULL", body.Error)
	assert.Equal(t, apperror.ErrEventFull.Message, body.Message)
}

func TestRegistrationCreate_Validation(t *testing.T) {
	h := NewRegistrationHandler(&mockRegistrations{})
	rec := serve(t, h.Create, call{
		method: http.MethodPost,
		target: "/api/registrations",
		body:   `{"name":"Alice","email":"not-an-email"}`,
		who:    manager,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	assert.Contains(t, body.Fields, "eventId")
	assert.Contains(t, body.Fields, "email")
}

// --- auth ---

func TestLogin(t *testing.T) {
	h := NewAuthHandler(&mockAuth{loginFn: func(_ context.Context, email, password string) (*service.AuthResult, error) {
		if email != "admin@college.edu" || password != "s3cret-pass" {
			return nil, apperror.ErrInvalidCredentials
		}
		return &service.AuthResult{Token: "access", RefreshToken: "refresh", User: &model.User{ID: 1, Email: email, Role: model.RoleAdmin}}, nil
	}})

	rec := serve(t, h.Login, call{method: http.MethodPost, target: "/api/auth/login", body: `{"email":"admin@college.edu","password":"s3cret-pass"}`})
	require.Equal(t, http.StatusOK, rec.Code)
	var res service.AuthResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "access", res.Token)
	assert.Equal(t, "refresh", res.RefreshToken)

	rec = serve(t, h.Login, call{method: http.MethodPost, target: "/api/auth/login", body: `{"email":"admin@college.edu","password":"wrong"}`})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, apperror.ErrInvalidCredentials.Code, decodeError(t, rec).Error)
}

// --- documents ---

func TestDocumentDownload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stored.txt")
	require.NoError(t, os.WriteFile(path, []byte("agenda"), 0o600))

	h := NewDocumentHandler(&mockDocuments{openFn: func(_ context.Context, id uint64) (*model.Document, *os.File, error) {
		if id != 9 {
			return nil, nil, apperror.ErrDocumentNotFound
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		return &model.Document{ID: 9, OriginalName: "agenda.txt", MimeType: "text/plain; charset=utf-8"}, f, nil
	}})

	rec := serve(t, h.Download, call{method: http.MethodGet, target: "/api/documents/9/download", who: manager, route: "/api/documents/:id/download"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "agenda", rec.Body.String())
	assert.Equal(t, `attachment; filename="agenda.txt"`, rec.Header().Get(echo.HeaderContentDisposition))
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, "nosniff", rec.Header().Get(echo.HeaderXContentTypeOptions))

	rec = serve(t, h.Download, call{method: http.MethodGet, target: "/api/documents/8/download", who: manager, route: "/api/documents/:id/download"})
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperror.ErrDocumentNotFound.Code, decodeError(t, rec).Error)
}

func TestIDParam_Invalid(t *testing.T) {
	var seen []uint64
	h := NewDocumentHandler(&mockDocuments{openFn: func(_ context.Context, id uint64) (*model.Document, *os.File, error) {
		seen = append(seen, id)
		return nil, nil, apperror.ErrDocumentNotFound
	}})
	for _, raw := range []string{"0", "-1", "x", "18446744073709551616"} {
		rec := serve(t, h.Download, call{method: http.MethodGet, target: "/api/documents/" + raw + "/download", who: manager, route: "/api/documents/:id/download"})
		require.Equal(t, http.StatusBadRequest, rec.Code, raw)
		assert.Equal(t, "must be a positive integer", decodeError(t, rec).Fields["id"], raw)
	}
	assert.Empty(t, seen)

	rec := serve(t, h.Download, call{method: http.MethodGet, target: "/api/documents/12/download", who: manager, route: "/api/documents/:id/download"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, []uint64{12}, seen)
}
