//go:build integration

package repository_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/evms/internal/apperror"
	"github.com/iliyamo/evms/internal/logger"
	"github.com/iliyamo/evms/internal/model"
	"github.com/iliyamo/evms/internal/repository"
	"github.com/iliyamo/evms/internal/service"
)

func intp(n int) *int { return &n }

func TestEventRoundTripFormats(t *testing.T) {
	cleanTables(t)
	u := createUser(t, "Mgr@College.edu", model.RoleEventManager)
	assert.Equal(t, "mgr@college.edu", u.Email)

	e := createEvent(t, u.ID, model.EventPending, intp(10))
	assert.Equal(t, "2026-09-01", e.Date)
	require.NotNil(t, e.StartTime)
	assert.Equal(t, "09:30", *e.StartTime)
	require.NotNil(t, e.EndTime)
	assert.Equal(t, "11:00", *e.EndTime)
	require.NotNil(t, e.RequesterName)
	assert.Equal(t, "Test "+model.RoleEventManager, *e.RequesterName)
}

func TestEventUpdateUnchangedAndMissing(t *testing.T) {
	cleanTables(t)
	u := createUser(t, "mgr@college.edu", model.RoleEventManager)
	e := createEvent(t, u.ID, model.EventPending, nil)
	repo := repository.NewEventRepo(testDB)

	same := e.Title
	assert.NoError(t, repo.Update(t.Context(), e.ID, model.EventPatch{Title: &same}), "unchanged values still match the row")
	assert.ErrorIs(t, repo.Update(t.Context(), e.ID+1000, model.EventPatch{Title: &same}), repository.ErrNotFound)

	prev, err := repo.SetStatus(t.Context(), e.ID, model.EventApproved)
	require.NoError(t, err)
	assert.Equal(t, model.EventPending, prev)
}

func TestRegistrationCapacityConcurrent(t *testing.T) {
	cleanTables(t)
	u := createUser(t, "mgr@college.edu", model.RoleEventManager)
	const capacity = 5
	e := createEvent(t, u.ID, model.EventApproved, intp(capacity))
	svc := service.NewRegistrationService(repository.NewRegistrationRepo(testDB), logger.Nop())

	const attendees = 12
	var (
		wg              sync.WaitGroup
		mu              sync.Mutex
		confirmed, full int
		unexpected      []error
	)
	wg.Add(attendees)
	for i := 0; i < attendees; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := svc.Create(t.Context(), service.Actor{}, service.CreateRegistrationInput{
				EventID: e.ID,
				Name:    fmt.Sprintf("Attendee %d", i),
				Email:   fmt.Sprintf("a%02d@college.edu", i),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				confirmed++
			case errors.Is(err, apperror.ErrEventFull):
				full++
			default:
				unexpected = append(unexpected, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Empty(t, unexpected)
	assert.Equal(t, capacity, confirmed)
	assert.Equal(t, attendees-capacity, full)

	var n int
	require.NoError(t, testDB.QueryRowContext(t.Context(),
		"SELECT COUNT(*) FROM registrations WHERE event_id = ? AND status <> 'cancelled'", e.ID).Scan(&n))
	assert.Equal(t, capacity, n)
}

func TestRegistrationDuplicateCancelReregister(t *testing.T) {
	cleanTables(t)
	u := createUser(t, "mgr@college.edu", model.RoleEventManager)
	e := createEvent(t, u.ID, model.EventApproved, intp(1))
	svc := service.NewRegistrationService(repository.NewRegistrationRepo(testDB), logger.Nop())
	staff := service.Actor{UserID: u.ID, Role: model.RoleEventManager}
	in := service.CreateRegistrationInput{EventID: e.ID, Name: "Ann", Email: "ann@college.edu"}

	first, err := svc.Create(t.Context(), service.Actor{}, in)
	require.NoError(t, err)
	require.NotNil(t, first.EventDate)
	assert.Equal(t, "2026-09-01", *first.EventDate)

	in.Email = "  ANN@College.EDU "
	_, err = svc.Create(t.Context(), service.Actor{}, in)
	assert.ErrorIs(t, err, apperror.ErrDuplicateRegistration)

	cancelled, err := svc.Cancel(t.Context(), staff, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RegistrationCancelled, cancelled.Status)
	_, err = svc.Cancel(t.Context(), staff, first.ID)
	assert.ErrorIs(t, err, apperror.ErrAlreadyCancelled)

	again, err := svc.Create(t.Context(), service.Actor{}, in)
	require.NoError(t, err, "a cancelled row frees both the email and the seat")
	assert.NotEqual(t, first.ID, again.ID)
}

func TestRegistrationActiveEmailKey(t *testing.T) {
	cleanTables(t)
	u := createUser(t, "mgr@college.edu", model.RoleEventManager)
	e := createEvent(t, u.ID, model.EventApproved, nil)
	repo := repository.NewRegistrationRepo(testDB)

	insert := func() error {
		return repo.WithinTx(t.Context(), func(tx repository.RegistrationTx) error {
			return tx.Insert(t.Context(), &model.Registration{
				EventID: e.ID, Name: "Ben", Email: "ben@college.edu", Status: model.RegistrationConfirmed,
			})
		})
	}
	require.NoError(t, insert())
	assert.ErrorIs(t, insert(), repository.ErrDuplicate, "the unique key holds without the service check")
}

func TestInvoicePayTwiceAndRefund(t *testing.T) {
	cleanTables(t)
	u := createUser(t, "fin@college.edu", model.RoleEventManager)
	e := createEvent(t, u.ID, model.EventApproved, nil)
	repo := repository.NewInvoiceRepo(testDB)
	svc := service.NewInvoiceService(repo, repository.NewEventRepo(testDB), logger.Nop())
	actor := service.Actor{UserID: u.ID, Role: model.RoleEventManager}

	due := "2026-10-01"
	inv, err := svc.Create(t.Context(), actor, service.CreateInvoiceInput{
		EventID: e.ID,
		DueDate: &due,
		Items:   []model.InvoiceItem{{Description: "Hall", Quantity: 2, UnitPrice: 50.25}},
	})
	require.NoError(t, err)
	assert.Equal(t, 100.5, inv.Amount)
	require.NotNil(t, inv.DueDate)
	assert.Equal(t, due, *inv.DueDate)
	require.Len(t, inv.Items, 1)

	paid, err := svc.Pay(t.Context(), inv.ID, service.PayInput{Method: "card"})
	require.NoError(t, err)
	assert.Equal(t, model.InvoicePaid, paid.Status)
	require.NotNil(t, paid.PaymentID)
	assert.Regexp(t, `^PAY-\d+-[0-9A-F]{8}$`, *paid.PaymentID)

	_, err = svc.Pay(t.Context(), inv.ID, service.PayInput{Method: "card"})
	assert.ErrorIs(t, err, apperror.ErrAlreadyPaid)

	// the conditional UPDATE rejects a second payment even without the lock check
	err = repo.WithinTx(t.Context(), func(tx repository.InvoiceTx) error {
		return tx.MarkPaid(t.Context(), &model.Payment{InvoiceID: inv.ID, PaymentID: "PAY-1-deadbeef", Amount: 1, Method: "card"}, paid.UpdatedAt)
	})
	assert.ErrorIs(t, err, repository.ErrConflict)

	refunded, err := svc.Refund(t.Context(), inv.ID, service.RefundInput{})
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceRefunded, refunded.Status)
	require.NotNil(t, refunded.RefundAmount)
	assert.Equal(t, 100.5, *refunded.RefundAmount)

	err = repo.WithinTx(t.Context(), func(tx repository.InvoiceTx) error {
		return tx.MarkRefunded(t.Context(), &model.Refund{InvoiceID: inv.ID, RefundID: "REF-1-deadbeef", Amount: 1}, refunded.UpdatedAt)
	})
	assert.ErrorIs(t, err, repository.ErrConflict)
}
