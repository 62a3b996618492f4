package service

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/evms/internal/model"
	"github.com/iliyamo/evms/internal/queue"
	"github.com/iliyamo/evms/internal/repository"
	"github.com/iliyamo/evms/internal/storage"
)

// --- in-memory users and tokens ---

type memUsers struct {
	mu     sync.Mutex
	nextID uint64
	rows   map[uint64]*model.User
	// deleteErr is returned by Delete when set
	deleteErr error
}

func newMemUsers() *memUsers { return &memUsers{rows: map[uint64]*model.User{}} }

func (m *memUsers) Create(ctx context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	for _, r := range m.rows {
		if r.Email == u.Email {
			return repository.ErrEmailExists
		}
	}
	m.nextID++
	u.ID = m.nextID
	cp := *u
	m.rows[u.ID] = &cp
	return nil
}

func (m *memUsers) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, r := range m.rows {
		if r.Email == email {
			cp := *r
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memUsers) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memUsers) List(ctx context.Context, f repository.UserFilter) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.User
	for _, r := range m.rows {
		if f.Role == "" || r.Role == f.Role {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memUsers) Update(ctx context.Context, id uint64, p repository.UserPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Email != nil {
		r.Email = *p.Email
	}
	if p.Role != nil {
		r.Role = *p.Role
	}
	if p.CollegeID != nil {
		r.CollegeID = p.CollegeID
	}
	return nil
}

func (m *memUsers) UpdatePassword(ctx context.Context, id uint64, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	r.PasswordHash = hash
	return nil
}

func (m *memUsers) Delete(ctx context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.rows[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

type memTokens struct {
	mu   sync.Mutex
	rows map[string]*model.RefreshToken
}

func newMemTokens() *memTokens { return &memTokens{rows: map[string]*model.RefreshToken{}} }

func (m *memTokens) Store(ctx context.Context, t *model.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.rows[t.TokenHash] = &cp
	return nil
}

func (m *memTokens) FindActive(ctx context.Context, hash string, now time.Time) (*model.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[hash]
	if !ok || t.RevokedAt != nil || !t.ExpiresAt.After(now) {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTokens) Rotate(ctx context.Context, oldHash string, next *model.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.rows[oldHash]
	if !ok || old.RevokedAt != nil {
		return repository.ErrNotFound
	}
	now := time.Now()
	old.RevokedAt = &now
	cp := *next
	m.rows[next.TokenHash] = &cp
	return nil
}

func (m *memTokens) Revoke(ctx context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.rows[hash]; ok && t.RevokedAt == nil {
		now := time.Now()
		t.RevokedAt = &now
	}
	return nil
}

func (m *memTokens) RevokeAll(ctx context.Context, userID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, t := range m.rows {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &now
		}
	}
	return nil
}

func (m *memTokens) active(userID uint64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.rows {
		if t.UserID == userID && t.RevokedAt == nil {
			n++
		}
	}
	return n
}

// --- in-memory events and venues ---

type memEvents struct {
	mu     sync.Mutex
	nextID uint64
	rows   map[uint64]*model.Event
	// referenced marks events with registrations, invoices or documents
	referenced map[uint64]bool
}

func newMemEvents() *memEvents { return &memEvents{rows: map[uint64]*model.Event{}} }

func (m *memEvents) add(e model.Event) *model.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	e.ID = m.nextID
	m.rows[e.ID] = &e
	return &e
}

func (m *memEvents) Create(ctx context.Context, e *model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	e.ID = m.nextID
	cp := *e
	m.rows[e.ID] = &cp
	return nil
}

func (m *memEvents) GetByID(ctx context.Context, id uint64) (*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memEvents) List(ctx context.Context, f repository.EventFilter) ([]model.Event, int64, error) {
	out, err := m.Export(ctx, f)
	return out, int64(len(out)), err
}

func (m *memEvents) Export(ctx context.Context, f repository.EventFilter) ([]model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Event
	for _, e := range m.rows {
		if f.Status == "" || e.Status == f.Status {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *memEvents) Update(ctx context.Context, id uint64, p model.EventPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Date != nil {
		e.Date = *p.Date
	}
	if p.StartTime != nil {
		e.StartTime = p.StartTime
	}
	if p.EndTime != nil {
		e.EndTime = p.EndTime
	}
	if p.Description != nil {
		e.Description = p.Description
	}
	if p.MaxCapacity != nil {
		e.MaxCapacity = p.MaxCapacity
	}
	if p.VenueID != nil {
		e.VenueID = p.VenueID
	}
	if p.CollegeID != nil {
		e.CollegeID = p.CollegeID
	}
	return nil
}

func (m *memEvents) SetStatus(ctx context.Context, id uint64, status string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[id]
	if !ok {
		return "", repository.ErrNotFound
	}
	prev := e.Status
	e.Status = status
	return prev, nil
}

func (m *memEvents) Delete(ctx context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return repository.ErrNotFound
	}
	if m.referenced[id] {
		return repository.ErrConflict
	}
	delete(m.rows, id)
	return nil
}

func (m *memEvents) Stats(ctx context.Context) (model.EventStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var st model.EventStats
	for _, e := range m.rows {
		st.Total++
		switch e.Status {
		case model.EventPending:
			st.Pending++
		case model.EventApproved:
			st.Approved++
		case model.EventRejected:
			st.Rejected++
		case model.EventTentative:
			st.Tentative++
		}
	}
	return st, nil
}

func (m *memEvents) Registrations(ctx context.Context, eventID uint64) ([]model.Registration, error) {
	return nil, nil
}

type memVenues struct {
	mu     sync.Mutex
	nextID uint64
	rows   map[uint64]*model.Venue
	// inUse marks venues that events still reference
	inUse map[uint64]bool
}

func newMemVenues() *memVenues { return &memVenues{rows: map[uint64]*model.Venue{}} }

func (m *memVenues) Create(ctx context.Context, v *model.Venue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if strings.EqualFold(r.Name, v.Name) {
			return repository.ErrDuplicateName
		}
	}
	m.nextID++
	v.ID = m.nextID
	cp := *v
	m.rows[v.ID] = &cp
	return nil
}

func (m *memVenues) GetByID(ctx context.Context, id uint64) (*model.Venue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *memVenues) List(ctx context.Context, f repository.VenueFilter) ([]model.Venue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Venue
	for _, v := range m.rows {
		out = append(out, *v)
	}
	return out, nil
}

func (m *memVenues) Update(ctx context.Context, id uint64, p repository.VenuePatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	if p.Name != nil {
		for oid, r := range m.rows {
			if oid != id && strings.EqualFold(r.Name, *p.Name) {
				return repository.ErrDuplicateName
			}
		}
		v.Name = *p.Name
	}
	if p.Capacity != nil {
		v.Capacity = p.Capacity
	}
	return nil
}

func (m *memVenues) Delete(ctx context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return repository.ErrNotFound
	}
	if m.inUse[id] {
		return repository.ErrConflict
	}
	delete(m.rows, id)
	return nil
}

type mockColleges struct {
	getFn func(ctx context.Context, id uint64) (*model.College, error)
}

func (m *mockColleges) GetByID(ctx context.Context, id uint64) (*model.College, error) {
	if m.getFn == nil {
		return nil, repository.ErrNotFound
	}
	return m.getFn(ctx, id)
}

// --- in-memory registrations: the store and its transaction share state ---

type memRegistrations struct {
	mu     sync.Mutex
	events *memEvents
	nextID uint64
	rows   map[uint64]*model.Registration
}

func newMemRegistrations(events *memEvents) *memRegistrations {
	return &memRegistrations{events: events, rows: map[uint64]*model.Registration{}}
}

func (m *memRegistrations) WithinTx(ctx context.Context, fn func(repository.RegistrationTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(regTx{m})
}

func (m *memRegistrations) GetByID(ctx context.Context, id uint64) (*model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRegistrations) List(ctx context.Context, f repository.RegistrationFilter) ([]model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Registration
	for _, r := range m.rows {
		if f.EventID != nil && r.EventID != *f.EventID {
			continue
		}
		if f.UserID != nil && (r.UserID == nil || *r.UserID != *f.UserID) {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

type regTx struct{ m *memRegistrations }

func (t regTx) LockEvent(ctx context.Context, eventID uint64) (*model.Event, error) {
	return t.m.events.GetByID(ctx, eventID)
}

func (t regTx) HasActive(ctx context.Context, eventID uint64, email string) (bool, error) {
	for _, r := range t.m.rows {
		if r.EventID == eventID && r.Status != model.RegistrationCancelled && strings.EqualFold(r.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (t regTx) CountActive(ctx context.Context, eventID uint64) (int, error) {
	n := 0
	for _, r := range t.m.rows {
		if r.EventID == eventID && r.Status != model.RegistrationCancelled {
			n++
		}
	}
	return n, nil
}

func (t regTx) Insert(ctx context.Context, reg *model.Registration) error {
	t.m.nextID++
	reg.ID = t.m.nextID
	cp := *reg
	t.m.rows[reg.ID] = &cp
	return nil
}

func (t regTx) LockRegistration(ctx context.Context, id uint64) (*model.Registration, error) {
	r, ok := t.m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (t regTx) SetStatus(ctx context.Context, id uint64, status string) error {
	r, ok := t.m.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	r.Status = status
	return nil
}

// --- in-memory invoices ---

type memInvoices struct {
	mu     sync.Mutex
	nextID uint64
	rows   map[uint64]*model.Invoice
	// createErrs are returned by successive Create calls before succeeding
	createErrs []error
}

func newMemInvoices() *memInvoices { return &memInvoices{rows: map[uint64]*model.Invoice{}} }

func (m *memInvoices) Create(ctx context.Context, inv *model.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.createErrs) > 0 {
		err := m.createErrs[0]
		m.createErrs = m.createErrs[1:]
		return err
	}
	m.nextID++
	inv.ID = m.nextID
	cp := *inv
	m.rows[inv.ID] = &cp
	return nil
}

func (m *memInvoices) GetByID(ctx context.Context, id uint64) (*model.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (m *memInvoices) List(ctx context.Context, f repository.InvoiceFilter) ([]model.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Invoice
	for _, inv := range m.rows {
		if f.Status == "" || inv.Status == f.Status {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (m *memInvoices) WithinTx(ctx context.Context, fn func(repository.InvoiceTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(invTx{m})
}

type invTx struct{ m *memInvoices }

func (t invTx) Lock(ctx context.Context, id uint64) (*model.Invoice, error) {
	inv, ok := t.m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (t invTx) MarkPaid(ctx context.Context, p *model.Payment, at time.Time) error {
	inv := t.m.rows[p.InvoiceID]
	if inv == nil || inv.Status != model.InvoicePending {
		return repository.ErrConflict
	}
	inv.Status = model.InvoicePaid
	inv.PaymentID = &p.PaymentID
	inv.PaymentAmount = &p.Amount
	inv.PaidAt = &at
	return nil
}

func (t invTx) MarkRefunded(ctx context.Context, r *model.Refund, at time.Time) error {
	inv := t.m.rows[r.InvoiceID]
	if inv == nil || inv.Status != model.InvoicePaid {
		return repository.ErrConflict
	}
	inv.Status = model.InvoiceRefunded
	inv.RefundID = &r.RefundID
	inv.RefundAmount = &r.Amount
	inv.RefundedAt = &at
	return nil
}

// --- documents, migrations and files ---

type memDocuments struct {
	mu        sync.Mutex
	nextID    uint64
	rows      map[uint64]*model.Document
	createErr error
}

func newMemDocuments() *memDocuments { return &memDocuments{rows: map[uint64]*model.Document{}} }

func (m *memDocuments) Create(ctx context.Context, d *model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.nextID++
	d.ID = m.nextID
	cp := *d
	m.rows[d.ID] = &cp
	return nil
}

func (m *memDocuments) GetByID(ctx context.Context, id uint64) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memDocuments) ListByEvent(ctx context.Context, eventID uint64) ([]model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Document
	for _, d := range m.rows {
		if d.EventID == eventID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *memDocuments) Delete(ctx context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

type memMigrations struct {
	mu     sync.Mutex
	nextID uint64
	rows   map[uint64]*model.MigrationLog
}

func newMemMigrations() *memMigrations { return &memMigrations{rows: map[uint64]*model.MigrationLog{}} }

func (m *memMigrations) Create(ctx context.Context, l *model.MigrationLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	l.ID = m.nextID
	l.Status = model.MigrationProcessing
	cp := *l
	m.rows[l.ID] = &cp
	return nil
}

func (m *memMigrations) GetByID(ctx context.Context, id uint64) (*model.MigrationLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *memMigrations) List(ctx context.Context, status string) ([]model.MigrationLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.MigrationLog
	for _, l := range m.rows {
		if status == "" || l.Status == status {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (m *memMigrations) Complete(ctx context.Context, id uint64, rows int, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	if l.Status != model.MigrationProcessing {
		return repository.ErrConflict
	}
	l.Status = model.MigrationCompleted
	l.ProcessedRows = &rows
	l.ResultMessage = &msg
	return nil
}

func (m *memMigrations) Fail(ctx context.Context, id uint64, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	if l.Status != model.MigrationProcessing {
		return repository.ErrConflict
	}
	l.Status = model.MigrationFailed
	l.ResultMessage = &msg
	return nil
}

func (m *memMigrations) ResetForRetry(ctx context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	if l.Status != model.MigrationFailed {
		return repository.ErrConflict
	}
	l.Status = model.MigrationProcessing
	l.RetryCount++
	l.ProcessedRows = nil
	l.ResultMessage = nil
	return nil
}

// recordingQueue keeps submitted jobs; run executes them synchronously.
type recordingQueue struct {
	mu   sync.Mutex
	jobs []queue.MigrationJob
	err  error
	run  queue.Handler
}

func (q *recordingQueue) Submit(ctx context.Context, job queue.MigrationJob) error {
	q.mu.Lock()
	if q.err != nil {
		q.mu.Unlock()
		return q.err
	}
	q.jobs = append(q.jobs, job)
	run := q.run
	q.mu.Unlock()
	if run != nil {
		return run(ctx, job)
	}
	return nil
}

// tempDisk is a storage.Disk rooted in a test temp dir.
func tempDisk(t *testing.T) *storage.Disk {
	t.Helper()
	d, err := storage.NewDisk(filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)
	return d
}

// failingFiles rejects every save with err.
type failingFiles struct{ err error }

func (f failingFiles) Save(io.Reader, storage.Policy) (*storage.Saved, error) { return nil, f.err }
func (failingFiles) Open(string) (*os.File, error)                            { return nil, os.ErrNotExist }
func (failingFiles) Exists(string) bool                                       { return false }
func (failingFiles) Remove(string) error                                      { return nil }
