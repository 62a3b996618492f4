package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/evms/internal/model"
)

// RegistrationTx is the set of statements that run inside the
// registration transaction.  The concrete implementation wraps *sql.Tx.
type RegistrationTx interface {
	// LockEvent reads the event row with an exclusive lock.
	LockEvent(ctx context.Context, eventID uint64) (*model.Event, error)
	// HasActive reports whether a non-cancelled registration exists for the
	// event and the case-folded email.
	HasActive(ctx context.Context, eventID uint64, email string) (bool, error)
	// CountActive counts non-cancelled registrations of the event.
	CountActive(ctx context.Context, eventID uint64) (int, error)
	// Insert stores reg and fills in ID and timestamps.
	Insert(ctx context.Context, reg *model.Registration) error
	// LockRegistration reads a registration row with an exclusive lock.
	LockRegistration(ctx context.Context, id uint64) (*model.Registration, error)
	// SetStatus writes a registration status.
	SetStatus(ctx context.Context, id uint64, status string) error
}

// RegistrationFilter narrows List.
type RegistrationFilter struct {
	EventID *uint64
	UserID  *uint64
	Status  string
}

// RegistrationRepo persists rows of the registrations table.
type RegistrationRepo struct {
	db *sql.DB
}

func NewRegistrationRepo(db *sql.DB) *RegistrationRepo { return &RegistrationRepo{db: db} }

const registrationSelect = `SELECT r.id, r.event_id, r.user_id, r.name, r.email, r.phone,
       r.dietary_restrictions, r.special_accommodations, r.status, r.created_at, r.updated_at,
       e.title, DATE_FORMAT(e.date, '%Y-%m-%d')
FROM registrations r
JOIN events e ON e.id = r.event_id`

func scanRegistration(s rowScanner) (*model.Registration, error) {
	var (
		reg                 model.Registration
		user                sql.NullInt64
		phone, diet, access sql.NullString
		title, date         sql.NullString
	)
	err := s.Scan(&reg.ID, &reg.EventID, &user, &reg.Name, &reg.Email, &phone,
		&diet, &access, &reg.Status, &reg.CreatedAt, &reg.UpdatedAt, &title, &date)
	if err != nil {
		return nil, err
	}
	reg.UserID = u64Ptr(user)
	reg.Phone, reg.DietaryRestrictions, reg.SpecialAccommodations = strPtr(phone), strPtr(diet), strPtr(access)
	reg.EventTitle, reg.EventDate = strPtr(title), strPtr(date)
	return &reg, nil
}

func queryRegistrations(ctx context.Context, q querier, query string, args ...any) ([]model.Registration, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Registration{}
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *reg)
	}
	return out, rows.Err()
}

// WithinTx runs fn in a single transaction and commits when fn returns nil.
func (r *RegistrationRepo) WithinTx(ctx context.Context, fn func(RegistrationTx) error) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		return fn(&registrationTx{tx: tx})
	})
}

// GetByID fetches one registration.
func (r *RegistrationRepo) GetByID(ctx context.Context, id uint64) (*model.Registration, error) {
	reg, err := scanRegistration(r.db.QueryRowContext(ctx, registrationSelect+" WHERE r.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return reg, err
}

// List returns registrations matching f, newest first.
func (r *RegistrationRepo) List(ctx context.Context, f RegistrationFilter) ([]model.Registration, error) {
	var (
		where []string
		args  []any
	)
	if f.EventID != nil {
		where = append(where, "r.event_id = ?")
		args = append(args, *f.EventID)
	}
	if f.UserID != nil {
		where = append(where, "r.user_id = ?")
		args = append(args, *f.UserID)
	}
	if f.Status != "" {
		where = append(where, "r.status = ?")
		args = append(args, f.Status)
	}
	q := registrationSelect
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	return queryRegistrations(ctx, r.db, q+" ORDER BY r.created_at DESC, r.id DESC", args...)
}

type registrationTx struct{ tx *sql.Tx }

func (t *registrationTx) LockEvent(ctx context.Context, eventID uint64) (*model.Event, error) {
	var (
		e        model.Event
		capacity sql.NullInt64
	)
	err := t.tx.QueryRowContext(ctx,
		"SELECT id, title, status, max_capacity, requester_id FROM events WHERE id = ? FOR UPDATE", eventID).
		Scan(&e.ID, &e.Title, &e.Status, &capacity, &e.RequesterID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	e.MaxCapacity = intPtr(capacity)
	return &e, nil
}

func (t *registrationTx) HasActive(ctx context.Context, eventID uint64, email string) (bool, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM registrations WHERE event_id = ? AND LOWER(email) = ? AND status <> 'cancelled'",
		eventID, normalizeEmail(email)).Scan(&n)
	return n > 0, err
}

func (t *registrationTx) CountActive(ctx context.Context, eventID uint64) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM registrations WHERE event_id = ? AND status <> 'cancelled'", eventID).Scan(&n)
	return n, err
}

func (t *registrationTx) Insert(ctx context.Context, reg *model.Registration) error {
	const q = `INSERT INTO registrations (event_id, user_id, name, email, phone, dietary_restrictions, special_accommodations, status)
	           VALUES (?,?,?,?,?,?,?,?)`
	res, err := t.tx.ExecContext(ctx, q, reg.EventID, reg.UserID, reg.Name, normalizeEmail(reg.Email), reg.Phone,
		reg.DietaryRestrictions, reg.SpecialAccommodations, reg.Status)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicate
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	created, err := scanRegistration(t.tx.QueryRowContext(ctx, registrationSelect+" WHERE r.id = ?", id))
	if err != nil {
		return err
	}
	*reg = *created
	return nil
}

func (t *registrationTx) LockRegistration(ctx context.Context, id uint64) (*model.Registration, error) {
	var (
		reg  model.Registration
		user sql.NullInt64
	)
	err := t.tx.QueryRowContext(ctx,
		"SELECT id, event_id, user_id, name, email, status, created_at, updated_at FROM registrations WHERE id = ? FOR UPDATE", id).
		Scan(&reg.ID, &reg.EventID, &user, &reg.Name, &reg.Email, &reg.Status, &reg.CreatedAt, &reg.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	reg.UserID = u64Ptr(user)
	return &reg, nil
}

func (t *registrationTx) SetStatus(ctx context.Context, id uint64, status string) error {
	res, err := t.tx.ExecContext(ctx, "UPDATE registrations SET status = ? WHERE id = ?", status, id)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicate
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
