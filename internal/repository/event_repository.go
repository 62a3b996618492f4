package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/evms/internal/model"
)

// EventRepo provides CRUD, listing and status operations for events.  Reads
// join venue, college and requester names and count active registrations.
type EventRepo struct {
	db *sql.DB
}

func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

const eventSelect = `SELECT e.id, e.title, e.college_id, e.venue_id,
       DATE_FORMAT(e.date, '%Y-%m-%d'), TIME_FORMAT(e.start_time, '%H:%i'), TIME_FORMAT(e.end_time, '%H:%i'),
       e.description, e.max_capacity, e.status, e.requester_id, e.created_at, e.updated_at,
       v.name, c.name, u.name,
       (SELECT COUNT(*) FROM registrations r WHERE r.event_id = e.id AND r.status <> 'cancelled')
FROM events e
LEFT JOIN venues v   ON v.id = e.venue_id
LEFT JOIN colleges c ON c.id = e.college_id
LEFT JOIN users u    ON u.id = e.requester_id`

func scanEvent(s rowScanner) (*model.Event, error) {
	var (
		e                           model.Event
		college, venue, capacity    sql.NullInt64
		start, end, desc            sql.NullString
		venueName, collegeName, req sql.NullString
		count                       int
	)
	err := s.Scan(&e.ID, &e.Title, &college, &venue,
		&e.Date, &start, &end,
		&desc, &capacity, &e.Status, &e.RequesterID, &e.CreatedAt, &e.UpdatedAt,
		&venueName, &collegeName, &req, &count)
	if err != nil {
		return nil, err
	}
	e.CollegeID, e.VenueID, e.MaxCapacity = u64Ptr(college), u64Ptr(venue), intPtr(capacity)
	e.StartTime, e.EndTime, e.Description = strPtr(start), strPtr(end), strPtr(desc)
	e.VenueName, e.CollegeName, e.RequesterName = strPtr(venueName), strPtr(collegeName), strPtr(req)
	e.RegistrationCount = &count
	return &e, nil
}

// Create inserts e.  Status is taken as given; callers set Pending.
func (r *EventRepo) Create(ctx context.Context, e *model.Event) error {
	const q = `INSERT INTO events (title, college_id, venue_id, date, start_time, end_time, description, max_capacity, status, requester_id)
	           VALUES (?,?,?,?,?,?,?,?,?,?)`
	res, err := r.db.ExecContext(ctx, q, e.Title, e.CollegeID, e.VenueID, e.Date, e.StartTime, e.EndTime,
		e.Description, e.MaxCapacity, e.Status, e.RequesterID)
	if err != nil {
		if isMissingReference(err) {
			return ErrConflict
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	created, err := r.GetByID(ctx, uint64(id))
	if err != nil {
		return err
	}
	*e = *created
	return nil
}

// GetByID fetches one event with its joined names.
func (r *EventRepo) GetByID(ctx context.Context, id uint64) (*model.Event, error) {
	e, err := scanEvent(r.db.QueryRowContext(ctx, eventSelect+" WHERE e.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// List returns one page of events matching f, ordered by date, and the
// total number of matches.
func (r *EventRepo) List(ctx context.Context, f EventFilter) ([]model.Event, int64, error) {
	cond, args := f.where()

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events e WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := pageBounds(f.Page, f.PageSize)
	out, err := r.query(ctx, eventSelect+" WHERE "+cond+" ORDER BY e.date ASC, e.start_time ASC, e.id ASC LIMIT ? OFFSET ?",
		append(append([]any{}, args...), limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Export returns every event matching f without paging.
func (r *EventRepo) Export(ctx context.Context, f EventFilter) ([]model.Event, error) {
	cond, args := f.where()
	return r.query(ctx, eventSelect+" WHERE "+cond+" ORDER BY e.date ASC, e.id ASC", args...)
}

func (r *EventRepo) query(ctx context.Context, q string, args ...any) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// Update writes the supplied patch fields.  Status is never touched here.
func (r *EventRepo) Update(ctx context.Context, id uint64, p model.EventPatch) error {
	var set setClause
	if p.Title != nil {
		set.add("title", *p.Title)
	}
	if p.CollegeID != nil {
		set.add("college_id", *p.CollegeID)
	}
	if p.VenueID != nil {
		set.add("venue_id", *p.VenueID)
	}
	if p.Date != nil {
		set.add("date", *p.Date)
	}
	if p.StartTime != nil {
		set.add("start_time", *p.StartTime)
	}
	if p.EndTime != nil {
		set.add("end_time", *p.EndTime)
	}
	if p.Description != nil {
		set.add("description", *p.Description)
	}
	if p.MaxCapacity != nil {
		set.add("max_capacity", *p.MaxCapacity)
	}
	if set.empty() {
		return nil
	}
	err := set.exec(ctx, r.db, "events", id)
	if isMissingReference(err) {
		return ErrConflict
	}
	return err
}

// SetStatus writes status and returns the status it replaced.  The row is
// locked for the read so the returned value is the one actually replaced.
func (r *EventRepo) SetStatus(ctx context.Context, id uint64, status string) (string, error) {
	var prev string
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, "SELECT status FROM events WHERE id = ? FOR UPDATE", id).Scan(&prev)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, "UPDATE events SET status = ? WHERE id = ?", status, id)
		return err
	})
	return prev, err
}

// Delete removes an event that has no registrations, invoices or documents.
func (r *EventRepo) Delete(ctx context.Context, id uint64) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		var refs int
		err := tx.QueryRowContext(ctx, `SELECT
			(SELECT COUNT(*) FROM registrations WHERE event_id = ?) +
			(SELECT COUNT(*) FROM invoices WHERE event_id = ?) +
			(SELECT COUNT(*) FROM documents WHERE event_id = ?)`, id, id, id).Scan(&refs)
		if err != nil {
			return err
		}
		if refs > 0 {
			return ErrConflict
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM events WHERE id = ?", id)
		if err != nil {
			if isReferenced(err) {
				return ErrConflict
			}
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Stats counts events per status.
func (r *EventRepo) Stats(ctx context.Context) (model.EventStats, error) {
	var st model.EventStats
	rows, err := r.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM events GROUP BY status")
	if err != nil {
		return st, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return st, err
		}
		switch status {
		case model.EventPending:
			st.Pending = n
		case model.EventApproved:
			st.Approved = n
		case model.EventRejected:
			st.Rejected = n
		case model.EventTentative:
			st.Tentative = n
		}
		st.Total += n
	}
	return st, rows.Err()
}

// Registrations lists every registration of an event, newest first.
func (r *EventRepo) Registrations(ctx context.Context, eventID uint64) ([]model.Registration, error) {
	return queryRegistrations(ctx, r.db, registrationSelect+" WHERE r.event_id = ? ORDER BY r.created_at DESC, r.id DESC", eventID)
}
