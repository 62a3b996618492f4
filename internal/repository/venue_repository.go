package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/iliyamo/evms/internal/model"
)

// VenueRepo persists rows of the venues table.  Amenities live in a JSON
// column.
type VenueRepo struct{ db *sql.DB }

func NewVenueRepo(db *sql.DB) *VenueRepo { return &VenueRepo{db: db} }

// VenueFilter narrows List.
type VenueFilter struct {
	ActiveOnly bool
	Search     string
}

// VenuePatch carries the columns an update may write.
type VenuePatch struct {
	Name        *string
	Capacity    *int
	Description *string
	Location    *string
	Amenities   *[]string
	HourlyRate  *float64
	IsActive    *bool
}

const venueColumns = "id, name, capacity, description, location, amenities, hourly_rate, is_active, created_at, updated_at"

func scanVenue(s rowScanner) (*model.Venue, error) {
	var (
		v              model.Venue
		capacity       sql.NullInt64
		desc, location sql.NullString
		amenities      []byte
		rate           sql.NullFloat64
	)
	if err := s.Scan(&v.ID, &v.Name, &capacity, &desc, &location, &amenities, &rate, &v.IsActive, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	v.Capacity, v.Description, v.Location, v.HourlyRate = intPtr(capacity), strPtr(desc), strPtr(location), f64Ptr(rate)
	v.Amenities = []string{}
	if len(amenities) > 0 {
		if err := json.Unmarshal(amenities, &v.Amenities); err != nil {
			return nil, err
		}
	}
	return &v, nil
}

func amenitiesJSON(a []string) (string, error) {
	if a == nil {
		a = []string{}
	}
	b, err := json.Marshal(a)
	return string(b), err
}

// Create inserts v and fills in ID and timestamps.
func (r *VenueRepo) Create(ctx context.Context, v *model.Venue) error {
	am, err := amenitiesJSON(v.Amenities)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO venues (name, capacity, description, location, amenities, hourly_rate, is_active) VALUES (?,?,?,?,?,?,?)",
		v.Name, v.Capacity, v.Description, v.Location, am, v.HourlyRate, v.IsActive)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateName
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
	*v = *created
	return nil
}

// GetByID fetches a venue by id.
func (r *VenueRepo) GetByID(ctx context.Context, id uint64) (*model.Venue, error) {
	v, err := scanVenue(r.db.QueryRowContext(ctx, "SELECT "+venueColumns+" FROM venues WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}

// List returns venues ordered by name.
func (r *VenueRepo) List(ctx context.Context, f VenueFilter) ([]model.Venue, error) {
	var (
		where []string
		args  []any
	)
	if f.ActiveOnly {
		where = append(where, "is_active = 1")
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		where = append(where, "(LOWER(name) LIKE ? OR LOWER(location) LIKE ?)")
		like := "%" + strings.ToLower(s) + "%"
		args = append(args, like, like)
	}
	q := "SELECT " + venueColumns + " FROM venues"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	rows, err := r.db.QueryContext(ctx, q+" ORDER BY name", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Venue{}
	for rows.Next() {
		v, err := scanVenue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

// Update writes the supplied columns.
func (r *VenueRepo) Update(ctx context.Context, id uint64, p VenuePatch) error {
	var set setClause
	if p.Name != nil {
		set.add("name", *p.Name)
	}
	if p.Capacity != nil {
		set.add("capacity", *p.Capacity)
	}
	if p.Description != nil {
		set.add("description", *p.Description)
	}
	if p.Location != nil {
		set.add("location", *p.Location)
	}
	if p.Amenities != nil {
		am, err := amenitiesJSON(*p.Amenities)
		if err != nil {
			return err
		}
		set.add("amenities", am)
	}
	if p.HourlyRate != nil {
		set.add("hourly_rate", *p.HourlyRate)
	}
	if p.IsActive != nil {
		set.add("is_active", *p.IsActive)
	}
	if set.empty() {
		return nil
	}
	err := set.exec(ctx, r.db, "venues", id)
	if isDuplicateKey(err) {
		return ErrDuplicateName
	}
	return err
}

// Delete removes a venue no event references; otherwise ErrConflict.
func (r *VenueRepo) Delete(ctx context.Context, id uint64) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		var refs int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM events WHERE venue_id = ?", id).Scan(&refs); err != nil {
			return err
		}
		if refs > 0 {
			return ErrConflict
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM venues WHERE id = ?", id)
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
