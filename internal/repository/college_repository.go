package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/evms/internal/model"
)

// CollegeRepo persists rows of the colleges table.
type CollegeRepo struct{ db *sql.DB }

func NewCollegeRepo(db *sql.DB) *CollegeRepo { return &CollegeRepo{db: db} }

// CollegePatch carries the columns an update may write.
type CollegePatch struct {
	Name    *string
	Code    *string
	Address *string
}

const collegeColumns = "id, name, code, address, created_at, updated_at"

func scanCollege(s rowScanner) (*model.College, error) {
	var (
		c             model.College
		code, address sql.NullString
	)
	if err := s.Scan(&c.ID, &c.Name, &code, &address, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Code, c.Address = strPtr(code), strPtr(address)
	return &c, nil
}

// Create inserts c and fills in ID and timestamps.
func (r *CollegeRepo) Create(ctx context.Context, c *model.College) error {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO colleges (name, code, address) VALUES (?,?,?)", c.Name, c.Code, c.Address)
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
	*c = *created
	return nil
}

// GetByID fetches a college by id.
func (r *CollegeRepo) GetByID(ctx context.Context, id uint64) (*model.College, error) {
	c, err := scanCollege(r.db.QueryRowContext(ctx, "SELECT "+collegeColumns+" FROM colleges WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// List returns all colleges ordered by name.
func (r *CollegeRepo) List(ctx context.Context) ([]model.College, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+collegeColumns+" FROM colleges ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.College{}
	for rows.Next() {
		c, err := scanCollege(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// Update writes the supplied columns.
func (r *CollegeRepo) Update(ctx context.Context, id uint64, p CollegePatch) error {
	var set setClause
	if p.Name != nil {
		set.add("name", *p.Name)
	}
	if p.Code != nil {
		set.add("code", *p.Code)
	}
	if p.Address != nil {
		set.add("address", *p.Address)
	}
	if set.empty() {
		return nil
	}
	err := set.exec(ctx, r.db, "colleges", id)
	if isDuplicateKey(err) {
		return ErrDuplicateName
	}
	return err
}

// Delete removes a college that no user or event references; otherwise
// ErrConflict.
func (r *CollegeRepo) Delete(ctx context.Context, id uint64) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		var refs int
		err := tx.QueryRowContext(ctx,
			`SELECT (SELECT COUNT(*) FROM users WHERE college_id = ?) + (SELECT COUNT(*) FROM events WHERE college_id = ?)`,
			id, id).Scan(&refs)
		if err != nil {
			return err
		}
		if refs > 0 {
			return ErrConflict
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM colleges WHERE id = ?", id)
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
