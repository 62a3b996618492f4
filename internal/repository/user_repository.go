package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/evms/internal/model"
)

// UserRepo persists rows of the users table.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// UserFilter narrows List.  Zero values mean no constraint.
type UserFilter struct {
	Role      string
	CollegeID *uint64
}

// UserPatch carries the columns an update may write.
type UserPatch struct {
	Name      *string
	Email     *string
	Role      *string
	CollegeID *uint64
}

const userColumns = "id, email, password_hash, name, role, college_id, created_at, updated_at"

func scanUser(s rowScanner) (*model.User, error) {
	var (
		u       model.User
		college sql.NullInt64
	)
	if err := s.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &college, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.CollegeID = u64Ptr(college)
	return &u, nil
}

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// Create inserts u, whose PasswordHash must already be set, and fills in ID
// and timestamps.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	u.Email = normalizeEmail(u.Email)
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, name, role, college_id) VALUES (?,?,?,?,?)",
		u.Email, u.PasswordHash, u.Name, u.Role, u.CollegeID)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrEmailExists
		}
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
	*u = *created
	return nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = ? LIMIT 1", normalizeEmail(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ? LIMIT 1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

// List returns users ordered by id.
func (r *UserRepo) List(ctx context.Context, f UserFilter) ([]model.User, error) {
	var (
		where []string
		args  []any
	)
	if f.Role != "" {
		where = append(where, "role = ?")
		args = append(args, f.Role)
	}
	if f.CollegeID != nil {
		where = append(where, "college_id = ?")
		args = append(args, *f.CollegeID)
	}
	q := "SELECT " + userColumns + " FROM users"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	rows, err := r.DB.QueryContext(ctx, q+" ORDER BY id", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// Update writes the supplied columns.
func (r *UserRepo) Update(ctx context.Context, id uint64, p UserPatch) error {
	var set setClause
	if p.Name != nil {
		set.add("name", *p.Name)
	}
	if p.Email != nil {
		set.add("email", normalizeEmail(*p.Email))
	}
	if p.Role != nil {
		set.add("role", *p.Role)
	}
	if p.CollegeID != nil {
		set.add("college_id", *p.CollegeID)
	}
	if set.empty() {
		return nil
	}
	err := set.exec(ctx, r.DB, "users", id)
	switch {
	case isDuplicateKey(err):
		return ErrEmailExists
	case isMissingReference(err):
		return ErrConflict
	}
	return err
}

// UpdatePassword replaces the stored hash.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uint64, hash string) error {
	var set setClause
	set.add("password_hash", hash)
	return set.exec(ctx, r.DB, "users", id)
}

// Delete removes the user.  Users that still own events, invoices or
// uploads cannot be removed.
func (r *UserRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
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
}
