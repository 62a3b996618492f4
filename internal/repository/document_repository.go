package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/evms/internal/model"
)

// DocumentRepo persists document metadata.  The files themselves are
// handled by the storage package.
type DocumentRepo struct{ db *sql.DB }

func NewDocumentRepo(db *sql.DB) *DocumentRepo { return &DocumentRepo{db: db} }

const documentColumns = "id, event_id, filename, original_name, path, mime_type, size_bytes, description, uploaded_by, created_at"

func scanDocument(s rowScanner) (*model.Document, error) {
	var (
		d    model.Document
		desc sql.NullString
	)
	if err := s.Scan(&d.ID, &d.EventID, &d.Filename, &d.OriginalName, &d.Path, &d.MimeType, &d.SizeBytes,
		&desc, &d.UploadedBy, &d.CreatedAt); err != nil {
		return nil, err
	}
	d.Description = strPtr(desc)
	return &d, nil
}

// Create inserts d and fills in ID and CreatedAt.
func (r *DocumentRepo) Create(ctx context.Context, d *model.Document) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO documents (event_id, filename, original_name, path, mime_type, size_bytes, description, uploaded_by)
		 VALUES (?,?,?,?,?,?,?,?)`,
		d.EventID, d.Filename, d.OriginalName, d.Path, d.MimeType, d.SizeBytes, d.Description, d.UploadedBy)
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
	*d = *created
	return nil
}

// GetByID fetches one document.
func (r *DocumentRepo) GetByID(ctx context.Context, id uint64) (*model.Document, error) {
	d, err := scanDocument(r.db.QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

// ListByEvent returns the documents of one event, newest first.
func (r *DocumentRepo) ListByEvent(ctx context.Context, eventID uint64) ([]model.Document, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE event_id = ? ORDER BY created_at DESC, id DESC", eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// Delete removes the metadata row.
func (r *DocumentRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
