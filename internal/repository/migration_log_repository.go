package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/evms/internal/model"
)

// MigrationLogRepo persists migration_logs rows.  Status transitions are
// guarded in SQL so a late job cannot overwrite a newer state.
type MigrationLogRepo struct{ db *sql.DB }

func NewMigrationLogRepo(db *sql.DB) *MigrationLogRepo { return &MigrationLogRepo{db: db} }

const migrationColumns = "id, filename, original_name, path, migration_type, status, processed_rows, result_message, retry_count, uploaded_by, created_at, updated_at"

func scanMigrationLog(s rowScanner) (*model.MigrationLog, error) {
	var (
		m      model.MigrationLog
		rowsN  sql.NullInt64
		result sql.NullString
	)
	if err := s.Scan(&m.ID, &m.Filename, &m.OriginalName, &m.Path, &m.MigrationType, &m.Status,
		&rowsN, &result, &m.RetryCount, &m.UploadedBy, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.ProcessedRows, m.ResultMessage = intPtr(rowsN), strPtr(result)
	return &m, nil
}

// Create inserts m with status processing.
func (r *MigrationLogRepo) Create(ctx context.Context, m *model.MigrationLog) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO migration_logs (filename, original_name, path, migration_type, status, uploaded_by)
		 VALUES (?,?,?,?,?,?)`,
		m.Filename, m.OriginalName, m.Path, m.MigrationType, model.MigrationProcessing, m.UploadedBy)
	if err != nil {
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
	*m = *created
	return nil
}

// GetByID fetches one log.
func (r *MigrationLogRepo) GetByID(ctx context.Context, id uint64) (*model.MigrationLog, error) {
	m, err := scanMigrationLog(r.db.QueryRowContext(ctx, "SELECT "+migrationColumns+" FROM migration_logs WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

// List returns logs, optionally by status, newest first.
func (r *MigrationLogRepo) List(ctx context.Context, status string) ([]model.MigrationLog, error) {
	q := "SELECT " + migrationColumns + " FROM migration_logs"
	var args []any
	if status != "" {
		q += " WHERE status = ?"
		args = append(args, status)
	}
	rows, err := r.db.QueryContext(ctx, q+" ORDER BY created_at DESC, id DESC", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.MigrationLog{}
	for rows.Next() {
		m, err := scanMigrationLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// Complete moves a processing log to completed.
func (r *MigrationLogRepo) Complete(ctx context.Context, id uint64, processedRows int, message string) error {
	return r.finish(ctx, id, model.MigrationCompleted, &processedRows, message)
}

// Fail moves a processing log to failed.
func (r *MigrationLogRepo) Fail(ctx context.Context, id uint64, message string) error {
	return r.finish(ctx, id, model.MigrationFailed, nil, message)
}

func (r *MigrationLogRepo) finish(ctx context.Context, id uint64, status string, processed *int, message string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE migration_logs SET status = ?, processed_rows = ?, result_message = ? WHERE id = ? AND status = 'processing'",
		status, processed, message, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

// ResetForRetry moves a failed log back to processing and increments
// retry_count.  ErrConflict means the log was not failed.
func (r *MigrationLogRepo) ResetForRetry(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE migration_logs SET status = 'processing', retry_count = retry_count + 1,
		        processed_rows = NULL, result_message = NULL
		 WHERE id = ? AND status = 'failed'`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}
