package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/iliyamo/evms/internal/apperror"
	"github.com/iliyamo/evms/internal/model"
	"github.com/iliyamo/evms/internal/queue"
	"github.com/iliyamo/evms/internal/repository"
	"github.com/iliyamo/evms/internal/storage"
)

// MigrationStore is the migration_logs persistence.
type MigrationStore interface {
	Create(ctx context.Context, m *model.MigrationLog) error
	GetByID(ctx context.Context, id uint64) (*model.MigrationLog, error)
	List(ctx context.Context, status string) ([]model.MigrationLog, error)
	Complete(ctx context.Context, id uint64, processedRows int, message string) error
	Fail(ctx context.Context, id uint64, message string) error
	ResetForRetry(ctx context.Context, id uint64) error
}

// JobQueue accepts migration jobs.  queue.Publisher and queue.Local
// implement it.
type JobQueue interface {
	Submit(ctx context.Context, job queue.MigrationJob) error
}

// MigrationUploadInput is one uploaded migration file.
type MigrationUploadInput struct {
	File          io.Reader
	OriginalName  string
	MigrationType string
}

// MigrationService accepts migration files and tracks their logs.  The
// processing itself happens in MigrationProcessor on a worker.
type MigrationService struct {
	logs   MigrationStore
	files  FileStore
	jobs   JobQueue
	policy storage.Policy
	log    zerolog.Logger
	clock  Clock
}

func NewMigrationService(logs MigrationStore, files FileStore, jobs JobQueue, policy storage.Policy, log zerolog.Logger) *MigrationService {
	return &MigrationService{logs: logs, files: files, jobs: jobs, policy: policy, log: log}
}

// Upload stores the file, creates a processing log and queues the job.
// The log is returned immediately; callers poll it for the outcome.
func (s *MigrationService) Upload(ctx context.Context, actor Actor, in MigrationUploadInput) (*model.MigrationLog, error) {
	mt := strings.TrimSpace(in.MigrationType)
	if mt == "" {
		return nil, invalid("migrationType", "is required")
	}
	saved, err := s.files.Save(in.File, s.policy)
	if err != nil {
		return nil, uploadErr(err)
	}
	m := &model.MigrationLog{
		Filename:      saved.Filename,
		OriginalName:  cleanName(in.OriginalName, saved.Filename),
		Path:          saved.Path,
		MigrationType: mt,
		UploadedBy:    actor.UserID,
	}
	if err := s.logs.Create(ctx, m); err != nil {
		if rerr := s.files.Remove(saved.Path); rerr != nil {
			s.log.Error().Err(rerr).Str("path", saved.Path).Msg("remove orphaned migration file")
		}
		return nil, internal(err)
	}
	s.submit(ctx, m, 1)
	return s.reload(ctx, m)
}

// Retry requeues a failed log whose file is still on disk.
func (s *MigrationService) Retry(ctx context.Context, id uint64) (*model.MigrationLog, error) {
	m, err := s.logs.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, apperror.ErrMigrationNotFound)
	}
	if m.Status != model.MigrationFailed {
		return nil, apperror.ErrRetryNotAllowed
	}
	if !s.files.Exists(m.Path) {
		return nil, apperror.ErrFileMissing
	}
	if err := s.logs.ResetForRetry(ctx, id); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperror.ErrRetryNotAllowed
		}
		return nil, internal(err)
	}
	s.submit(ctx, m, m.RetryCount+2)
	return s.reload(ctx, m)
}

func (s *MigrationService) Get(ctx context.Context, id uint64) (*model.MigrationLog, error) {
	m, err := s.logs.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, apperror.ErrMigrationNotFound)
	}
	return m, nil
}

func (s *MigrationService) List(ctx context.Context, status string) ([]model.MigrationLog, error) {
	switch status {
	case "", model.MigrationProcessing, model.MigrationCompleted, model.MigrationFailed:
	default:
		return nil, apperror.ErrInvalidStatus.WithField("status", "must be one of: processing, completed, failed")
	}
	out, err := s.logs.List(ctx, status)
	return out, internal(err)
}

// submit queues the job.  If the queue refuses it the log is failed right
// away so it can be retried.
func (s *MigrationService) submit(ctx context.Context, m *model.MigrationLog, attempt int) {
	job := queue.MigrationJob{LogID: m.ID, Path: m.Path, Attempt: attempt, SubmittedAt: s.clock.now()}
	if err := s.jobs.Submit(ctx, job); err != nil {
		s.log.Error().Err(err).Uint64("log_id", m.ID).Msg("queue migration job")
		if ferr := s.logs.Fail(context.WithoutCancel(ctx), m.ID, "could not queue job: "+err.Error()); ferr != nil {
			s.log.Error().Err(ferr).Uint64("log_id", m.ID).Msg("mark migration failed")
		}
	}
}

func (s *MigrationService) reload(ctx context.Context, m *model.MigrationLog) (*model.MigrationLog, error) {
	fresh, err := s.logs.GetByID(ctx, m.ID)
	if err != nil {
		return nil, internal(err)
	}
	return fresh, nil
}

// MigrationProcessor runs queued migration jobs.  Processing counts data
// rows; it does not transform or import anything.
type MigrationProcessor struct {
	logs  MigrationStore
	files FileStore
	log   zerolog.Logger
}

func NewMigrationProcessor(logs MigrationStore, files FileStore, log zerolog.Logger) *MigrationProcessor {
	return &MigrationProcessor{logs: logs, files: files, log: log}
}

// Process marks the log completed with the number of data rows, or failed
// with the error.  It matches queue.Handler.
func (p *MigrationProcessor) Process(ctx context.Context, job queue.MigrationJob) error {
	rows, err := p.countRows(job.Path)
	if err != nil {
		if ferr := p.logs.Fail(ctx, job.LogID, err.Error()); ferr != nil && !errors.Is(ferr, repository.ErrConflict) {
			return fmt.Errorf("mark failed: %w", ferr)
		}
		p.log.Warn().Err(err).Uint64("log_id", job.LogID).Int("attempt", job.Attempt).Msg("migration failed")
		return nil
	}
	msg := fmt.Sprintf("Processed %d rows", rows)
	if err := p.logs.Complete(ctx, job.LogID, rows, msg); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// already finished by an earlier delivery
			p.log.Debug().Uint64("log_id", job.LogID).Msg("migration already finished")
			return nil
		}
		return fmt.Errorf("mark completed: %w", err)
	}
	p.log.Info().Uint64("log_id", job.LogID).Int("rows", rows).Int("attempt", job.Attempt).Msg("migration completed")
	return nil
}

// countRows returns the number of non-empty lines minus one header row,
// never below zero.
func (p *MigrationProcessor) countRows(path string) (int, error) {
	f, err := p.files.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open migration file: %w", err)
	}
	defer f.Close()
	return CountDataRows(f)
}

// CountDataRows counts non-blank lines of r and subtracts a header row.
func CountDataRows(r io.Reader) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	n := 0
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) != "" {
			n++
		}
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("read migration file: %w", err)
	}
	return max(n-1, 0), nil
}
