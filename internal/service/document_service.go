package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/iliyamo/evms/internal/apperror"
	"github.com/iliyamo/evms/internal/model"
	"github.com/iliyamo/evms/internal/repository"
	"github.com/iliyamo/evms/internal/storage"
)

// DocumentStore is the documents persistence.
type DocumentStore interface {
	Create(ctx context.Context, d *model.Document) error
	GetByID(ctx context.Context, id uint64) (*model.Document, error)
	ListByEvent(ctx context.Context, eventID uint64) ([]model.Document, error)
	Delete(ctx context.Context, id uint64) error
}

// FileStore keeps uploaded bytes.  storage.Disk implements it.
type FileStore interface {
	Save(src io.Reader, p storage.Policy) (*storage.Saved, error)
	Open(rel string) (*os.File, error)
	Exists(rel string) bool
	Remove(rel string) error
}

// UploadInput is one uploaded file.
type UploadInput struct {
	File         io.Reader
	OriginalName string
	Description  *string
}

// DocumentService stores files attached to events.
type DocumentService struct {
	docs   DocumentStore
	events eventLookup
	files  FileStore
	policy storage.Policy
	log    zerolog.Logger
}

func NewDocumentService(docs DocumentStore, events eventLookup, files FileStore, policy storage.Policy, log zerolog.Logger) *DocumentService {
	return &DocumentService{docs: docs, events: events, files: files, policy: policy, log: log}
}

// Upload attaches a file to an event.  Staff and the event's requester may
// upload.  If the metadata row cannot be written the stored file is
// removed again.
func (s *DocumentService) Upload(ctx context.Context, actor Actor, eventID uint64, in UploadInput) (*model.Document, error) {
	ev, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, notFound(err, apperror.ErrEventNotFound)
	}
	if !actor.IsStaff() && ev.RequesterID != actor.UserID {
		return nil, apperror.ErrForbidden
	}
	saved, err := s.files.Save(in.File, s.policy)
	if err != nil {
		return nil, uploadErr(err)
	}
	d := &model.Document{
		EventID:      eventID,
		Filename:     saved.Filename,
		OriginalName: cleanName(in.OriginalName, saved.Filename),
		Path:         saved.Path,
		MimeType:     saved.MimeType,
		SizeBytes:    saved.Size,
		Description:  trimmed(in.Description),
		UploadedBy:   actor.UserID,
	}
	if err := s.docs.Create(ctx, d); err != nil {
		if rerr := s.files.Remove(saved.Path); rerr != nil {
			s.log.Error().Err(rerr).Str("path", saved.Path).Msg("remove orphaned upload")
		}
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperror.ErrEventNotFound
		}
		return nil, internal(err)
	}
	return d, nil
}

func (s *DocumentService) List(ctx context.Context, eventID uint64) ([]model.Document, error) {
	out, err := s.docs.ListByEvent(ctx, eventID)
	return out, internal(err)
}

func (s *DocumentService) Get(ctx context.Context, id uint64) (*model.Document, error) {
	d, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, apperror.ErrDocumentNotFound)
	}
	return d, nil
}

// Open returns the metadata and an open handle on the stored file.  The
// caller closes the file.
func (s *DocumentService) Open(ctx context.Context, id uint64) (*model.Document, *os.File, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	f, err := s.files.Open(d.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, apperror.ErrFileMissing
		}
		return nil, nil, internal(err)
	}
	return d, f, nil
}

// Delete removes the row and the file.  The uploader and admins may delete.
func (s *DocumentService) Delete(ctx context.Context, actor Actor, id uint64) error {
	d, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !actor.IsAdmin() && d.UploadedBy != actor.UserID {
		return apperror.ErrForbidden
	}
	// file first: a failed removal keeps the row so the delete can be retried
	if err := s.files.Remove(d.Path); err != nil {
		return internal(fmt.Errorf("remove document file %s: %w", d.Path, err))
	}
	if err := s.docs.Delete(ctx, id); err != nil {
		return notFound(err, apperror.ErrDocumentNotFound)
	}
	return nil
}

// uploadErr classifies storage failures.
func uploadErr(err error) error {
	switch {
	case errors.Is(err, storage.ErrTooLarge):
		return invalid("file", "exceeds the maximum upload size")
	case errors.Is(err, storage.ErrUnsupportedType):
		return invalid("file", "file type is not allowed")
	case errors.Is(err, storage.ErrEmpty):
		return invalid("file", "is empty")
	}
	return internal(err)
}

// cleanName keeps the base name of the client supplied filename.
func cleanName(name, fallback string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	if name == "" || name == "." || name == "/" {
		return fallback
	}
	return name
}
