// Package storage keeps uploaded files on local disk under one root
// directory.  Stored names are random uuids; the sniffed MIME type, not the
// client supplied one, decides whether a file is accepted.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	// ErrTooLarge is returned when the upload exceeds the policy limit.
	ErrTooLarge = errors.New("file too large")
	// ErrUnsupportedType is returned when the sniffed type is not allowed.
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrEmpty is returned for zero-byte uploads.
	ErrEmpty = errors.New("file is empty")
	// ErrBadPath is returned for paths that escape the root.
	ErrBadPath = errors.New("invalid storage path")
)

// sniffLen is how many leading bytes mimetype inspects.
const sniffLen = 3072

// Policy constrains one kind of upload.
type Policy struct {
	Dir      string   // subdirectory under the root
	MaxBytes int64    // 0 means unlimited
	Allowed  []string // MIME types matched exactly against the sniffed type
}

// Documents accepts office documents, PDFs, images and text.
func Documents(maxBytes int64) Policy {
	return Policy{
		Dir:      "documents",
		MaxBytes: maxBytes,
		Allowed: []string{
			"application/pdf",
			"image/png", "image/jpeg", "image/gif", "image/webp",
			"application/msword",
			"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			"application/vnd.ms-excel",
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			"application/vnd.ms-powerpoint",
			"application/vnd.openxmlformats-officedocument.presentationml.presentation",
			"text/plain", "text/csv",
		},
	}
}

// Migrations accepts CSV, JSON, plain text and spreadsheets.
func Migrations(maxBytes int64) Policy {
	return Policy{
		Dir:      "migrations",
		MaxBytes: maxBytes,
		Allowed: []string{
			"text/csv", "text/plain", "application/json",
			"application/vnd.ms-excel",
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		},
	}
}

func (p Policy) allows(mt *mimetype.MIME) bool {
	for _, a := range p.Allowed {
		if mt.Is(a) {
			return true
		}
	}
	return false
}

// Saved describes a stored file.  Path is relative to the root.
type Saved struct {
	Filename string
	Path     string
	MimeType string
	Size     int64
}

// Disk stores files under Root.
type Disk struct {
	Root string
}

// NewDisk creates root if needed.
func NewDisk(root string) (*Disk, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload root: %w", err)
	}
	return &Disk{Root: root}, nil
}

// Save streams src to a new file under p.Dir.  Nothing is left on disk
// when it fails.
func (d *Disk) Save(src io.Reader, p Policy) (*Saved, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return nil, ErrEmpty
	}
	mt := mimetype.Detect(head)
	if !p.allows(mt) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, mt.String())
	}

	dir := filepath.Join(d.Root, p.Dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	name := uuid.NewString() + mt.Extension()
	full := filepath.Join(dir, name)
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}

	var body io.Reader = io.MultiReader(bytes.NewReader(head), src)
	if p.MaxBytes > 0 {
		body = io.LimitReader(body, p.MaxBytes+1)
	}
	size, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && p.MaxBytes > 0 && size > p.MaxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(full)
		return nil, err
	}

	mimeType, _, _ := strings.Cut(mt.String(), ";")
	return &Saved{
		Filename: name,
		Path:     filepath.ToSlash(filepath.Join(p.Dir, name)),
		MimeType: mimeType,
		Size:     size,
	}, nil
}

// resolve maps a stored relative path to an absolute one inside Root.
func (d *Disk) resolve(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || clean == ".." {
		return "", ErrBadPath
	}
	return filepath.Join(d.Root, clean), nil
}

// Open opens a stored file for reading.
func (d *Disk) Open(rel string) (*os.File, error) {
	full, err := d.resolve(rel)
	if err != nil {
		return nil, err
	}
	return os.Open(full)
}

// Exists reports whether a stored file is still present.
func (d *Disk) Exists(rel string) bool {
	full, err := d.resolve(rel)
	if err != nil {
		return false
	}
	st, err := os.Stat(full)
	return err == nil && st.Mode().IsRegular()
}

// Remove deletes a stored file.  A file that is already gone is not an
// error.
func (d *Disk) Remove(rel string) error {
	full, err := d.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
