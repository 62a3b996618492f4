package storage

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDisk(t *testing.T) *Disk {
	t.Helper()
	d, err := NewDisk(t.TempDir())
	require.NoError(t, err)
	return d
}

func TestSaveCSV(t *testing.T) {
	d := newDisk(t)
	saved, err := d.Save(strings.NewReader("name,email\nann,a@x.edu\n"), Migrations(1024))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(saved.Path, "migrations/"))
	assert.Equal(t, "text/csv", saved.MimeType)
	assert.Equal(t, int64(23), saved.Size)
	assert.True(t, d.Exists(saved.Path))

	f, err := d.Open(saved.Path)
	require.NoError(t, err)
	defer f.Close()
	b, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "name,email\nann,a@x.edu\n", string(b))
}

func TestSaveRejectsTooLargeAndCleansUp(t *testing.T) {
	d := newDisk(t)
	body := strings.Repeat("a,b\n", 100)
	_, err := d.Save(strings.NewReader(body), Migrations(50))
	assert.ErrorIs(t, err, ErrTooLarge)

	entries, err := os.ReadDir(filepath.Join(d.Root, "migrations"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSaveRejectsUnsupportedType(t *testing.T) {
	d := newDisk(t)
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	_, err := d.Save(bytes.NewReader(png), Migrations(1024))
	assert.ErrorIs(t, err, ErrUnsupportedType)

	saved, err := d.Save(bytes.NewReader(png), Documents(1024))
	require.NoError(t, err)
	assert.Equal(t, "image/png", saved.MimeType)
	assert.True(t, strings.HasSuffix(saved.Filename, ".png"))
}

func TestSaveRejectsEmpty(t *testing.T) {
	_, err := newDisk(t).Save(strings.NewReader(""), Documents(1024))
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestRemoveAndPathEscape(t *testing.T) {
	d := newDisk(t)
	saved, err := d.Save(strings.NewReader("hello world"), Documents(1024))
	require.NoError(t, err)

	require.NoError(t, d.Remove(saved.Path))
	assert.False(t, d.Exists(saved.Path))
	assert.NoError(t, d.Remove(saved.Path), "removing a missing file is not an error")

	_, err = d.Open("../etc/passwd")
	assert.ErrorIs(t, err, ErrBadPath)
	assert.ErrorIs(t, d.Remove("/etc/passwd"), ErrBadPath)
}

func TestSaveRejectsMarkupSubtypesOfText(t *testing.T) {
	d := newDisk(t)
	bodies := map[string]string{
		"html": "<!DOCTYPE html><html><body><script>alert(1)</script></body></html>",
		"svg":  `<svg xmlns="http://www.w3.org/2000/svg" width="1" height="1"></svg>`,
		"php":  "<?php echo 'hi'; ?>",
	}
	for name, body := range bodies {
		for _, p := range []Policy{Documents(1024), Migrations(1024)} {
			_, err := d.Save(strings.NewReader(body), p)
			assert.ErrorIs(t, err, ErrUnsupportedType, "%s in %s", name, p.Dir)
		}
	}

	for _, dir := range []string{"documents", "migrations"} {
		entries, err := os.ReadDir(filepath.Join(d.Root, dir))
		if err == nil {
			assert.Empty(t, entries, dir)
		}
	}
}

func TestSaveAcceptsJSONMigration(t *testing.T) {
	saved, err := newDisk(t).Save(strings.NewReader(`[{"name":"Ann","email":"a@x.edu"}]`), Migrations(1024))
	require.NoError(t, err)
	assert.Equal(t, "application/json", saved.MimeType)
}
