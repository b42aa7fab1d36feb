// Package staging spools uploaded files to local disk so that several files
// of one multipart request can be streamed to the blob store concurrently.
package staging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Area is a directory shared by concurrent uploads. Every staged file gets a
// unique name so attempts never collide.
type Area struct {
	dir string
	now func() time.Time
}

// New creates the staging directory if needed
func New(dir string) (*Area, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "storefront-staging")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create staging dir: %w", err)
	}
	return &Area{dir: dir, now: time.Now}, nil
}

// Dir returns the staging directory
func (a *Area) Dir() string {
	return a.dir
}

// File is one staged upload. Remove must be called once the file is no
// longer needed, whatever the outcome of the request.
type File struct {
	Name     string // original client file name
	MimeType string
	path     string
	size     int64

	once sync.Once
	err  error
}

// Stage copies r into a new file in the area. A partially written file is
// removed before the error is returned.
func (a *Area) Stage(name, mimeType string, r io.Reader) (*File, error) {
	f, err := os.OpenFile(filepath.Join(a.dir, a.fileName(name)), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create staging file: %w", err)
	}

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(f.Name())
		return nil, err
	}

	return &File{Name: name, MimeType: mimeType, path: f.Name(), size: n}, nil
}

func (a *Area) fileName(name string) string {
	base := unsafeChars.ReplaceAllString(filepath.Base(name), "_")
	base = strings.Trim(base, "._")
	if base == "" {
		base = "upload"
	}
	if len(base) > 100 {
		base = base[len(base)-100:]
	}
	return fmt.Sprintf("%d-%s-%s", a.now().UnixNano(), uuid.NewString(), base)
}

// Path returns the location of the staged file
func (f *File) Path() string {
	return f.path
}

// Size returns the number of bytes staged
func (f *File) Size() int64 {
	return f.size
}

// Open opens the staged content for reading
func (f *File) Open() (*os.File, error) {
	return os.Open(f.path)
}

// Remove deletes the staged file. It is safe to call more than once.
func (f *File) Remove() error {
	f.once.Do(func() {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			f.err = err
		}
	})
	return f.err
}

// RemoveAll removes every file in files, joining the errors
func RemoveAll(files []*File) error {
	var errs []error
	for _, f := range files {
		if f != nil {
			errs = append(errs, f.Remove())
		}
	}
	return errors.Join(errs...)
}

// Sweep removes staged files older than age, left behind by a crashed
// process. It returns the number of files removed.
func (a *Area) Sweep(age time.Duration) (int, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return 0, err
	}
	cutoff := a.now().Add(-age)
	removed := 0
	var errs []error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(a.dir, e.Name())); err != nil {
				errs = append(errs, err)
				continue
			}
			removed++
		}
	}
	return removed, errors.Join(errs...)
}
