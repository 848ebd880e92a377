// Package artifact reads model artifacts from a directory and decodes the
// JSON model formats the service ships with.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/okian/propensity/internal/domain/registry"
	"github.com/okian/propensity/pkg/metrics"
)

// DirStore lists and opens artifacts stored as files in one directory.
// Subdirectories are ignored.
type DirStore struct {
	dir       string
	extension string
	fsys      fs.FS
}

// StoreOption applies a configuration option to the DirStore.
type StoreOption func(*DirStore)

// WithExtension sets the file extension that marks an artifact.
func WithExtension(ext string) StoreOption {
	return func(s *DirStore) {
		if ext == "" {
			return
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		s.extension = ext
	}
}

// WithFS reads from fsys instead of the OS directory. Used in tests.
func WithFS(fsys fs.FS) StoreOption {
	return func(s *DirStore) {
		if fsys != nil {
			s.fsys = fsys
		}
	}
}

// NewDirStore creates a store rooted at dir.
func NewDirStore(dir string, opts ...StoreOption) *DirStore {
	s := &DirStore{
		dir:       dir,
		extension: ".json",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.fsys == nil {
		s.fsys = os.DirFS(dir)
	}
	return s
}

// Dir returns the directory the store reads from.
func (s *DirStore) Dir() string { return s.dir }

// List returns the names of regular files carrying the artifact extension.
// A missing directory yields an empty list.
func (s *DirStore) List(_ context.Context) ([]string, error) {
	entries, err := fs.ReadDir(s.fsys, ".")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		metrics.RecordErrorByComponent("artifact_store", "list_failed")
		return nil, fmt.Errorf("read %s: %w", s.dir, err)
	}

	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), s.extension) {
			continue
		}
		out = append(out, e.Name())
	}
	return out, nil
}

// Open returns the contents of the named artifact.
func (s *DirStore) Open(_ context.Context, identifier string) (io.ReadCloser, error) {
	if !validIdentifier(identifier) {
		return nil, fmt.Errorf("%w: invalid identifier %q", registry.ErrArtifactNotFound, identifier)
	}

	f, err := s.fsys.Open(identifier)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", registry.ErrArtifactNotFound, filepath.Join(s.dir, identifier))
		}
		return nil, fmt.Errorf("open %s: %w", identifier, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat %s: %w", identifier, err)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s is a directory", registry.ErrArtifactNotFound, identifier)
	}
	return f, nil
}

// validIdentifier accepts bare file names only.
func validIdentifier(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`) && fs.ValidPath(id)
}
