// Package local persists the seen-set state as a JSON file on the local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/vin-monitor/internal/seen"
	"github.com/JakeFAU/vin-monitor/internal/storage"
)

// DefaultPath is the state file used when none is configured.
const DefaultPath = "state.json"

// Config captures the parameters for the local state file.
type Config struct {
	// Path is the state file. Relative paths resolve against the working directory.
	Path string `mapstructure:"path" yaml:"path"`
}

// StateStore reads and atomically replaces a single JSON state file.
type StateStore struct {
	path string

	// rename replaces the target with the finished temp file. Tests swap it to
	// simulate a crash before the replace happens.
	rename func(oldpath, newpath string) error
}

// New creates a file-backed state store. The parent directory is created if missing.
func New(cfg Config) (*StateStore, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = DefaultPath
	}

	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if mkErr := os.MkdirAll(dir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat state directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("state directory %q is not a directory", dir)
	}

	return &StateStore{path: path, rename: os.Rename}, nil
}

// Path returns the state file location.
func (s *StateStore) Path() string {
	return s.path
}

// Describe implements storage.Store.
func (s *StateStore) Describe() string {
	return "file://" + s.path
}

// Load implements storage.Store. A missing file is an empty state without error.
func (s *StateStore) Load(_ context.Context) (*seen.State, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return seen.New(), nil
	}
	if err != nil {
		return seen.New(), fmt.Errorf("read state file %s: %w", s.path, err)
	}
	st, err := seen.Decode(data)
	if err != nil {
		return seen.New(), fmt.Errorf("%w: %s: %v", storage.ErrCorruptState, s.path, err)
	}
	return st, nil
}

// Save implements storage.Store. The document is written to a temp file in the
// same directory, flushed to disk and renamed over the target, so a crash
// leaves either the old or the new file, never a partial one.
func (s *StateStore) Save(_ context.Context, state *seen.State) error {
	data, err := seen.Encode(state)
	if err != nil {
		return err
	}

	dir, base := filepath.Split(s.path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := s.rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	committed = true

	syncDir(dir)
	return nil
}

// Close implements storage.Store.
func (s *StateStore) Close() error {
	return nil
}

// syncDir flushes the directory entry after a rename. Not every platform
// supports fsync on directories, so failures are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir) // #nosec G304 -- dir is derived from configured state path.
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
