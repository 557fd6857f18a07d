package prompts

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const overrideExt = ".tmpl"

// Store reads and writes prompt overrides as <dir>/<key>.tmpl files.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore creates a store rooted at dir. The directory is created lazily on
// the first write.
func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, logger: logger}
}

// Dir returns the override directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid prompt key %q", key)
	}
	return filepath.Join(s.dir, key+overrideExt), nil
}

// Get returns the override for key, or nil when none exists.
func (s *Store) Get(key string) (*Override, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt override %s: %w", key, err)
	}
	return &Override{Key: key, Text: string(data), Path: p}, nil
}

// List returns every override in the directory, sorted by key.
func (s *Store) List() ([]Override, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list prompt overrides: %w", err)
	}

	var out []Override
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != overrideExt {
			continue
		}
		key := strings.TrimSuffix(e.Name(), overrideExt)
		o, err := s.Get(key)
		if err != nil {
			return nil, err
		}
		if o != nil {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Set writes an override for key.
func (s *Store) Set(key, text string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create prompt directory: %w", err)
	}
	if err := os.WriteFile(p, []byte(text), 0o644); err != nil {
		return fmt.Errorf("failed to write prompt override %s: %w", key, err)
	}
	s.logger.Info("prompt override saved", "key", key, "path", p)
	return nil
}

// Clear removes the override for key. Clearing a missing override is not an
// error.
func (s *Store) Clear(key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove prompt override %s: %w", key, err)
	}
	return nil
}
