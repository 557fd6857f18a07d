package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"

	"gopkg.in/yaml.v3"
)

// ErrInvalidKey is returned when a config key contains invalid characters.
var ErrInvalidKey = errors.New("invalid config key")

// ValidateKey checks if a config key contains only allowed characters.
// Valid keys contain: letters, digits, dots, underscores, and hyphens.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidKey)
	}
	for i, r := range key {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '_' && r != '-' {
			return fmt.Errorf("%w: invalid character %q at position %d", ErrInvalidKey, r, i)
		}
	}
	if key[0] == '.' || key[len(key)-1] == '.' || strings.Contains(key, "..") {
		return fmt.Errorf("%w: empty path segment", ErrInvalidKey)
	}
	return nil
}

// Store reads and edits individual dotted keys of a config file.
type Store interface {
	// Get returns a single config entry by key, or nil if it is not set.
	Get(key string) (*Entry, error)

	// Set creates or updates a config entry.
	Set(key string, value any) error

	// GetAll returns all config entries.
	GetAll() (map[string]Entry, error)

	// GetByPrefix returns config entries matching the prefix.
	GetByPrefix(prefix string) (map[string]Entry, error)

	// Delete removes a config entry.
	Delete(key string) error
}

// Entry represents a single configuration entry.
type Entry struct {
	Key         string `json:"key" yaml:"key"`
	Value       any    `json:"value" yaml:"value"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// FileStore implements Store on the YAML config file. Comments in the file
// are not preserved by Set or Delete.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a store for the config file at path.
func NewStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the config file location.
func (s *FileStore) Path() string {
	return s.path
}

// Get returns a single config entry by key.
func (s *FileStore) Get(key string) (*Entry, error) {
	all, err := s.GetAll()
	if err != nil {
		return nil, err
	}
	e, ok := all[key]
	if !ok {
		return nil, nil // Not found
	}
	return &e, nil
}

// Set creates or updates a config entry.
func (s *FileStore) Set(key string, value any) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	parts := strings.Split(key, ".")
	node := doc
	for _, p := range parts[:len(parts)-1] {
		child, ok := node[p].(map[string]any)
		if !ok {
			child = make(map[string]any)
			node[p] = child
		}
		node = child
	}
	node[parts[len(parts)-1]] = value
	return s.write(doc)
}

// GetAll returns all config entries.
func (s *FileStore) GetAll() (map[string]Entry, error) {
	s.mu.Lock()
	doc, err := s.read()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	flat := make(map[string]any)
	flatten("", doc, flat)

	result := make(map[string]Entry, len(flat))
	for k, v := range flat {
		result[k] = Entry{Key: k, Value: v, Description: Describe(k)}
	}
	return result, nil
}

// GetByPrefix returns config entries matching the prefix.
func (s *FileStore) GetByPrefix(prefix string) (map[string]Entry, error) {
	all, err := s.GetAll()
	if err != nil {
		return nil, err
	}

	result := make(map[string]Entry)
	for key, entry := range all {
		if strings.HasPrefix(key, prefix) {
			result[key] = entry
		}
	}
	return result, nil
}

// Delete removes a config entry by key. Sections left empty are removed.
func (s *FileStore) Delete(key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	if !deletePath(doc, strings.Split(key, ".")) {
		return nil // Already doesn't exist
	}
	return s.write(doc)
}

func deletePath(node map[string]any, parts []string) bool {
	if len(parts) == 1 {
		_, ok := node[parts[0]]
		delete(node, parts[0])
		return ok
	}
	child, ok := node[parts[0]].(map[string]any)
	if !ok {
		return false
	}
	removed := deletePath(child, parts[1:])
	if len(child) == 0 {
		delete(node, parts[0])
	}
	return removed
}

// read must be called with the lock held. A missing file is empty.
func (s *FileStore) read() (map[string]any, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]any), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	doc := make(map[string]any)
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return doc, nil
}

// write must be called with the lock held.
func (s *FileStore) write(doc map[string]any) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return os.Rename(tmp.Name(), s.path)
}

// Flatten turns a config value into dotted leaf keys, e.g.
// "providers.openai.model".
func Flatten(v any) (map[string]any, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	doc := make(map[string]any)
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	out := make(map[string]any)
	flatten("", doc, out)
	return out, nil
}

func flatten(prefix string, node map[string]any, out map[string]any) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if child, ok := v.(map[string]any); ok && len(child) > 0 {
			flatten(key, child, out)
			continue
		}
		out[key] = v
	}
}

// SortedKeys returns the keys of entries in order.
func SortedKeys(entries map[string]Entry) []string {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ParseValue reads a command-line value as a YAML scalar, so "5" is an int,
// "true" a bool and "[a, b]" a list. Anything unparsable stays a string.
func ParseValue(s string) any {
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil || v == nil {
		return s
	}
	return v
}
