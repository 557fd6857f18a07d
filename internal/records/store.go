package records

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/MrPrayat/DA235X/internal/schema"
)

// ErrExists is returned by Template when a record is already on disk.
var ErrExists = errors.New("record already exists")

// ErrNotFound is returned when no record exists for an ID.
var ErrNotFound = errors.New("record not found")

// Store keeps records as <dir>/<id>.json. Read-modify-write cycles are
// serialized per document ID and files are replaced atomically.
type Store struct {
	dir    string
	schema *schema.Schema
	seed   schema.SeedPolicy
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a store. Seeded ground truths follow seed.
func NewStore(dir string, s *schema.Schema, seed schema.SeedPolicy, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if s == nil {
		s = schema.Default()
	}
	if seed == "" {
		seed = schema.SeedNull
	}
	return &Store{
		dir:    dir,
		schema: s,
		seed:   seed,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// Dir returns the record directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the file path for a document ID.
func (s *Store) Path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *Store) lock(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Exists reports whether a record file exists for id.
func (s *Store) Exists(id string) bool {
	_, err := os.Stat(s.Path(id))
	return err == nil
}

// Save writes the normalized model output for id. An existing ground truth
// is kept untouched; a new record gets a seeded one.
func (s *Store) Save(id string, modelOutput schema.Record) (*ExtractionRecord, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	unlock := s.lock(id)
	defer unlock()

	rec := &ExtractionRecord{
		PDFID:       id,
		ModelOutput: s.schema.Normalize(modelOutput),
	}

	existing, err := s.read(id)
	switch {
	case err == nil && existing.GroundTruth != nil:
		rec.GroundTruth = existing.GroundTruth
	case err == nil || errors.Is(err, ErrNotFound):
		rec.GroundTruth = s.schema.Seed(s.seed)
	default:
		// A corrupt file may still hold annotations; refuse to clobber it.
		return nil, fmt.Errorf("failed to read existing record %s: %w", id, err)
	}

	if err := s.write(rec); err != nil {
		return nil, err
	}
	s.logger.Debug("saved record", "pdf_id", id, "path", s.Path(id))
	return rec, nil
}

// Load reads the record for id.
func (s *Store) Load(id string) (*ExtractionRecord, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	unlock := s.lock(id)
	defer unlock()
	return s.read(id)
}

// IDs lists the document IDs with a record file, sorted.
func (s *Store) IDs() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, ".") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

// List loads every record. Files that fail to decode are logged and skipped.
func (s *Store) List() ([]ExtractionRecord, error) {
	ids, err := s.IDs()
	if err != nil {
		return nil, err
	}
	out := make([]ExtractionRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Load(id)
		if err != nil {
			s.logger.Warn("skipping unreadable record", "pdf_id", id, "error", err)
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

// Template writes an empty record for manual labeling: all-null model output
// and a seeded ground truth. It refuses to overwrite an existing record.
func (s *Store) Template(id string) (*ExtractionRecord, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	unlock := s.lock(id)
	defer unlock()

	if s.Exists(id) {
		return nil, fmt.Errorf("%s: %w", id, ErrExists)
	}
	rec := &ExtractionRecord{
		PDFID:       id,
		ModelOutput: s.schema.Normalize(nil),
		GroundTruth: s.schema.Seed(s.seed),
	}
	if err := s.write(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// ConformResult reports what Conform did.
type ConformResult struct {
	Checked int      `json:"checked" yaml:"checked"`
	Changed []string `json:"changed" yaml:"changed"`
	Failed  []string `json:"failed,omitempty" yaml:"failed,omitempty"`
}

// Conform rewrites every record into the current schema shape. With
// fillBooleans, null boolean values in the ground truth become false.
func (s *Store) Conform(fillBooleans bool) (*ConformResult, error) {
	ids, err := s.IDs()
	if err != nil {
		return nil, err
	}
	res := &ConformResult{}
	for _, id := range ids {
		changed, err := s.conformOne(id, fillBooleans)
		res.Checked++
		if err != nil {
			s.logger.Warn("failed to conform record", "pdf_id", id, "error", err)
			res.Failed = append(res.Failed, id)
			continue
		}
		if changed {
			res.Changed = append(res.Changed, id)
		}
	}
	return res, nil
}

func (s *Store) conformOne(id string, fillBooleans bool) (bool, error) {
	unlock := s.lock(id)
	defer unlock()

	rec, err := s.read(id)
	if err != nil {
		return false, err
	}

	next := &ExtractionRecord{
		PDFID:       id,
		ModelOutput: s.schema.Normalize(rec.ModelOutput),
	}
	if rec.GroundTruth == nil {
		next.GroundTruth = s.schema.Seed(s.seed)
	} else {
		next.GroundTruth = s.schema.Normalize(rec.GroundTruth)
	}
	if fillBooleans {
		next.GroundTruth = s.schema.FillBooleans(next.GroundTruth)
	}

	if rec.PDFID == id && reflect.DeepEqual(rec.ModelOutput, next.ModelOutput) &&
		reflect.DeepEqual(rec.GroundTruth, next.GroundTruth) {
		return false, nil
	}
	return true, s.write(next)
}

func (s *Store) read(id string) (*ExtractionRecord, error) {
	data, err := os.ReadFile(s.Path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record %s: %w", id, err)
	}
	var rec ExtractionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record %s: %w", id, err)
	}
	if rec.PDFID == "" {
		rec.PDFID = id
	}
	return &rec, nil
}

func (s *Store) write(rec *ExtractionRecord) error {
	return writeJSONAtomic(s.Path(rec.PDFID), rec)
}

// writeJSONAtomic writes v as indented JSON through a temp file and rename.
func writeJSONAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// ValidateID rejects document ids that are empty or could escape the
// directory they are joined to.
func ValidateID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return fmt.Errorf("invalid document id %q", id)
	}
	return nil
}
