package evaluate

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RunLogHeader is the column layout of the run log.
var RunLogHeader = []string{
	"timestamp", "run_name", "notes",
	"true_positives", "false_positives", "false_negatives",
	"accuracy", "precision", "recall", "f1_score",
}

// Run is one row of the run log.
type Run struct {
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Name      string    `json:"run_name" yaml:"run_name"`
	Notes     string    `json:"notes,omitempty" yaml:"notes,omitempty"`
	Counts    Counts    `json:"counts" yaml:"counts"`
	Metrics   Metrics   `json:"metrics" yaml:"metrics"`
}

// NewRun builds a run row from a report's micro summary.
func NewRun(name, notes string, r *Report, at time.Time) Run {
	return Run{
		Timestamp: at.UTC(),
		Name:      name,
		Notes:     notes,
		Counts:    r.Totals,
		Metrics:   r.Micro,
	}
}

// RunLog is the append-only CSV history of evaluation runs.
type RunLog struct {
	mu   sync.Mutex
	path string
}

// NewRunLog creates a run log at path.
func NewRunLog(path string) *RunLog {
	return &RunLog{path: path}
}

// Path returns the log location.
func (l *RunLog) Path() string {
	return l.path
}

// Append adds one row, writing the header when the file is new or empty.
// Existing rows are never rewritten.
func (l *RunLog) Append(run Run) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create log dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open run log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat run log: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(RunLogHeader); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}
	row := []string{
		run.Timestamp.UTC().Format(time.RFC3339),
		run.Name,
		run.Notes,
		strconv.Itoa(run.Counts.TP),
		strconv.Itoa(run.Counts.FP),
		strconv.Itoa(run.Counts.FN),
		formatRatio(run.Metrics.Accuracy),
		formatRatio(run.Metrics.Precision),
		formatRatio(run.Metrics.Recall),
		formatRatio(run.Metrics.F1),
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("failed to write run: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush run log: %w", err)
	}
	return nil
}

// Read returns every run sorted by timestamp. A missing log yields no runs.
// Columns are matched by header name; missing metric columns are derived
// from the counts.
func (l *RunLog) Read() ([]Run, error) {
	f, err := os.Open(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open run log: %w", err)
	}
	defer f.Close()
	return ReadRuns(f)
}

// ReadRuns parses a run log.
func ReadRuns(r io.Reader) ([]Run, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read run log header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF"))] = i
	}
	if _, ok := col["timestamp"]; !ok {
		return nil, fmt.Errorf("run log has no timestamp column")
	}

	var runs []Run
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read run log line %d: %w", line, err)
		}
		field := func(name string) string {
			i, ok := col[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		ts, err := parseTimestamp(field("timestamp"))
		if err != nil {
			return nil, fmt.Errorf("run log line %d: %w", line, err)
		}
		run := Run{
			Timestamp: ts,
			Name:      field("run_name"),
			Notes:     field("notes"),
			Counts: Counts{
				TP: atoi(field("true_positives")),
				FP: atoi(field("false_positives")),
				FN: atoi(field("false_negatives")),
			},
		}
		derived := Compute(run.Counts)
		run.Metrics = Metrics{
			Accuracy:  parseRatio(field("accuracy"), derived.Accuracy),
			Precision: parseRatio(field("precision"), derived.Precision),
			Recall:    parseRatio(field("recall"), derived.Recall),
			F1:        parseRatio(field("f1_score"), derived.F1),
		}
		runs = append(runs, run)
	}

	sort.SliceStable(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func formatRatio(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func parseRatio(s string, fallback float64) float64 {
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return v
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
