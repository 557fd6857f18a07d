package usage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// Grain values in the usage log.
const (
	GrainDocument = "document"
	GrainBatch    = "batch"
)

var logHeader = []string{
	"timestamp", "grain", "run_id", "document_id", "model", "strategy",
	"prompt_tokens", "completion_tokens", "cached_tokens", "total_cost_usd", "pages_extracted",
}

// Log is the append-only usage CSV. Document rows carry a document_id; batch
// rollup rows leave it empty and count pages over the whole batch.
type Log struct {
	path string
	mu   sync.Mutex
}

// NewLog creates a log writing to path.
func NewLog(path string) *Log {
	return &Log{path: path}
}

// Path returns the CSV path.
func (l *Log) Path() string {
	return l.path
}

// AppendDocument writes one per-document row.
func (l *Log) AppendDocument(runID string, d DocumentUsage) error {
	at := d.FinishedAt
	if at.IsZero() {
		at = time.Now()
	}
	return l.append([]string{
		at.UTC().Format(time.RFC3339), GrainDocument, runID, d.DocumentID, d.Model, d.Strategy,
		strconv.Itoa(d.Counter.PromptTokens),
		strconv.Itoa(d.Counter.CompletionTokens),
		strconv.Itoa(d.Counter.CachedTokens),
		formatCost(d.CostUSD),
		strconv.Itoa(d.PagesExtracted),
	})
}

// AppendBatch writes one batch rollup row.
func (l *Log) AppendBatch(b BatchUsage, at time.Time) error {
	return l.append([]string{
		at.UTC().Format(time.RFC3339), GrainBatch, b.RunID, "", b.Model, b.Strategy,
		strconv.Itoa(b.Counter.PromptTokens),
		strconv.Itoa(b.Counter.CompletionTokens),
		strconv.Itoa(b.Counter.CachedTokens),
		formatCost(b.CostUSD),
		strconv.Itoa(b.PagesExtracted),
	})
}

func (l *Log) append(row []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create usage log directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open usage log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat usage log: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(logHeader); err != nil {
			return fmt.Errorf("failed to write usage log header: %w", err)
		}
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("failed to write usage log row: %w", err)
	}
	w.Flush()
	return w.Error()
}

func formatCost(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
