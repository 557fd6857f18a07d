package usage

import (
	"sync"
	"time"
)

// DocumentUsage is the usage of one document's pipeline run.
type DocumentUsage struct {
	DocumentID     string    `json:"document_id" yaml:"document_id"`
	Model          string    `json:"model" yaml:"model"`
	Strategy       string    `json:"strategy" yaml:"strategy"`
	Counter        Counter   `json:"tokens" yaml:"tokens"`
	CostUSD        float64   `json:"total_cost_usd" yaml:"total_cost_usd"`
	PagesExtracted int       `json:"pages_extracted" yaml:"pages_extracted"`
	FinishedAt     time.Time `json:"finished_at" yaml:"finished_at"`
}

// BatchUsage is the rollup of every document added to a Meter.
type BatchUsage struct {
	RunID          string  `json:"run_id" yaml:"run_id"`
	Model          string  `json:"model" yaml:"model"`
	Strategy       string  `json:"strategy" yaml:"strategy"`
	Documents      int     `json:"documents" yaml:"documents"`
	Counter        Counter `json:"tokens" yaml:"tokens"`
	CostUSD        float64 `json:"total_cost_usd" yaml:"total_cost_usd"`
	PagesExtracted int     `json:"pages_extracted" yaml:"pages_extracted"`
}

// Meter is the batch-level accumulator. It is safe for concurrent use.
type Meter struct {
	mu    sync.Mutex
	batch BatchUsage
	docs  []DocumentUsage
}

// NewMeter creates a meter for one batch run.
func NewMeter(runID, model, strategy string) *Meter {
	return &Meter{batch: BatchUsage{RunID: runID, Model: model, Strategy: strategy}}
}

// Add folds one finished document into the batch.
func (m *Meter) Add(doc DocumentUsage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batch.Documents++
	m.batch.Counter.Add(doc.Counter)
	m.batch.CostUSD += doc.CostUSD
	m.batch.PagesExtracted += doc.PagesExtracted
	m.docs = append(m.docs, doc)
}

// Snapshot returns the current rollup.
func (m *Meter) Snapshot() BatchUsage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batch
}

// Documents returns a copy of the per-document usage in completion order.
func (m *Meter) Documents() []DocumentUsage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DocumentUsage, len(m.docs))
	copy(out, m.docs)
	return out
}
