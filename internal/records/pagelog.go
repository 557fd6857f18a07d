package records

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/MrPrayat/DA235X/internal/schema"
)

// PageEntry is what happened to one page.
type PageEntry struct {
	Page             int           `json:"page" yaml:"page"`
	Appendix         bool          `json:"appendix" yaml:"appendix"`
	ClassifierAnswer string        `json:"classifier_answer,omitempty" yaml:"classifier_answer,omitempty"`
	Extracted        bool          `json:"extracted" yaml:"extracted"`
	Values           schema.Record `json:"values,omitempty" yaml:"values,omitempty"`
	Error            string        `json:"error,omitempty" yaml:"error,omitempty"`
	RawOutput        string        `json:"raw_output,omitempty" yaml:"raw_output,omitempty"`
}

// PageLog is the per-document debugging side log.
type PageLog struct {
	DocumentID   string            `json:"pdf_id" yaml:"pdf_id"`
	RunID        string            `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Model        string            `json:"model,omitempty" yaml:"model,omitempty"`
	Strategy     string            `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	PageCount    int               `json:"page_count" yaml:"page_count"`
	AppendixPage int               `json:"appendix_page,omitempty" yaml:"appendix_page,omitempty"` // 0 when no appendix was found
	PromptHashes map[string]string `json:"prompt_hashes,omitempty" yaml:"prompt_hashes,omitempty"`
	Pages        []PageEntry       `json:"pages" yaml:"pages"`
	CreatedAt    time.Time         `json:"created_at" yaml:"created_at"`
}

// PageLogs writes page logs as <dir>/<id>_pages.json.
type PageLogs struct {
	dir string
}

// NewPageLogs creates a page log writer rooted at dir.
func NewPageLogs(dir string) *PageLogs {
	return &PageLogs{dir: dir}
}

// Path returns the log path for a document ID.
func (p *PageLogs) Path(id string) string {
	return filepath.Join(p.dir, id+"_pages.json")
}

// Write replaces the page log for l.DocumentID.
func (p *PageLogs) Write(l *PageLog) error {
	if err := ValidateID(l.DocumentID); err != nil {
		return err
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	return writeJSONAtomic(p.Path(l.DocumentID), l)
}

// Read loads the page log for id.
func (p *PageLogs) Read(id string) (*PageLog, error) {
	data, err := os.ReadFile(p.Path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read page log %s: %w", id, err)
	}
	var l PageLog
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("failed to decode page log %s: %w", id, err)
	}
	return &l, nil
}
