// Package pipeline turns the rendered pages of one inspection report into a
// single record: each page is classified (appendix or not), extracted by a
// vision model until the first appendix page, and the per-page fragments are
// merged by a Synthesizer. Batch runs documents through a bounded worker pool.
package pipeline

import (
	"github.com/MrPrayat/DA235X/internal/prompts"
	"github.com/MrPrayat/DA235X/internal/prompts/appendix"
	"github.com/MrPrayat/DA235X/internal/prompts/extract"
	"github.com/MrPrayat/DA235X/internal/prompts/synthesize"
	"github.com/MrPrayat/DA235X/internal/schema"
)

// Page is one rendered page handed to the classifier and the extractor.
type Page struct {
	DocumentID string
	RunID      string
	Number     int // 1-based
	Image      []byte
}

// Fragment is one page's extraction result. A fragment whose call failed or
// whose reply did not parse carries Err and the raw reply instead of Values.
type Fragment struct {
	Page   int           `json:"page"`
	Values schema.Record `json:"values,omitempty"`
	Err    string        `json:"error,omitempty"`
	Raw    string        `json:"raw_output,omitempty"`
}

// IsError reports whether the fragment is an error marker.
func (f Fragment) IsError() bool {
	return f.Err != ""
}

// RegisterPrompts registers every prompt the pipeline renders.
func RegisterPrompts(r *prompts.Resolver) {
	extract.RegisterPrompts(r)
	appendix.RegisterPrompts(r)
	synthesize.RegisterPrompts(r)
}

// PromptHashes returns the content hash of each resolved prompt template,
// keyed by prompt key. Keys that fail to resolve are left out.
func PromptHashes(r *prompts.Resolver, keys ...string) map[string]string {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if p, err := r.Resolve(k); err == nil {
			out[k] = p.Hash
		}
	}
	return out
}
