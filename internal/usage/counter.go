// Package usage provides token and cost tracking for model calls.
//
// A Counter is owned by one document's pipeline run and returned from it;
// only the batch Meter is shared between workers.
package usage

import "github.com/MrPrayat/DA235X/internal/providers"

// Counter accumulates token counts. The zero value is ready to use.
type Counter struct {
	PromptTokens     int `json:"prompt_tokens" yaml:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens" yaml:"completion_tokens"`
	CachedTokens     int `json:"cached_tokens" yaml:"cached_tokens"`
}

// FromResult reads token usage from a chat result. A nil result counts as zero.
func FromResult(r *providers.ChatResult) Counter {
	if r == nil {
		return Counter{}
	}
	return Counter{
		PromptTokens:     r.PromptTokens,
		CompletionTokens: r.CompletionTokens,
		CachedTokens:     r.CachedTokens,
	}
}

// Add adds o into c.
func (c *Counter) Add(o Counter) {
	c.PromptTokens += o.PromptTokens
	c.CompletionTokens += o.CompletionTokens
	c.CachedTokens += o.CachedTokens
}

// Plus returns the sum of c and o.
func (c Counter) Plus(o Counter) Counter {
	c.Add(o)
	return c
}

// Total returns prompt plus completion tokens. Cached tokens are a subset of
// prompt tokens and are not counted twice.
func (c Counter) Total() int {
	return c.PromptTokens + c.CompletionTokens
}

// IsZero reports whether nothing was counted.
func (c Counter) IsZero() bool {
	return c == Counter{}
}
