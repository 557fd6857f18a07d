// Package llmcall records every model call for traceability: which prompt
// version was sent for which document page, what came back and what it cost
// in tokens. Calls are appended to a JSONL file, one object per line.
package llmcall

import (
	"time"

	"github.com/google/uuid"

	"github.com/MrPrayat/DA235X/internal/providers"
)

// Call represents a recorded model call.
type Call struct {
	ID string `json:"id" yaml:"id"`

	// Timing
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	LatencyMs int       `json:"latency_ms" yaml:"latency_ms"`

	// Context references
	RunID      string `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	DocumentID string `json:"pdf_id,omitempty" yaml:"pdf_id,omitempty"`
	Page       int    `json:"page,omitempty" yaml:"page,omitempty"`

	// Prompt traceability
	PromptKey  string `json:"prompt_key" yaml:"prompt_key"`
	PromptHash string `json:"prompt_hash,omitempty" yaml:"prompt_hash,omitempty"`

	// Model info
	Provider    string   `json:"provider" yaml:"provider"`
	Model       string   `json:"model" yaml:"model"`
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`

	// Token usage
	InputTokens  int `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens int `json:"output_tokens" yaml:"output_tokens"`
	CachedTokens int `json:"cached_tokens,omitempty" yaml:"cached_tokens,omitempty"`

	Response string `json:"response" yaml:"response"`

	// Status
	Success bool   `json:"success" yaml:"success"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

// RecordOptions provides context for recording a call.
type RecordOptions struct {
	RunID      string
	DocumentID string
	Page       int

	PromptKey  string
	PromptHash string

	// Pointer to distinguish "not set" from "set to 0".
	Temperature *float64
}

// FromChatResult creates a Call from a ChatResult.
// Returns nil if result is nil.
func FromChatResult(result *providers.ChatResult, opts RecordOptions) *Call {
	if result == nil {
		return nil
	}

	call := &Call{
		ID:           uuid.New().String(),
		Timestamp:    time.Now().UTC(),
		LatencyMs:    int(result.ExecutionTime.Milliseconds()),
		RunID:        opts.RunID,
		DocumentID:   opts.DocumentID,
		Page:         opts.Page,
		PromptKey:    opts.PromptKey,
		PromptHash:   opts.PromptHash,
		Provider:     result.Provider,
		Model:        result.ModelUsed,
		Temperature:  opts.Temperature,
		InputTokens:  result.PromptTokens,
		OutputTokens: result.CompletionTokens,
		CachedTokens: result.CachedTokens,
		Response:     result.Content,
		Success:      result.Success,
	}
	if !result.Success {
		call.Error = result.ErrorMessage
	}
	return call
}
