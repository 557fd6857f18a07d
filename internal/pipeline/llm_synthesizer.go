package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/MrPrayat/DA235X/internal/backoff"
	"github.com/MrPrayat/DA235X/internal/llmcall"
	"github.com/MrPrayat/DA235X/internal/prompts"
	"github.com/MrPrayat/DA235X/internal/prompts/synthesize"
	"github.com/MrPrayat/DA235X/internal/providers"
	"github.com/MrPrayat/DA235X/internal/schema"
	"github.com/MrPrayat/DA235X/internal/usage"
)

// LLMSynthesizerConfig configures an LLMSynthesizer.
type LLMSynthesizerConfig struct {
	Client  providers.LLMClient
	Model   string
	Schema  *schema.Schema
	Prompts *prompts.Resolver
	Retry   backoff.Policy
	Trace   *llmcall.Recorder
	Logger  *slog.Logger
}

// LLMSynthesizer asks a text model to reconcile the fragments.
type LLMSynthesizer struct {
	client  providers.LLMClient
	model   string
	schema  *schema.Schema
	prompts *prompts.Resolver
	retry   backoff.Policy
	trace   *llmcall.Recorder
	logger  *slog.Logger
}

// NewLLMSynthesizer creates a model-assisted synthesizer.
func NewLLMSynthesizer(cfg LLMSynthesizerConfig) *LLMSynthesizer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Schema == nil {
		cfg.Schema = schema.Default()
	}
	return &LLMSynthesizer{
		client:  cfg.Client,
		model:   cfg.Model,
		schema:  cfg.Schema,
		prompts: cfg.Prompts,
		retry:   retryPolicy(cfg.Retry),
		trace:   cfg.Trace,
		logger:  cfg.Logger,
	}
}

func (*LLMSynthesizer) Strategy() Strategy { return StrategyLLM }

// Model returns the configured model name.
func (s *LLMSynthesizer) Model() string {
	return s.model
}

// Synthesize embeds the fragments in one text call. A call that exhausts
// its retries or a reply that does not decode yields an empty record; only
// cancellation is returned as an error.
func (s *LLMSynthesizer) Synthesize(ctx context.Context, frags []Fragment) (schema.Record, usage.Counter, error) {
	if len(frags) == 0 {
		return schema.Record{}, usage.Counter{}, nil
	}

	encoded, err := json.MarshalIndent(frags, "", "  ")
	if err != nil {
		return nil, usage.Counter{}, fmt.Errorf("failed to encode fragments: %w", err)
	}
	system, err := s.prompts.Resolve(synthesize.SystemPromptKey)
	if err != nil {
		return nil, usage.Counter{}, err
	}
	user, hash, err := s.prompts.Render(synthesize.UserPromptKey, synthesize.UserPromptData{
		PageCount:   len(frags),
		Definitions: s.schema.Definitions(),
		Template:    s.schema.Template(),
		Fragments:   string(encoded),
	})
	if err != nil {
		return nil, usage.Counter{}, err
	}

	runID, docID := documentFrom(ctx)
	opts := llmcall.RecordOptions{
		RunID:      runID,
		DocumentID: docID,
		PromptKey:  synthesize.UserPromptKey,
		PromptHash: hash,
	}

	result, used, err := chat(ctx, s.client, s.retry, s.trace, opts, &providers.ChatRequest{
		Messages: []providers.Message{
			{Role: "system", Content: system.Text},
			providers.UserMessage(user),
		},
		Model:    s.model,
		JSONMode: true,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, used, ctx.Err()
		}
		s.logger.Warn("synthesis call failed, using empty record", "error", err)
		return schema.Record{}, used, nil
	}

	obj, err := providers.ParseJSONObject(result.Content)
	if err != nil {
		s.logger.Warn("synthesis reply did not decode, using empty record", "error", err)
		return schema.Record{}, used, nil
	}
	return schema.Record(obj), used, nil
}
