package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrPrayat/DA235X/internal/backoff"
	"github.com/MrPrayat/DA235X/internal/llmcall"
	"github.com/MrPrayat/DA235X/internal/prompts"
	"github.com/MrPrayat/DA235X/internal/prompts/extract"
	"github.com/MrPrayat/DA235X/internal/providers"
	"github.com/MrPrayat/DA235X/internal/schema"
	"github.com/MrPrayat/DA235X/internal/usage"
)

// ExtractorConfig configures an Extractor.
type ExtractorConfig struct {
	Client  providers.LLMClient
	Model   string
	Schema  *schema.Schema
	Prompts *prompts.Resolver
	Retry   backoff.Policy
	Trace   *llmcall.Recorder
	// NoRepair disables the single re-ask when a reply does not parse.
	NoRepair bool
	Logger   *slog.Logger
}

// Extractor reads the schema fields off one page image.
type Extractor struct {
	client    providers.LLMClient
	model     string
	schema    *schema.Schema
	validator *schema.Validator
	prompts   *prompts.Resolver
	retry     backoff.Policy
	trace     *llmcall.Recorder
	repair    bool
	logger    *slog.Logger
}

// NewExtractor creates an extractor. It fails only if the fragment schema
// does not compile.
func NewExtractor(cfg ExtractorConfig) (*Extractor, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Schema == nil {
		cfg.Schema = schema.Default()
	}
	v, err := cfg.Schema.Validator()
	if err != nil {
		return nil, err
	}
	return &Extractor{
		client:    cfg.Client,
		model:     cfg.Model,
		schema:    cfg.Schema,
		validator: v,
		prompts:   cfg.Prompts,
		retry:     retryPolicy(cfg.Retry),
		trace:     cfg.Trace,
		repair:    !cfg.NoRepair,
		logger:    cfg.Logger,
	}, nil
}

// Model returns the configured model name.
func (e *Extractor) Model() string {
	return e.model
}

// Extract sends page to the vision model and parses the reply. It never
// fails: a call that exhausts its retries or a reply that does not parse
// becomes an error fragment.
func (e *Extractor) Extract(ctx context.Context, page Page) (Fragment, usage.Counter) {
	frag := Fragment{Page: page.Number}

	system, err := e.prompts.Resolve(extract.SystemPromptKey)
	if err != nil {
		frag.Err = err.Error()
		return frag, usage.Counter{}
	}
	user, hash, err := e.prompts.Render(extract.UserPromptKey, extract.UserPromptData{
		Page:        page.Number,
		Definitions: e.schema.Definitions(),
		Template:    e.schema.Template(),
	})
	if err != nil {
		frag.Err = err.Error()
		return frag, usage.Counter{}
	}

	messages := []providers.Message{
		{Role: "system", Content: system.Text},
		providers.UserMessage(user, page.Image),
	}
	opts := llmcall.RecordOptions{
		RunID:      page.RunID,
		DocumentID: page.DocumentID,
		Page:       page.Number,
		PromptKey:  extract.UserPromptKey,
		PromptHash: hash,
	}

	result, used, err := chat(ctx, e.client, e.retry, e.trace, opts, e.request(messages))
	if err != nil {
		e.logger.Warn("page extraction failed",
			"pdf_id", page.DocumentID, "page", page.Number, "error", err)
		frag.Err = fmt.Sprintf("call failed: %v", err)
		return frag, used
	}

	values, perr := e.parse(result.Content)
	if perr != nil && e.repair {
		e.logger.Debug("reply did not parse, asking again",
			"pdf_id", page.DocumentID, "page", page.Number, "error", perr)
		retryMsgs := append(messages,
			providers.Message{Role: "assistant", Content: result.Content},
			providers.UserMessage(providers.RepairPrompt(result.Content, perr)),
		)
		opts.PromptKey = extract.UserPromptKey + ".repair"
		repaired, more, err := chat(ctx, e.client, e.retry, e.trace, opts, e.request(retryMsgs))
		used.Add(more)
		if err == nil {
			if v, err := e.parse(repaired.Content); err == nil {
				values, perr = v, nil
			}
		}
	}
	if perr != nil {
		e.logger.Warn("could not parse page reply",
			"pdf_id", page.DocumentID, "page", page.Number, "error", perr)
		frag.Err = perr.Error()
		frag.Raw = result.Content
		return frag, used
	}

	frag.Values = values
	return frag, used
}

func (e *Extractor) request(messages []providers.Message) *providers.ChatRequest {
	return &providers.ChatRequest{
		Messages: messages,
		Model:    e.model,
		JSONMode: true,
	}
}

// parse decodes and validates a reply, returning the normalized values.
func (e *Extractor) parse(content string) (schema.Record, error) {
	obj, err := providers.ParseJSONObject(content)
	if err != nil {
		return nil, err
	}
	if err := e.validator.Validate(obj); err != nil {
		return nil, err
	}
	return e.schema.Normalize(obj), nil
}
