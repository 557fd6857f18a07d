package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrPrayat/DA235X/internal/backoff"
	"github.com/MrPrayat/DA235X/internal/llmcall"
	"github.com/MrPrayat/DA235X/internal/prompts"
	"github.com/MrPrayat/DA235X/internal/prompts/appendix"
	"github.com/MrPrayat/DA235X/internal/providers"
	"github.com/MrPrayat/DA235X/internal/usage"
)

// AffirmativeToken marks an appendix answer, matched case-insensitively
// anywhere in the reply.
const AffirmativeToken = "yes"

// Classification is the classifier's verdict on one page.
type Classification struct {
	Page       int
	IsAppendix bool
	Answer     string
	// Err is set when no answer was obtained; IsAppendix is then false.
	Err error
}

// ClassifierConfig configures a Classifier.
type ClassifierConfig struct {
	Client  providers.LLMClient
	Model   string
	Prompts *prompts.Resolver
	Retry   backoff.Policy
	Trace   *llmcall.Recorder
	Logger  *slog.Logger
}

// Classifier decides whether a page belongs to the trailing appendix.
type Classifier struct {
	client  providers.LLMClient
	model   string
	prompts *prompts.Resolver
	retry   backoff.Policy
	trace   *llmcall.Recorder
	logger  *slog.Logger
}

// NewClassifier creates a classifier.
func NewClassifier(cfg ClassifierConfig) *Classifier {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Classifier{
		client:  cfg.Client,
		model:   cfg.Model,
		prompts: cfg.Prompts,
		retry:   retryPolicy(cfg.Retry),
		trace:   cfg.Trace,
		logger:  cfg.Logger,
	}
}

// Model returns the configured model name.
func (c *Classifier) Model() string {
	return c.model
}

// Classify asks the model whether page is an appendix. Only an answer
// containing AffirmativeToken counts; a failed or empty call means "not
// appendix" so that no report content is lost.
func (c *Classifier) Classify(ctx context.Context, page Page) (Classification, usage.Counter) {
	out := Classification{Page: page.Number}

	system, err := c.prompts.Resolve(appendix.SystemPromptKey)
	if err != nil {
		out.Err = err
		return out, usage.Counter{}
	}
	user, hash, err := c.prompts.Render(appendix.UserPromptKey, appendix.UserPromptData{Page: page.Number})
	if err != nil {
		out.Err = err
		return out, usage.Counter{}
	}

	req := &providers.ChatRequest{
		Messages: []providers.Message{
			{Role: "system", Content: system.Text},
			providers.UserMessage(user, page.Image),
		},
		Model:     c.model,
		MaxTokens: 5,
	}
	result, used, err := chat(ctx, c.client, c.retry, c.trace, llmcall.RecordOptions{
		RunID:      page.RunID,
		DocumentID: page.DocumentID,
		Page:       page.Number,
		PromptKey:  appendix.UserPromptKey,
		PromptHash: hash,
	}, req)
	if err != nil {
		c.logger.Warn("appendix check failed, keeping page",
			"pdf_id", page.DocumentID, "page", page.Number, "error", err)
		out.Err = fmt.Errorf("appendix check failed: %w", err)
		return out, used
	}

	out.Answer = strings.TrimSpace(result.Content)
	out.IsAppendix = IsAffirmative(out.Answer)
	return out, used
}

// IsAffirmative reports whether a classifier answer says yes.
func IsAffirmative(answer string) bool {
	return strings.Contains(strings.ToLower(answer), AffirmativeToken)
}
