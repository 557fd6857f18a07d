package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrPrayat/DA235X/internal/records"
	"github.com/MrPrayat/DA235X/internal/schema"
	"github.com/MrPrayat/DA235X/internal/usage"
)

type documentKey struct{}

type documentRef struct{ runID, docID string }

func withDocument(ctx context.Context, runID, docID string) context.Context {
	return context.WithValue(ctx, documentKey{}, documentRef{runID, docID})
}

func documentFrom(ctx context.Context) (runID, docID string) {
	ref, _ := ctx.Value(documentKey{}).(documentRef)
	return ref.runID, ref.docID
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Schema *schema.Schema
	// Classifier may be nil, in which case every page is extracted.
	Classifier  *Classifier
	Extractor   *Extractor
	Synthesizer Synthesizer
	Pricing     usage.Pricing

	RunID        string
	PromptHashes map[string]string
	Logger       *slog.Logger
}

// Runner processes one document at a time. It holds no per-document state
// and may be shared by concurrent workers.
type Runner struct {
	schema       *schema.Schema
	classifier   *Classifier
	extractor    *Extractor
	synth        Synthesizer
	pricing      usage.Pricing
	runID        string
	promptHashes map[string]string
	logger       *slog.Logger
}

// NewRunner creates a document runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Extractor == nil {
		return nil, fmt.Errorf("runner needs an extractor")
	}
	if cfg.Schema == nil {
		cfg.Schema = schema.Default()
	}
	if cfg.Synthesizer == nil {
		cfg.Synthesizer = NewFirstWins(cfg.Schema)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runner{
		schema:       cfg.Schema,
		classifier:   cfg.Classifier,
		extractor:    cfg.Extractor,
		synth:        cfg.Synthesizer,
		pricing:      cfg.Pricing,
		runID:        cfg.RunID,
		promptHashes: cfg.PromptHashes,
		logger:       cfg.Logger,
	}, nil
}

// Result is the outcome of one document run.
type Result struct {
	DocumentID string
	// Record is the synthesized, normalized model output.
	Record    schema.Record
	Fragments []Fragment
	PageLog   *records.PageLog

	// PagesExtracted counts pages sent to the extractor; PagesParsed those
	// that produced values.
	PagesExtracted int
	PagesParsed    int
	// AppendixPage is the first appendix page, 0 if none was found.
	AppendixPage int

	Usage   usage.Counter
	CostUSD float64
}

// DocumentUsage returns the row written to the usage log.
func (r *Result) DocumentUsage(model string, strategy Strategy) usage.DocumentUsage {
	return usage.DocumentUsage{
		DocumentID:     r.DocumentID,
		Model:          model,
		Strategy:       string(strategy),
		Counter:        r.Usage,
		CostUSD:        r.CostUSD,
		PagesExtracted: r.PagesExtracted,
		FinishedAt:     time.Now().UTC(),
	}
}

// Run walks the pages of doc in order. Each page is classified first; the
// first appendix page ends the walk and no later page is rendered for
// extraction. The fragments are then synthesized and normalized.
// Only cancellation is returned as an error.
func (r *Runner) Run(ctx context.Context, id string, doc PageSource) (*Result, error) {
	res := &Result{DocumentID: id}
	costs := make(map[string]usage.Counter)
	log := &records.PageLog{
		DocumentID:   id,
		RunID:        r.runID,
		Model:        r.extractor.Model(),
		Strategy:     string(r.synth.Strategy()),
		PageCount:    doc.PageCount(),
		PromptHashes: r.promptHashes,
	}
	logger := r.logger.With("pdf_id", id)

	for n := 1; n <= doc.PageCount(); n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entry := records.PageEntry{Page: n}

		img, err := doc.Page(ctx, n)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("page render failed", "page", n, "error", err)
			frag := Fragment{Page: n, Err: fmt.Sprintf("render failed: %v", err)}
			res.Fragments = append(res.Fragments, frag)
			entry.Error = frag.Err
			log.Pages = append(log.Pages, entry)
			continue
		}
		page := Page{DocumentID: id, RunID: r.runID, Number: n, Image: img}

		if r.classifier != nil {
			cls, used := r.classifier.Classify(ctx, page)
			addUsage(costs, r.classifier.Model(), used)
			res.Usage.Add(used)
			entry.ClassifierAnswer = cls.Answer
			if cls.IsAppendix {
				entry.Appendix = true
				log.Pages = append(log.Pages, entry)
				res.AppendixPage = n
				log.AppendixPage = n
				logger.Info("appendix found, skipping remaining pages", "page", n, "pages", doc.PageCount())
				break
			}
		}

		frag, used := r.extractor.Extract(ctx, page)
		addUsage(costs, r.extractor.Model(), used)
		res.Usage.Add(used)
		res.PagesExtracted++
		res.Fragments = append(res.Fragments, frag)

		entry.Extracted = true
		entry.Values = frag.Values
		entry.Error = frag.Err
		entry.RawOutput = frag.Raw
		log.Pages = append(log.Pages, entry)
		if !frag.IsError() {
			res.PagesParsed++
		}
		logger.Debug("page extracted", "page", n, "ok", !frag.IsError())
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	merged, used, err := r.synth.Synthesize(withDocument(ctx, r.runID, id), res.Fragments)
	if err != nil {
		return nil, err
	}
	if m, ok := r.synth.(interface{ Model() string }); ok {
		addUsage(costs, m.Model(), used)
	}
	res.Usage.Add(used)
	res.Record = r.schema.Normalize(merged)
	res.PageLog = log

	for model, c := range costs {
		res.CostUSD += r.pricing.Cost(model, c)
	}
	return res, nil
}

func addUsage(costs map[string]usage.Counter, model string, c usage.Counter) {
	if c.IsZero() {
		return
	}
	total := costs[model]
	total.Add(c)
	costs[model] = total
}
