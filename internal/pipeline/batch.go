package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrPrayat/DA235X/internal/ingest"
	"github.com/MrPrayat/DA235X/internal/records"
	"github.com/MrPrayat/DA235X/internal/usage"
)

// Status is the outcome of one document in a batch.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// DocumentOutcome reports what happened to one document.
type DocumentOutcome struct {
	ID     string        `json:"pdf_id" yaml:"pdf_id"`
	Status Status        `json:"status" yaml:"status"`
	Reason string        `json:"reason,omitempty" yaml:"reason,omitempty"`
	Pages  int           `json:"pages_extracted,omitempty" yaml:"pages_extracted,omitempty"`
	Cost   float64       `json:"cost_usd,omitempty" yaml:"cost_usd,omitempty"`
	Took   time.Duration `json:"took,omitempty" yaml:"took,omitempty"`
}

// Tally summarizes a batch run.
type Tally struct {
	RunID     string            `json:"run_id" yaml:"run_id"`
	Succeeded int               `json:"succeeded" yaml:"succeeded"`
	Skipped   int               `json:"skipped" yaml:"skipped"`
	Failed    int               `json:"failed" yaml:"failed"`
	Documents []DocumentOutcome `json:"documents" yaml:"documents"`
	Usage     usage.BatchUsage  `json:"usage" yaml:"usage"`
}

// BatchConfig configures a Batch.
type BatchConfig struct {
	Opener Opener
	Runner *Runner
	Store  *records.Store
	// PageLogs and UsageLog are optional.
	PageLogs *records.PageLogs
	UsageLog *usage.Log
	Meter    *usage.Meter

	// Model and Strategy label usage rows.
	Model    string
	Strategy Strategy

	// Workers is the number of documents processed at once.
	Workers int
	// Limit stops launching documents once this many succeeded. With more
	// than one worker, documents already in flight still complete. 0 means
	// no limit.
	Limit int
	// SkipExisting skips documents that already have a record.
	SkipExisting bool
	// OnlyIDs restricts the batch to these documents and re-extracts them
	// even when a record exists.
	OnlyIDs []string

	Logger *slog.Logger
}

// Batch runs many documents through a Runner.
type Batch struct {
	cfg       BatchConfig
	logger    *slog.Logger
	succeeded atomic.Int64
}

// NewBatch creates a batch runner.
func NewBatch(cfg BatchConfig) *Batch {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Meter == nil {
		cfg.Meter = usage.NewMeter(cfg.Runner.runID, cfg.Model, string(cfg.Strategy))
	}
	return &Batch{cfg: cfg, logger: cfg.Logger}
}

// Run processes srcs and returns the tally. A document never aborts the
// batch; the returned error is non-nil only when ctx was cancelled, in
// which case the tally covers the documents that finished.
func (b *Batch) Run(ctx context.Context, srcs []ingest.Source) (*Tally, error) {
	skipExisting := b.cfg.SkipExisting
	if len(b.cfg.OnlyIDs) > 0 {
		srcs = ingest.FilterIDs(srcs, b.cfg.OnlyIDs)
		skipExisting = false
	}

	var (
		mu       sync.Mutex
		outcomes []DocumentOutcome
	)
	record := func(o DocumentOutcome) {
		mu.Lock()
		outcomes = append(outcomes, o)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Workers)

	for _, src := range srcs {
		if gctx.Err() != nil {
			break
		}
		if b.limitReached() {
			b.logger.Info("document limit reached", "limit", b.cfg.Limit)
			break
		}
		if skipExisting && b.cfg.Store.Exists(src.ID) {
			b.logger.Info("record exists, skipping", "pdf_id", src.ID)
			record(DocumentOutcome{ID: src.ID, Status: StatusSkipped, Reason: "record exists"})
			continue
		}

		g.Go(func() error {
			if o, ok := b.process(gctx, src); ok {
				record(o)
			}
			return nil
		})
	}
	_ = g.Wait()

	tally := &Tally{RunID: b.cfg.Runner.runID, Documents: outcomes}
	for _, o := range outcomes {
		switch o.Status {
		case StatusSucceeded:
			tally.Succeeded++
		case StatusSkipped:
			tally.Skipped++
		case StatusFailed:
			tally.Failed++
		}
	}
	tally.Usage = b.cfg.Meter.Snapshot()

	if b.cfg.UsageLog != nil && tally.Usage.Documents > 0 {
		if err := b.cfg.UsageLog.AppendBatch(tally.Usage, time.Now().UTC()); err != nil {
			b.logger.Warn("failed to write batch usage", "error", err)
		}
	}

	b.logger.Info("batch finished",
		"run_id", tally.RunID,
		"succeeded", tally.Succeeded,
		"skipped", tally.Skipped,
		"failed", tally.Failed,
		"cost_usd", tally.Usage.CostUSD,
	)
	return tally, ctx.Err()
}

func (b *Batch) limitReached() bool {
	return b.cfg.Limit > 0 && b.succeeded.Load() >= int64(b.cfg.Limit)
}

// process runs one document. ok is false when the document was interrupted
// by cancellation and should not be reported.
func (b *Batch) process(ctx context.Context, src ingest.Source) (DocumentOutcome, bool) {
	start := time.Now()
	out := DocumentOutcome{ID: src.ID}
	logger := b.logger.With("pdf_id", src.ID)

	if b.limitReached() {
		return out, false
	}

	doc, err := b.cfg.Opener.Open(ctx, src)
	if err != nil {
		if ctx.Err() != nil {
			return out, false
		}
		out.Reason = err.Error()
		if isSkip(err) {
			out.Status = StatusSkipped
			logger.Info("skipping document", "reason", err)
		} else {
			out.Status = StatusFailed
			logger.Error("failed to open document", "error", err)
		}
		return out, true
	}
	defer doc.Close()

	logger.Info("extracting document", "pages", doc.PageCount())
	res, err := b.cfg.Runner.Run(ctx, src.ID, doc)
	if err != nil {
		logger.Warn("document interrupted", "error", err)
		return out, false
	}
	out.Pages = res.PagesExtracted
	out.Cost = res.CostUSD
	out.Took = time.Since(start)

	du := res.DocumentUsage(b.cfg.Model, b.cfg.Strategy)
	b.cfg.Meter.Add(du)
	if b.cfg.UsageLog != nil {
		if err := b.cfg.UsageLog.AppendDocument(b.cfg.Runner.runID, du); err != nil {
			logger.Warn("failed to write usage row", "error", err)
		}
	}
	if b.cfg.PageLogs != nil {
		if err := b.cfg.PageLogs.Write(res.PageLog); err != nil {
			logger.Warn("failed to write page log", "error", err)
		}
	}

	if res.PagesParsed == 0 {
		out.Status = StatusFailed
		out.Reason = "no page produced a usable result"
		if res.AppendixPage == 1 {
			out.Reason = "first page classified as appendix"
		}
		logger.Warn("extraction empty, record not saved", "reason", out.Reason)
		return out, true
	}

	if _, err := b.cfg.Store.Save(src.ID, res.Record); err != nil {
		out.Status = StatusFailed
		out.Reason = err.Error()
		logger.Error("failed to save record", "error", err)
		return out, true
	}

	b.succeeded.Add(1)
	out.Status = StatusSucceeded
	logger.Info("document extracted",
		"pages_extracted", res.PagesExtracted,
		"appendix_page", res.AppendixPage,
		"cost_usd", res.CostUSD,
		"took", out.Took.Round(time.Millisecond),
	)
	return out, true
}

func isSkip(err error) bool {
	return errors.Is(err, ingest.ErrUnreachable) ||
		errors.Is(err, ingest.ErrTooShort) ||
		errors.Is(err, ingest.ErrTextPDF)
}
