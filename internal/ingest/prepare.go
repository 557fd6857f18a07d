package ingest

import (
	"context"
	"fmt"
	"log/slog"
)

// Default preparation settings.
const (
	DefaultMinPages    = 5
	DefaultLookahead   = 1
	DefaultConcurrency = 4
)

// PreparerConfig configures a Preparer.
type PreparerConfig struct {
	Fetcher    *Fetcher
	Rasterizer Rasterizer
	// TextProbe is consulted only when SkipTextPDFs is set.
	TextProbe    TextProbe
	SkipTextPDFs bool
	MinPages     int
	Lookahead    int
	// Concurrency bounds page renders across every open document.
	Concurrency int
	Logger      *slog.Logger
}

// Preparer turns a Source into a Document ready for page-by-page
// processing: fetch, page count guard and optional text-PDF skip.
type Preparer struct {
	fetcher    *Fetcher
	raster     Rasterizer
	probe      TextProbe
	skipText   bool
	minPages   int
	lookahead  int
	sem        chan struct{}
	logger     *slog.Logger
	countPages func(path string) (int, error)
}

// NewPreparer creates a preparer.
func NewPreparer(cfg PreparerConfig) *Preparer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Rasterizer == nil {
		cfg.Rasterizer = Pdftoppm{DPI: DefaultDPI}
	}
	if cfg.MinPages <= 0 {
		cfg.MinPages = DefaultMinPages
	}
	if cfg.Lookahead < 0 {
		cfg.Lookahead = 0
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &Preparer{
		fetcher:    cfg.Fetcher,
		raster:     cfg.Rasterizer,
		probe:      cfg.TextProbe,
		skipText:   cfg.SkipTextPDFs,
		minPages:   cfg.MinPages,
		lookahead:  cfg.Lookahead,
		sem:        make(chan struct{}, cfg.Concurrency),
		logger:     cfg.Logger,
		countPages: PageCount,
	}
}

// Open fetches src and returns its lazily rendered Document. Skips are
// reported as errors wrapping ErrUnreachable, ErrTooShort or ErrTextPDF.
func (p *Preparer) Open(ctx context.Context, src Source) (*Document, error) {
	path, err := p.fetcher.Fetch(ctx, src)
	if err != nil {
		return nil, err
	}

	pages, err := p.countPages(path)
	if err != nil {
		// A file pdfcpu cannot read is as good as missing.
		return nil, fmt.Errorf("%s: %w: %v", src.ID, ErrUnreachable, err)
	}
	if pages < p.minPages {
		return nil, fmt.Errorf("%s: %w: %d pages, minimum %d", src.ID, ErrTooShort, pages, p.minPages)
	}

	if p.skipText {
		isText, err := p.probe.IsTextPDF(ctx, path)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			p.logger.Warn("text probe failed, treating as scanned", "pdf_id", src.ID, "error", err)
		case isText:
			return nil, fmt.Errorf("%s: %w", src.ID, ErrTextPDF)
		}
	}

	p.logger.Debug("document ready", "pdf_id", src.ID, "pages", pages)
	return NewDocument(DocumentConfig{
		ID:         src.ID,
		Path:       path,
		Pages:      pages,
		Rasterizer: p.raster,
		Sem:        p.sem,
		Lookahead:  p.lookahead,
	}), nil
}
