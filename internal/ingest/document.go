package ingest

import (
	"context"
	"fmt"
	"sync"
)

// render is a single page render that may still be in flight.
type render struct {
	done chan struct{}
	data []byte
	err  error
}

// Document is a fetched PDF whose pages are rendered on demand. Asking for
// page n also starts rendering the next Lookahead pages so the vision call
// for page n overlaps with rendering page n+1. Pages past an early stop are
// never rendered beyond the lookahead window.
type Document struct {
	ID   string
	Path string

	pages     int
	raster    Rasterizer
	sem       chan struct{}
	lookahead int

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	renders map[int]*render
	wg      sync.WaitGroup
}

// DocumentConfig configures NewDocument.
type DocumentConfig struct {
	ID         string
	Path       string
	Pages      int
	Rasterizer Rasterizer
	// Sem bounds concurrent renders. Shared across documents in a batch;
	// nil creates a private one of size 2.
	Sem       chan struct{}
	Lookahead int
}

// NewDocument wraps an already counted PDF.
func NewDocument(cfg DocumentConfig) *Document {
	sem := cfg.Sem
	if sem == nil {
		sem = make(chan struct{}, 2)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Document{
		ID:        cfg.ID,
		Path:      cfg.Path,
		pages:     cfg.Pages,
		raster:    cfg.Rasterizer,
		sem:       sem,
		lookahead: cfg.Lookahead,
		ctx:       ctx,
		cancel:    cancel,
		renders:   make(map[int]*render),
	}
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int {
	return d.pages
}

// Page returns the PNG for page n (1-based), waiting for its render.
func (d *Document) Page(ctx context.Context, n int) ([]byte, error) {
	if n < 1 || n > d.pages {
		return nil, fmt.Errorf("page %d out of range 1..%d", n, d.pages)
	}
	r := d.start(n)
	for i := 1; i <= d.lookahead && n+i <= d.pages; i++ {
		d.start(n + i)
	}

	select {
	case <-r.done:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// start launches the render for page n unless one exists.
func (d *Document) start(n int) *render {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r, ok := d.renders[n]; ok {
		return r
	}
	r := &render{done: make(chan struct{})}
	d.renders[n] = r

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer close(r.done)

		select {
		case d.sem <- struct{}{}:
		case <-d.ctx.Done():
			r.err = d.ctx.Err()
			return
		}
		defer func() { <-d.sem }()

		r.data, r.err = d.raster.Render(d.ctx, d.Path, n)
	}()
	return r
}

// Rendered returns how many page renders were started.
func (d *Document) Rendered() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.renders)
}

// Close cancels outstanding prefetches and waits for them to exit.
func (d *Document) Close() error {
	d.cancel()
	d.wg.Wait()
	return nil
}
