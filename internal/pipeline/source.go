package pipeline

import (
	"context"

	"github.com/MrPrayat/DA235X/internal/ingest"
)

// PageSource yields rendered pages of one document.
type PageSource interface {
	PageCount() int
	// Page returns the PNG render of page n (1-based).
	Page(ctx context.Context, n int) ([]byte, error)
	Close() error
}

// Opener prepares a source document for page-by-page processing. Errors
// wrapping ingest.ErrUnreachable, ingest.ErrTooShort or ingest.ErrTextPDF
// mark the document as skipped rather than failed.
type Opener interface {
	Open(ctx context.Context, src ingest.Source) (PageSource, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, src ingest.Source) (PageSource, error)

func (f OpenerFunc) Open(ctx context.Context, src ingest.Source) (PageSource, error) {
	return f(ctx, src)
}

// IngestOpener opens documents through an ingest.Preparer.
func IngestOpener(p *ingest.Preparer) Opener {
	return OpenerFunc(func(ctx context.Context, src ingest.Source) (PageSource, error) {
		doc, err := p.Open(ctx, src)
		if err != nil {
			return nil, err
		}
		return doc, nil
	})
}
