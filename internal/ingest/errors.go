// Package ingest turns a list of (id, url) sources into rendered pages:
// CSV input, cached PDF download, page counting, text-PDF detection and
// lazy page rasterization.
package ingest

import "errors"

// Skip reasons. Documents failing with one of these are reported as skipped,
// not failed, and never abort a batch.
var (
	ErrUnreachable = errors.New("source unreachable")
	ErrTooShort    = errors.New("document too short")
	ErrTextPDF     = errors.New("document is a text PDF")
)
