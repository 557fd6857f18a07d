package ingest

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// DefaultDPI is the render resolution used for vision calls.
const DefaultDPI = 200

// Rasterizer renders one page (1-based) of a PDF to PNG bytes.
type Rasterizer interface {
	Render(ctx context.Context, pdfPath string, page int) ([]byte, error)
}

// Pdftoppm renders pages with poppler's pdftoppm. It renders the page as a
// whole, unlike pdfcpu image extraction which returns embedded image
// objects in arbitrary order.
type Pdftoppm struct {
	DPI int
	Bin string // defaults to "pdftoppm" on PATH
}

// Render runs pdftoppm for a single page into a temp dir and returns the PNG.
func (p Pdftoppm) Render(ctx context.Context, pdfPath string, page int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dpi := p.DPI
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	bin := p.Bin
	if bin == "" {
		bin = "pdftoppm"
	}

	tmpDir, err := os.MkdirTemp("", "besiktning-page-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	pageStr := strconv.Itoa(page)
	cmd := exec.CommandContext(ctx, bin,
		"-png",
		"-f", pageStr,
		"-l", pageStr,
		"-r", strconv.Itoa(dpi),
		"-singlefile",
		pdfPath,
		prefix,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("pdftoppm failed on page %d: %w (output: %s)", page, err, string(output))
	}

	// -singlefile writes <prefix>.png
	data, err := os.ReadFile(prefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("pdftoppm did not create expected output: %w", err)
	}
	return data, nil
}

// RasterizerFunc adapts a function to Rasterizer.
type RasterizerFunc func(ctx context.Context, pdfPath string, page int) ([]byte, error)

func (f RasterizerFunc) Render(ctx context.Context, pdfPath string, page int) ([]byte, error) {
	return f(ctx, pdfPath, page)
}
