package ingest

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"unicode/utf8"
)

// Text-PDF detection defaults.
const (
	DefaultTextThreshold = 5000
	DefaultMinLineLength = 15
)

// TextProbe decides whether a PDF already carries a substantial text layer,
// in which case it is not a scanned report.
type TextProbe struct {
	Threshold     int // characters in substantial lines
	MinLineLength int
	Bin           string // defaults to "pdftotext"
}

// IsTextPDF extracts the text layer with pdftotext and compares the amount
// of substantial text to the threshold.
func (p TextProbe) IsTextPDF(ctx context.Context, path string) (bool, error) {
	bin := p.Bin
	if bin == "" {
		bin = "pdftotext"
	}
	out, err := exec.CommandContext(ctx, bin, "-layout", path, "-").Output()
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, fmt.Errorf("pdftotext failed: %w", err)
	}
	threshold := p.Threshold
	if threshold <= 0 {
		threshold = DefaultTextThreshold
	}
	return CountSubstantialText(string(out), p.MinLineLength) >= threshold, nil
}

// CountSubstantialText counts characters in trimmed lines at least minLine
// characters long. Short lines are page numbers, headers and OCR noise.
func CountSubstantialText(text string, minLine int) int {
	if minLine <= 0 {
		minLine = DefaultMinLineLength
	}
	total := 0
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if n := utf8.RuneCountInString(line); n >= minLine {
			total += n
		}
	}
	return total
}
