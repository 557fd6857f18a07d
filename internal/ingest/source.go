package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Source is one input row.
type Source struct {
	ID  string `json:"id" yaml:"id"`
	URL string `json:"url" yaml:"url"`
}

// ReadSources parses a CSV with an `id,url` header. Column order is free,
// extra columns are ignored, blank rows and repeated IDs are skipped and a
// UTF-8 byte order mark is tolerated.
func ReadSources(r io.Reader) ([]Source, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty input: missing id,url header")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	idCol, urlCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF"))) {
		case "id":
			idCol = i
		case "url":
			urlCol = i
		}
	}
	if idCol < 0 || urlCol < 0 {
		return nil, fmt.Errorf("header must contain id and url columns, got %v", header)
	}

	var out []Source
	seen := make(map[string]bool)
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		if idCol >= len(row) || urlCol >= len(row) {
			continue
		}
		src := Source{ID: strings.TrimSpace(row[idCol]), URL: strings.TrimSpace(row[urlCol])}
		if src.ID == "" || src.URL == "" || seen[src.ID] {
			continue
		}
		seen[src.ID] = true
		out = append(out, src)
	}
	return out, nil
}

// ReadSourcesFile opens path and calls ReadSources.
func ReadSourcesFile(path string) ([]Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sources: %w", err)
	}
	defer f.Close()
	return ReadSources(f)
}

// FilterIDs keeps only sources whose ID is in ids, in input order. An empty
// ids list keeps everything.
func FilterIDs(srcs []Source, ids []string) []Source {
	if len(ids) == 0 {
		return srcs
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[strings.TrimSpace(id)] = true
	}
	var out []Source
	for _, s := range srcs {
		if want[s.ID] {
			out = append(out, s)
		}
	}
	return out
}
