package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrPrayat/DA235X/internal/backoff"
)

var fakePDF = []byte("%PDF-1.4\n% test document\n%%EOF\n")

func TestReadSources(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []Source
		wantErr bool
	}{
		{
			name:  "basic",
			input: "id,url\nA1,https://example.com/a.pdf\nB2,https://example.com/b.pdf\n",
			want: []Source{
				{ID: "A1", URL: "https://example.com/a.pdf"},
				{ID: "B2", URL: "https://example.com/b.pdf"},
			},
		},
		{
			name:  "bom, reordered columns and extras",
			input: "\uFEFFURL,note,ID\nhttps://x/a.pdf,first,A1\n",
			want:  []Source{{ID: "A1", URL: "https://x/a.pdf"}},
		},
		{
			name:  "blank rows and duplicates skipped",
			input: "id,url\n,\nA1,https://x/a.pdf\n\nA1,https://x/other.pdf\nB2,\n",
			want:  []Source{{ID: "A1", URL: "https://x/a.pdf"}},
		},
		{name: "missing url column", input: "id,link\nA1,x\n", wantErr: true},
		{name: "empty input", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadSources(strings.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ReadSources() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d sources, want %d: %v", len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("source[%d] = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestFilterIDs(t *testing.T) {
	srcs := []Source{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	if got := FilterIDs(srcs, nil); len(got) != 3 {
		t.Errorf("FilterIDs(nil) = %v, want all", got)
	}
	got := FilterIDs(srcs, []string{"c", " a "})
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Errorf("FilterIDs() = %v, want [a c] in input order", got)
	}
}

func testFetcher(t *testing.T) *Fetcher {
	t.Helper()
	return NewFetcher(FetcherConfig{
		Dir:     t.TempDir(),
		Timeout: 5 * time.Second,
		Retry:   backoff.Policy{Attempts: 3, BaseDelay: time.Millisecond},
	})
}

func TestFetcher(t *testing.T) {
	t.Run("retries rate limit then caches", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.Write(fakePDF)
		}))
		defer server.Close()

		f := testFetcher(t)
		src := Source{ID: "doc1", URL: server.URL + "/doc1.pdf"}

		path, err := f.Fetch(context.Background(), src)
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if want, _ := f.CachePath("doc1"); path != want {
			t.Errorf("path = %q, want cache path", path)
		}
		if calls.Load() != 2 {
			t.Errorf("calls = %d, want 2", calls.Load())
		}

		if _, err := f.Fetch(context.Background(), src); err != nil {
			t.Fatalf("second Fetch() error = %v", err)
		}
		if calls.Load() != 2 {
			t.Errorf("cached fetch hit the server again (calls = %d)", calls.Load())
		}
	})

	t.Run("not found is unreachable without retry", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.NotFound(w, r)
		}))
		defer server.Close()

		_, err := testFetcher(t).Fetch(context.Background(), Source{ID: "gone", URL: server.URL})
		if !errors.Is(err, ErrUnreachable) {
			t.Fatalf("error = %v, want ErrUnreachable", err)
		}
		if calls.Load() != 1 {
			t.Errorf("calls = %d, want 1", calls.Load())
		}
	})

	t.Run("server errors exhaust retries", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		_, err := testFetcher(t).Fetch(context.Background(), Source{ID: "flaky", URL: server.URL})
		if !errors.Is(err, ErrUnreachable) {
			t.Fatalf("error = %v, want ErrUnreachable", err)
		}
		if calls.Load() != 3 {
			t.Errorf("calls = %d, want 3", calls.Load())
		}
	})

	t.Run("non-PDF body is unreachable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>login</html>"))
		}))
		defer server.Close()

		f := testFetcher(t)
		_, err := f.Fetch(context.Background(), Source{ID: "html", URL: server.URL})
		if !errors.Is(err, ErrUnreachable) {
			t.Fatalf("error = %v, want ErrUnreachable", err)
		}
		cached, _ := f.CachePath("html")
		if _, statErr := os.Stat(cached); statErr == nil {
			t.Error("non-PDF response was cached")
		}
	})

	t.Run("local path used in place", func(t *testing.T) {
		local := filepath.Join(t.TempDir(), "local.pdf")
		if err := os.WriteFile(local, fakePDF, 0o644); err != nil {
			t.Fatal(err)
		}
		path, err := testFetcher(t).Fetch(context.Background(), Source{ID: "local", URL: local})
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if path != local {
			t.Errorf("path = %q, want %q", path, local)
		}
	})

	t.Run("id escaping the cache is rejected", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.Write(fakePDF)
		}))
		defer server.Close()

		f := testFetcher(t)
		for _, id := range []string{"../x", "a/b", `a\b`, ".."} {
			if _, err := f.CachePath(id); err == nil {
				t.Errorf("CachePath(%q) should fail", id)
			}
			if _, err := f.Fetch(context.Background(), Source{ID: id, URL: server.URL}); err == nil {
				t.Errorf("Fetch(%q) should fail", id)
			}
		}
		if calls.Load() != 0 {
			t.Errorf("calls = %d, want no download for invalid ids", calls.Load())
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := testFetcher(t).Fetch(ctx, Source{ID: "x", URL: "http://127.0.0.1:1/x.pdf"})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	})
}

func TestCountSubstantialText(t *testing.T) {
	text := strings.Join([]string{
		"12",
		"   Sida 3 av 14   ",
		"Fuktskada observerad i källaren vid norra väggen.",
		"",
		"short",
	}, "\n")

	// "Sida 3 av 14" is 12 runes, below the default minimum of 15.
	want := len([]rune("Fuktskada observerad i källaren vid norra väggen."))
	if got := CountSubstantialText(text, 0); got != want {
		t.Errorf("CountSubstantialText() = %d, want %d", got, want)
	}
	if got := CountSubstantialText(text, 5); got <= want {
		t.Errorf("lower minimum should count more, got %d", got)
	}
}

type countingRasterizer struct {
	mu    sync.Mutex
	pages []int
}

func (r *countingRasterizer) Render(ctx context.Context, path string, page int) ([]byte, error) {
	r.mu.Lock()
	r.pages = append(r.pages, page)
	r.mu.Unlock()
	return []byte(fmt.Sprintf("png-%d", page)), nil
}

func TestDocument(t *testing.T) {
	raster := &countingRasterizer{}
	doc := NewDocument(DocumentConfig{
		ID:         "doc",
		Path:       "doc.pdf",
		Pages:      6,
		Rasterizer: raster,
		Lookahead:  1,
	})
	defer doc.Close()

	data, err := doc.Page(context.Background(), 2)
	if err != nil {
		t.Fatalf("Page(2) error = %v", err)
	}
	if string(data) != "png-2" {
		t.Errorf("Page(2) = %q", data)
	}
	if got := doc.Rendered(); got != 2 {
		t.Errorf("Rendered() = %d, want 2 (page plus lookahead)", got)
	}

	// Same page again is served from the started render.
	if _, err := doc.Page(context.Background(), 2); err != nil {
		t.Fatal(err)
	}
	if got := doc.Rendered(); got != 2 {
		t.Errorf("Rendered() after repeat = %d, want 2", got)
	}

	if _, err := doc.Page(context.Background(), 7); err == nil {
		t.Error("expected out of range error")
	}
}

func TestDocumentRenderError(t *testing.T) {
	boom := errors.New("boom")
	doc := NewDocument(DocumentConfig{
		Pages: 3,
		Rasterizer: RasterizerFunc(func(ctx context.Context, path string, page int) ([]byte, error) {
			return nil, boom
		}),
	})
	defer doc.Close()

	if _, err := doc.Page(context.Background(), 1); !errors.Is(err, boom) {
		t.Errorf("error = %v, want boom", err)
	}
}

func TestPreparer(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "report.pdf")
	if err := os.WriteFile(local, fakePDF, 0o644); err != nil {
		t.Fatal(err)
	}

	newPreparer := func(pages int) *Preparer {
		p := NewPreparer(PreparerConfig{
			Fetcher:    testFetcher(t),
			Rasterizer: &countingRasterizer{},
		})
		p.countPages = func(string) (int, error) { return pages, nil }
		return p
	}

	t.Run("too short", func(t *testing.T) {
		_, err := newPreparer(3).Open(context.Background(), Source{ID: "short", URL: local})
		if !errors.Is(err, ErrTooShort) {
			t.Errorf("error = %v, want ErrTooShort", err)
		}
	})

	t.Run("ready", func(t *testing.T) {
		doc, err := newPreparer(8).Open(context.Background(), Source{ID: "long", URL: local})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer doc.Close()
		if doc.PageCount() != 8 || doc.ID != "long" {
			t.Errorf("doc = %s with %d pages", doc.ID, doc.PageCount())
		}
	})

	t.Run("unreadable PDF", func(t *testing.T) {
		p := newPreparer(0)
		p.countPages = func(string) (int, error) { return 0, errors.New("corrupt xref") }
		_, err := p.Open(context.Background(), Source{ID: "bad", URL: local})
		if !errors.Is(err, ErrUnreachable) {
			t.Errorf("error = %v, want ErrUnreachable", err)
		}
	})
}
