package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/MrPrayat/DA235X/internal/backoff"
	"github.com/MrPrayat/DA235X/internal/providers"
	"github.com/MrPrayat/DA235X/internal/records"
)

const maxPDFBytes = 200 << 20

var pdfMagic = []byte("%PDF")

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	Dir        string        // cache directory, usually <home>/raw_pdfs
	Timeout    time.Duration // per request
	Retry      backoff.Policy
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Fetcher downloads source PDFs into a local cache.
type Fetcher struct {
	dir    string
	client *http.Client
	retry  backoff.Policy
	logger *slog.Logger
}

// NewFetcher creates a fetcher. Only rate limiting, 408/5xx responses and
// timeouts are retried; anything else makes the source unreachable at once.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	retry := cfg.Retry
	retry.Retryable = isTransientFetchError
	if retry.Logger == nil {
		retry.Logger = cfg.Logger
	}
	return &Fetcher{dir: cfg.Dir, client: client, retry: retry, logger: cfg.Logger}
}

// CachePath returns where the PDF for id is cached. Ids that would leave the
// cache directory are rejected.
func (f *Fetcher) CachePath(id string) (string, error) {
	if err := records.ValidateID(id); err != nil {
		return "", err
	}
	return filepath.Join(f.dir, id+".pdf"), nil
}

// Fetch returns a local path to the source's PDF, downloading it unless a
// cached copy exists. Local paths and file:// URLs are used in place.
// Failures wrap ErrUnreachable unless ctx was cancelled.
func (f *Fetcher) Fetch(ctx context.Context, src Source) (string, error) {
	cached, err := f.CachePath(src.ID)
	if err != nil {
		return "", err
	}
	if local, ok := localPath(src.URL); ok {
		if err := checkPDF(local); err != nil {
			return "", fmt.Errorf("%s: %w: %v", src.ID, ErrUnreachable, err)
		}
		return local, nil
	}

	if err := checkPDF(cached); err == nil {
		f.logger.Debug("using cached PDF", "pdf_id", src.ID, "path", cached)
		return cached, nil
	}

	data, err := backoff.DoWithData(ctx, f.retry, func(ctx context.Context) ([]byte, error) {
		return f.download(ctx, src.URL)
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%s: %w: %v", src.ID, ErrUnreachable, err)
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		return "", fmt.Errorf("%s: %w: response is not a PDF", src.ID, ErrUnreachable)
	}

	if err := writeFileAtomic(cached, data); err != nil {
		return "", err
	}
	f.logger.Info("downloaded PDF", "pdf_id", src.ID, "bytes", len(data))
	return cached, nil
}

func (f *Fetcher) download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "besiktning/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, providers.NewStatusError("fetch", resp.StatusCode, string(body), resp.Header)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if len(data) > maxPDFBytes {
		return nil, fmt.Errorf("document exceeds %d bytes", maxPDFBytes)
	}
	return data, nil
}

func isTransientFetchError(err error) bool {
	if _, ok := providers.IsRateLimitError(err); ok {
		return true
	}
	var se *providers.StatusError
	if errors.As(err, &se) {
		return se.Transient()
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func localPath(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	switch u.Scheme {
	case "http", "https":
		return "", false
	case "file":
		return u.Path, true
	case "":
		return raw, true
	default:
		// Windows drive letters parse as a scheme.
		if len(u.Scheme) == 1 {
			return raw, true
		}
		return "", false
	}
}

func checkPDF(path string) error {
	fh, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fh.Close()
	head := make([]byte, len(pdfMagic))
	if _, err := io.ReadFull(fh, head); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if !bytes.Equal(head, pdfMagic) {
		return fmt.Errorf("%s is not a PDF", path)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	name := tmp.Name()
	defer os.Remove(name)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(name, path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}
