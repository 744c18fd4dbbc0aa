package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/iconidentify/tikgrab/internal/config"
	"github.com/iconidentify/tikgrab/internal/domain"
)

// fetchMode selects how closely a request imitates a browser.
type fetchMode int

const (
	// permissive sends no spoofed headers and accepts any status below 400.
	permissive fetchMode = iota
	// strict sends browser headers and a Referer and requires a 2xx status.
	strict
)

func (m fetchMode) String() string {
	if m == strict {
		return "strict"
	}
	return "permissive"
}

// HTTPFetcher performs single GET requests against media hosts.
// It is shared by the direct, proxy and re-encode transports.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	referer   string
	maxBytes  int64
	timeout   time.Duration
	logger    *slog.Logger
}

// NewHTTPFetcher creates a fetcher. Each request is bounded by cfg.Timeout
// and by the caller's context.
func NewHTTPFetcher(cfg config.DownloadConfig, logger *slog.Logger) *HTTPFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPFetcher{
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: 30 * time.Second,
			},
		},
		userAgent: cfg.UserAgent,
		referer:   cfg.Referer,
		maxBytes:  cfg.MaxBytes,
		timeout:   cfg.Timeout,
		logger:    logger,
	}
}

// SetClient replaces the underlying HTTP client.
func (f *HTTPFetcher) SetClient(c *http.Client) {
	f.client = c
}

type fetchOptions struct {
	mode        fetchMode
	expectImage bool
	maxBytes    int64
}

// get fetches rawURL and returns the body and its content type.
// 401/403 and, when an image is expected, non-image bodies are reported as
// domain.ErrCrossOriginBlocked.
func (f *HTTPFetcher) get(parent context.Context, rawURL string, opts fetchOptions) ([]byte, string, error) {
	ctx := parent
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}

	if opts.mode == strict {
		// Set headers to mimic browser request
		if f.userAgent != "" {
			req.Header.Set("User-Agent", f.userAgent)
		}
		req.Header.Set("Accept", "video/mp4,video/*;q=0.9,image/*;q=0.9,audio/*;q=0.8,*/*;q=0.5")
		req.Header.Set("Accept-Language", "en-US,en;q=0.5")
		if f.referer != "" {
			req.Header.Set("Referer", f.referer)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", f.contextErr(parent, ctx)
		}
		return nil, "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
		return nil, "", fmt.Errorf("%w (status %d)", domain.ErrCrossOriginBlocked, resp.StatusCode)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, "", fmt.Errorf("%w (status %d)", domain.ErrRateLimited, resp.StatusCode)
	}

	ok := resp.StatusCode < 400
	if opts.mode == strict {
		ok = resp.StatusCode >= 200 && resp.StatusCode < 300
	}
	if !ok {
		return nil, "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if opts.expectImage && !isImageContentType(contentType) {
		return nil, "", fmt.Errorf("%w: content type %q", domain.ErrCrossOriginBlocked, contentType)
	}

	limit := opts.maxBytes
	if limit <= 0 {
		limit = f.maxBytes
	}
	var body io.Reader = newProgressReader(resp.Body, resp.ContentLength, f.logger, rawURL)
	if limit > 0 {
		body = io.LimitReader(body, limit+1)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", f.contextErr(parent, ctx)
		}
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, "", fmt.Errorf("response exceeds %d bytes", limit)
	}
	if len(data) == 0 {
		return nil, "", domain.ErrEmptyBody
	}

	return data, contentType, nil
}

// contextErr reports the caller's own cancellation as is and the fetcher's
// per-call deadline as domain.ErrTimeout, which stays retryable.
func (f *HTTPFetcher) contextErr(parent, ctx context.Context) error {
	if err := parent.Err(); err != nil {
		return err
	}
	return fmt.Errorf("%w after %s", domain.ErrTimeout, f.timeout)
}

// isImageContentType accepts image types, generic binary and a missing header.
func isImageContentType(ct string) bool {
	if ct == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "image/") || mediaType == "application/octet-stream" || mediaType == "binary/octet-stream"
}

// DirectTransport fetches the media URL itself, first permissively, then
// with browser headers.
type DirectTransport struct {
	fetcher *HTTPFetcher
	logger  *slog.Logger
}

// NewDirectTransport creates the direct transport.
func NewDirectTransport(fetcher *HTTPFetcher, logger *slog.Logger) *DirectTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &DirectTransport{fetcher: fetcher, logger: logger}
}

// Method implements Strategy.
func (d *DirectTransport) Method() domain.TransportMethod {
	return domain.MethodDirect
}

// Fetch implements Strategy.
func (d *DirectTransport) Fetch(ctx context.Context, t Target) ([]byte, error) {
	expectImage := t.Kind == domain.MediaKindImage

	data, _, err := d.fetcher.get(ctx, t.URL, fetchOptions{mode: permissive, expectImage: expectImage})
	if err == nil {
		return data, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	d.logger.Debug("permissive fetch failed, retrying with browser headers",
		"url", t.URL,
		"error", err,
	)

	data, _, strictErr := d.fetcher.get(ctx, t.URL, fetchOptions{mode: strict, expectImage: expectImage})
	if strictErr == nil {
		return data, nil
	}
	if errors.Is(strictErr, context.Canceled) || errors.Is(strictErr, context.DeadlineExceeded) {
		return nil, strictErr
	}
	return nil, fmt.Errorf("permissive: %w; strict: %w", err, strictErr)
}

// FetchImage fetches an image with browser headers, used by bulk archiving.
func (d *DirectTransport) FetchImage(ctx context.Context, rawURL string, maxBytes int64) ([]byte, string, error) {
	return d.fetcher.get(ctx, rawURL, fetchOptions{mode: strict, expectImage: true, maxBytes: maxBytes})
}

// progressReader wraps a body to log progress of large downloads.
type progressReader struct {
	reader     io.Reader
	total      int64
	downloaded int64
	lastLog    time.Time
	logger     *slog.Logger
	url        string
	mu         sync.Mutex
}

func newProgressReader(r io.Reader, total int64, logger *slog.Logger, url string) *progressReader {
	return &progressReader{
		reader:  r,
		total:   total,
		lastLog: time.Now(),
		logger:  logger,
		url:     url,
	}
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.reader.Read(buf)

	p.mu.Lock()
	defer p.mu.Unlock()

	if n > 0 {
		p.downloaded += int64(n)
		// Log progress every 30 seconds
		if time.Since(p.lastLog) > 30*time.Second {
			p.logProgress()
			p.lastLog = time.Now()
		}
	}

	return n, err
}

func (p *progressReader) logProgress() {
	if p.total > 0 {
		pct := float64(p.downloaded) / float64(p.total) * 100
		p.logger.Info("download progress",
			"url", p.url,
			"downloaded_mb", p.downloaded/(1024*1024),
			"total_mb", p.total/(1024*1024),
			"percent", fmt.Sprintf("%.1f%%", pct),
		)
	} else {
		p.logger.Info("download progress",
			"url", p.url,
			"downloaded_mb", p.downloaded/(1024*1024),
		)
	}
}
