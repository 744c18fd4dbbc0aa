package downloader

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/iconidentify/tikgrab/internal/domain"
)

// ProxyTransport fetches media through a same-origin download proxy that
// forwards the upstream bytes.
type ProxyTransport struct {
	fetcher      *HTTPFetcher
	proxyURL     string
	healthURL    string
	probeTimeout time.Duration
	logger       *slog.Logger
}

// NewProxyTransport creates the proxy transport. healthURL may be empty, in
// which case the proxy endpoint itself is probed.
func NewProxyTransport(fetcher *HTTPFetcher, proxyURL, healthURL string, probeTimeout time.Duration, logger *slog.Logger) *ProxyTransport {
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProxyTransport{
		fetcher:      fetcher,
		proxyURL:     proxyURL,
		healthURL:    healthURL,
		probeTimeout: probeTimeout,
		logger:       logger,
	}
}

// Method implements Strategy.
func (p *ProxyTransport) Method() domain.TransportMethod {
	return domain.MethodProxy
}

// Check probes the proxy and reports its state without failing.
func (p *ProxyTransport) Check(ctx context.Context) *ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, p.probeTimeout)
	defer cancel()

	method, target := http.MethodGet, p.healthURL
	if target == "" {
		method, target = http.MethodHead, p.proxyURL
	}

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return &ProbeResult{Error: err.Error()}
	}

	resp, err := p.fetcher.client.Do(req)
	if err != nil {
		return &ProbeResult{Error: err.Error()}
	}
	resp.Body.Close()

	result := &ProbeResult{
		StatusCode: resp.StatusCode,
		// A bare proxy endpoint answers 4xx without a url parameter; only
		// server errors mean it is down.
		Healthy: resp.StatusCode < 500,
	}
	if !result.Healthy {
		result.Error = fmt.Sprintf("status code %d", resp.StatusCode)
	}
	return result
}

// Probe implements Prober.
func (p *ProxyTransport) Probe(ctx context.Context) error {
	result := p.Check(ctx)
	if result.Healthy {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %s", domain.ErrProxyUnhealthy, result.Error)
}

// Fetch implements Strategy.
func (p *ProxyTransport) Fetch(ctx context.Context, t Target) ([]byte, error) {
	reqURL, err := p.requestURL(t)
	if err != nil {
		return nil, err
	}
	data, _, err := p.fetcher.get(ctx, reqURL, fetchOptions{
		mode:        permissive,
		expectImage: t.Kind == domain.MediaKindImage,
	})
	return data, err
}

// FetchImage fetches an image through the proxy, used by bulk archiving.
func (p *ProxyTransport) FetchImage(ctx context.Context, rawURL string, maxBytes int64) ([]byte, string, error) {
	reqURL, err := p.requestURL(Target{URL: rawURL, Kind: domain.MediaKindImage})
	if err != nil {
		return nil, "", err
	}
	return p.fetcher.get(ctx, reqURL, fetchOptions{mode: permissive, expectImage: true, maxBytes: maxBytes})
}

func (p *ProxyTransport) requestURL(t Target) (string, error) {
	u, err := url.Parse(p.proxyURL)
	if err != nil {
		return "", fmt.Errorf("parse proxy URL: %w", err)
	}
	q := u.Query()
	q.Set("url", t.URL)
	if t.Filename != "" {
		q.Set("filename", t.Filename)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
