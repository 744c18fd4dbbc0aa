package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iconidentify/tikgrab/internal/domain"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	maxResponseBytes = 4 << 20
)

// Options configures an API client.
type Options struct {
	Endpoint   string
	Timeout    time.Duration
	UserAgent  string
	Limiter    RateLimiter
	HTTPClient *http.Client
}

// apiClient holds what both providers share: endpoint, rate limiter and
// the request/decode/error-mapping path.
type apiClient struct {
	provider   string
	endpoint   string
	origin     *url.URL
	timeout    time.Duration
	userAgent  string
	limiter    RateLimiter
	httpClient *http.Client
}

func newAPIClient(provider string, opts Options) (*apiClient, error) {
	endpoint, err := url.Parse(opts.Endpoint)
	if err != nil || endpoint.Scheme == "" || endpoint.Host == "" {
		return nil, fmt.Errorf("%s endpoint %q must be an absolute URL", provider, opts.Endpoint)
	}

	c := &apiClient{
		provider:   provider,
		endpoint:   opts.Endpoint,
		origin:     &url.URL{Scheme: endpoint.Scheme, Host: endpoint.Host},
		timeout:    opts.Timeout,
		userAgent:  opts.UserAgent,
		limiter:    opts.Limiter,
		httpClient: opts.HTTPClient,
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.userAgent == "" {
		c.userAgent = defaultUserAgent
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	return c, nil
}

// getJSON waits for the limiter, sends GET endpoint?url=target and decodes
// the body into out. Every failure comes back as *domain.UpstreamError.
func (c *apiClient) getJSON(ctx context.Context, target string, extra url.Values, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Acquire(ctx); err != nil {
			return domain.NewUpstreamError(c.provider, "rate limiter wait aborted", 0, err)
		}
	}

	reqURL, err := c.requestURL(target, extra)
	if err != nil {
		return domain.NewUpstreamError(c.provider, "build request URL", 0, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, reqURL, nil)
	if err != nil {
		return domain.NewUpstreamError(c.provider, "create request", 0, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return domain.NewUpstreamError(c.provider, "request timed out", 0,
				fmt.Errorf("%w after %s", domain.ErrTimeout, c.timeout))
		}
		if ctx.Err() != nil {
			return domain.NewUpstreamError(c.provider, "request aborted", 0, ctx.Err())
		}
		return domain.NewUpstreamError(c.provider, "network failure", 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return domain.NewUpstreamError(c.provider, "request timed out", resp.StatusCode, domain.ErrTimeout)
		}
		return domain.NewUpstreamError(c.provider, "read response", resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.NewUpstreamError(c.provider, "unexpected status", resp.StatusCode,
			errors.New(truncate(strings.TrimSpace(string(body)), 200)))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return domain.NewUpstreamError(c.provider, "malformed response", resp.StatusCode, err)
	}
	return nil
}

func (c *apiClient) requestURL(target string, extra url.Values) (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("url", target)
	for k, vs := range extra {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// resolve turns a provider-relative media path into an absolute URL.
func (c *apiClient) resolve(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "//") {
		return c.origin.Scheme + ":" + ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if u.IsAbs() {
		return ref
	}
	return c.origin.ResolveReference(u).String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// flexString accepts a JSON string or number.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = flexString(n.String())
	return nil
}
