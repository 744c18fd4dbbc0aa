package downloader

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/iconidentify/tikgrab/internal/config"
	"github.com/iconidentify/tikgrab/internal/domain"
	"github.com/iconidentify/tikgrab/internal/naming"
	"github.com/iconidentify/tikgrab/internal/retry"
)

// placeholderTargets are values front ends put in links that are not ready.
var placeholderTargets = map[string]struct{}{
	"#":                  {},
	"about:blank":        {},
	"javascript:void(0)": {},
	"javascript:;":       {},
	"undefined":          {},
	"null":               {},
	"placeholder":        {},
}

// IsValidTarget reports whether rawURL can be downloaded at all.
func IsValidTarget(rawURL string) bool {
	u := strings.TrimSpace(rawURL)
	if u == "" {
		return false
	}
	_, placeholder := placeholderTargets[strings.ToLower(u)]
	return !placeholder
}

// Request is a single download request.
type Request struct {
	URL         string
	Filename    string
	Kind        domain.MediaKind
	Mobile      bool
	OperationID string
}

// Orchestrator tries each strategy in order, retrying the retryable ones,
// and hands the link to the user's client when every strategy failed.
type Orchestrator struct {
	strategies []Strategy
	saver      Saver
	opener     Opener
	notifier   domain.Notifier
	retry      retry.Config
	logger     *slog.Logger
}

// NewOrchestrator creates an orchestrator over an explicit strategy chain.
func NewOrchestrator(strategies []Strategy, saver Saver, opener Opener, notifier domain.Notifier, retryCfg retry.Config, logger *slog.Logger) *Orchestrator {
	if notifier == nil {
		notifier = domain.NopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		strategies: strategies,
		saver:      saver,
		opener:     opener,
		notifier:   notifier,
		retry:      retryCfg,
		logger:     logger,
	}
}

// Chain holds the transports built from configuration.
type Chain struct {
	Fetcher  *HTTPFetcher
	Proxy    *ProxyTransport // nil when no proxy is configured
	Direct   *DirectTransport
	Reencode *ReencodeTransport
}

// NewChain builds the proxy, direct and re-encode transports.
func NewChain(cfg config.DownloadConfig, logger *slog.Logger) *Chain {
	fetcher := NewHTTPFetcher(cfg, logger)
	c := &Chain{
		Fetcher:  fetcher,
		Direct:   NewDirectTransport(fetcher, logger),
		Reencode: NewReencodeTransport(fetcher, cfg.JPEGQuality, logger),
	}
	if cfg.ProxyURL != "" {
		c.Proxy = NewProxyTransport(fetcher, cfg.ProxyURL, cfg.ProxyHealthURL, cfg.ProbeTimeout, logger)
	}
	return c
}

// Strategies returns the ordered chain: proxy, direct, re-encode.
func (c *Chain) Strategies() []Strategy {
	var s []Strategy
	if c.Proxy != nil {
		s = append(s, c.Proxy)
	}
	return append(s, c.Direct, c.Reencode)
}

// RetryConfigFrom converts download settings to a retry policy.
func RetryConfigFrom(cfg config.DownloadConfig) retry.Config {
	rc := retry.DefaultConfig()
	if cfg.MaxAttempts > 0 {
		rc.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.RetryDelay > 0 {
		rc.InitialDelay = cfg.RetryDelay
	}
	if cfg.MaxRetryDelay > 0 {
		rc.MaxDelay = cfg.MaxRetryDelay
	}
	return rc
}

// Download runs the fallback chain for one target. It fails only when the
// target is invalid, the context ends, or the final handoff itself fails.
func (o *Orchestrator) Download(ctx context.Context, req Request) (*domain.DownloadResult, error) {
	if !IsValidTarget(req.URL) {
		return nil, domain.ErrInvalidTarget
	}
	kind := req.Kind
	if !kind.Valid() {
		kind = domain.MediaKindVideo
	}
	opID := req.OperationID
	if opID == "" {
		opID = "att_" + uuid.New().String()[:8]
	}

	filename := SafeFilename(req.Filename, kind)
	target := Target{URL: strings.TrimSpace(req.URL), Filename: filename, Kind: kind}
	attempt := domain.NewDownloadAttempt(opID, target.URL, filename, kind)

	logger := o.logger.With("operation_id", opID, "kind", kind)

	for _, s := range o.strategies {
		if f, ok := s.(KindFilter); ok && !f.Supports(kind) {
			continue
		}
		method := s.Method()
		attempt.Begin(method)

		if p, ok := s.(Prober); ok {
			attempt.Transition(domain.AttemptProbing)
			if err := p.Probe(ctx); err != nil {
				if ctx.Err() != nil {
					return o.abort(attempt, ctx.Err())
				}
				attempt.Fail(&domain.TransportError{Method: method, Err: err})
				logger.Warn("transport probe failed", "method", method, "error", err)
				continue
			}
		}

		o.progress(opID, "Downloading via "+string(method), method)
		attempt.Transition(domain.AttemptTransferring)

		data, err := retry.Do(ctx, o.retry, func(int) ([]byte, error) {
			return s.Fetch(ctx, target)
		})
		if err != nil {
			if ctx.Err() != nil {
				return o.abort(attempt, ctx.Err())
			}
			attempt.Fail(&domain.TransportError{Method: method, Err: err})
			logger.Warn("transport failed", "method", method, "error", err)
			continue
		}

		name := filename
		if kind == domain.MediaKindImage {
			name = naming.WithExtension(filename, ImageExtension(data, ""))
		}
		saved, err := o.saver.SaveBytesAsFile(ctx, data, name)
		if err != nil {
			if ctx.Err() != nil {
				return o.abort(attempt, ctx.Err())
			}
			attempt.Fail(&domain.TransportError{Method: method, Err: err})
			logger.Warn("save failed", "method", method, "error", err)
			continue
		}

		attempt.Transition(domain.AttemptSaved)
		attempt.Transition(domain.AttemptDone)
		logger.Info("download saved", "method", method, "file", saved.Name, "bytes", saved.Size)
		return &domain.DownloadResult{Method: method, Saved: saved, Attempt: attempt}, nil
	}

	return o.handoff(ctx, attempt, req, filename, logger)
}

func (o *Orchestrator) handoff(ctx context.Context, attempt *domain.DownloadAttempt, req Request, filename string, logger *slog.Logger) (*domain.DownloadResult, error) {
	if err := ctx.Err(); err != nil {
		return o.abort(attempt, err)
	}

	attempt.Begin(domain.MethodHandoff)
	attempt.Transition(domain.AttemptTransferring)

	if o.opener == nil {
		return o.exhausted(attempt, errors.New("no opener configured"))
	}

	err := o.opener.OpenExternal(ctx, OpenRequest{
		URL:         attempt.TargetURL,
		Filename:    filename,
		Mobile:      req.Mobile,
		OperationID: attempt.ID,
	})
	if err != nil {
		return o.exhausted(attempt, err)
	}

	attempt.Transition(domain.AttemptDone)
	logger.Info("download handed off to client", "methods_tried", attempt.MethodsTried)
	return &domain.DownloadResult{Method: domain.MethodHandoff, HandedOff: true, Attempt: attempt}, nil
}

func (o *Orchestrator) exhausted(attempt *domain.DownloadAttempt, err error) (*domain.DownloadResult, error) {
	terr := &domain.TransportError{Method: domain.MethodHandoff, Err: err}
	attempt.Fail(terr)
	attempt.Transition(domain.AttemptExhausted)
	return &domain.DownloadResult{Attempt: attempt}, terr
}

func (o *Orchestrator) abort(attempt *domain.DownloadAttempt, err error) (*domain.DownloadResult, error) {
	attempt.Fail(err)
	attempt.Transition(domain.AttemptExhausted)
	return &domain.DownloadResult{Attempt: attempt}, err
}

func (o *Orchestrator) progress(opID, msg string, method domain.TransportMethod) {
	o.notifier.Notify(domain.NotifyLoadingUpdate, domain.Notification{
		Severity:    domain.EventSeverityInfo,
		Category:    domain.EventCategoryDownload,
		Message:     msg,
		OperationID: opID,
		Data:        domain.EventMetadata{"method": string(method)},
	})
}
