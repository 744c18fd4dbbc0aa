// Package app wires the resolver, download chain and services together so
// the HTTP server and the CLI share one dependency graph.
package app

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/iconidentify/tikgrab/internal/api"
	"github.com/iconidentify/tikgrab/internal/api/handler"
	"github.com/iconidentify/tikgrab/internal/bulk"
	"github.com/iconidentify/tikgrab/internal/cache"
	"github.com/iconidentify/tikgrab/internal/config"
	"github.com/iconidentify/tikgrab/internal/downloader"
	"github.com/iconidentify/tikgrab/internal/fusion"
	"github.com/iconidentify/tikgrab/internal/ratelimit"
	"github.com/iconidentify/tikgrab/internal/retry"
	"github.com/iconidentify/tikgrab/internal/service"
	"github.com/iconidentify/tikgrab/internal/urlnorm"
	"github.com/iconidentify/tikgrab/pkg/upstream"
)

// App holds the long-lived components.
type App struct {
	Config    *config.Config
	Events    *service.EventService
	Media     *service.MediaService
	Downloads *service.DownloadService
	Saver     *downloader.FileSaver
	Chain     *downloader.Chain
	Limiter   *ratelimit.Limiter

	logger *slog.Logger
}

// New builds every component from cfg. Notifications from all of them go
// to the returned App's EventService.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	events := service.NewEventService(service.EventServiceConfig{
		RingBufferSize: cfg.Events.RingBufferSize,
	}, logger.With("component", "events"))

	limiter := ratelimit.New(cfg.RateLimit.MinInterval, cfg.RateLimit.MaxPerMinute)

	metadata, err := upstream.NewMetadataClient(upstream.Options{
		Endpoint:  cfg.Upstream.MetadataURL,
		Timeout:   cfg.Upstream.Timeout,
		UserAgent: cfg.Upstream.UserAgent,
		Limiter:   limiter,
	})
	if err != nil {
		return nil, fmt.Errorf("metadata client: %w", err)
	}

	// The link provider is optional; without it every record is degraded.
	var links upstream.Fetcher
	if cfg.Upstream.LinksURL != "" {
		lc, err := upstream.NewLinkClient(upstream.Options{
			Endpoint:  cfg.Upstream.LinksURL,
			Timeout:   cfg.Upstream.Timeout,
			UserAgent: cfg.Upstream.UserAgent,
			Limiter:   limiter,
		})
		if err != nil {
			return nil, fmt.Errorf("link client: %w", err)
		}
		links = lc
	}

	media := service.NewMediaService(
		urlnorm.New(cfg.Upstream.AllowedDomains),
		cache.New(cfg.Cache.TTL, cfg.Cache.MaxEntries),
		metadata,
		links,
		fusion.MustEngine(),
		upstreamRetry(cfg.Upstream),
		events,
		logger.With("component", "media"),
	)

	saver, err := downloader.NewFileSaver(cfg.Storage, logger.With("component", "saver"))
	if err != nil {
		return nil, err
	}

	chain := downloader.NewChain(cfg.Download, logger.With("component", "downloader"))
	orchestrator := downloader.NewOrchestrator(
		chain.Strategies(),
		saver,
		downloader.NewNotifierOpener(events),
		events,
		downloader.RetryConfigFrom(cfg.Download),
		logger.With("component", "orchestrator"),
	)
	images := bulk.FromChain(chain, orchestrator, events, cfg.Bulk, logger.With("component", "bulk"))

	downloads := service.NewDownloadService(orchestrator, images, media, events, logger.With("component", "downloads"))

	return &App{
		Config:    cfg,
		Events:    events,
		Media:     media,
		Downloads: downloads,
		Saver:     saver,
		Chain:     chain,
		Limiter:   limiter,
		logger:    logger,
	}, nil
}

// Router builds the HTTP API over the App's services.
func (a *App) Router() http.Handler {
	deps := handler.HealthDeps{
		StoragePath: a.Config.Storage.BasePath,
		Storage:     a.Saver,
		Limiter:     a.Limiter,
		Cache:       a.Media,
		Downloads:   a.Downloads,
	}
	if a.Chain.Proxy != nil {
		deps.Proxy = a.Chain.Proxy
	}

	return api.NewRouter(api.Handlers{
		Media:     handler.NewMediaHandler(a.Media, a.logger),
		Downloads: handler.NewDownloadHandler(a.Downloads, a.logger),
		Files:     handler.NewFileHandler(a.Saver, a.logger),
		Events:    handler.NewEventHandler(a.Events, a.logger),
		Health:    handler.NewHealthHandler(deps),
	}, a.Config.Server.APIKey, a.Config.Server.WriteTimeout)
}

// Close cancels in-flight downloads and waits for staged files to be
// released.
func (a *App) Close() {
	if n := a.Downloads.CancelAll(); n > 0 {
		a.logger.Info("cancelled in-flight downloads", "count", n)
	}
	a.Saver.Wait()
}

func upstreamRetry(cfg config.UpstreamConfig) retry.Config {
	rc := retry.DefaultConfig()
	if cfg.MaxAttempts > 0 {
		rc.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.RetryDelay > 0 {
		rc.InitialDelay = cfg.RetryDelay
	}
	rc.MaxDelay = 10 * time.Second
	return rc
}
