// Package bulk downloads every image of a photo post, either as one ZIP
// archive or one file at a time.
package bulk

import (
	"context"
	"log/slog"
	"time"

	"github.com/iconidentify/tikgrab/internal/config"
	"github.com/iconidentify/tikgrab/internal/domain"
	"github.com/iconidentify/tikgrab/internal/downloader"
)

// ImageFetcher fetches one image and returns its bytes and content type.
type ImageFetcher interface {
	FetchImage(ctx context.Context, rawURL string, maxBytes int64) ([]byte, string, error)
}

// Reencoder fetches an image and returns it re-encoded as JPEG.
type Reencoder interface {
	FetchAndReencode(ctx context.Context, rawURL string, maxBytes int64) ([]byte, error)
}

// SingleDownloader downloads one target through the full fallback chain.
type SingleDownloader interface {
	Download(ctx context.Context, req downloader.Request) (*domain.DownloadResult, error)
}

// Downloader runs bulk image downloads.
type Downloader struct {
	primary   []ImageFetcher
	reencoder Reencoder
	single    SingleDownloader
	notifier  domain.Notifier
	cfg       config.BulkConfig
	logger    *slog.Logger
}

// New creates a bulk downloader. primary is tried in order for each image
// (normally proxy, then direct).
func New(primary []ImageFetcher, reencoder Reencoder, single SingleDownloader, notifier domain.Notifier, cfg config.BulkConfig, logger *slog.Logger) *Downloader {
	if notifier == nil {
		notifier = domain.NopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 3
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &Downloader{
		primary:   primary,
		reencoder: reencoder,
		single:    single,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger,
	}
}

// FromChain wires a bulk downloader to the configured transports.
func FromChain(chain *downloader.Chain, single SingleDownloader, notifier domain.Notifier, cfg config.BulkConfig, logger *slog.Logger) *Downloader {
	var primary []ImageFetcher
	if chain.Proxy != nil {
		primary = append(primary, chain.Proxy)
	}
	primary = append(primary, chain.Direct)
	return New(primary, chain.Reencode, single, notifier, cfg, logger)
}

// ImagesFromURLs turns a plain URL list into positioned items.
func ImagesFromURLs(urls []string) []domain.ImageItem {
	items := make([]domain.ImageItem, 0, len(urls))
	for i, u := range urls {
		items = append(items, domain.ImageItem{ThumbnailURL: u, DownloadURL: u, Position: i + 1})
	}
	return items
}

func (d *Downloader) progress(opID string, done, total int, msg string) {
	d.notifier.Notify(domain.NotifyLoadingUpdate, domain.Notification{
		Severity:    domain.EventSeverityInfo,
		Category:    domain.EventCategoryArchive,
		Message:     msg,
		OperationID: opID,
		Data:        domain.EventMetadata{"done": done, "total": total},
	})
}
