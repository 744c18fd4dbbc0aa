package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/iconidentify/tikgrab/internal/cache"
	"github.com/iconidentify/tikgrab/internal/domain"
	"github.com/iconidentify/tikgrab/internal/fusion"
	"github.com/iconidentify/tikgrab/internal/retry"
	"github.com/iconidentify/tikgrab/internal/urlnorm"
	"github.com/iconidentify/tikgrab/pkg/upstream"
)

// RecordSource exposes the most recently resolved record.
type RecordSource interface {
	CurrentRecord() (*domain.MediaRecord, bool)
}

// MediaService turns a user-supplied post URL into a fused MediaRecord.
type MediaService struct {
	normalizer *urlnorm.Normalizer
	cache      *cache.Cache
	metadata   upstream.Fetcher
	links      upstream.Fetcher
	fusion     *fusion.Engine
	retryCfg   retry.Config
	notifier   domain.Notifier
	logger     *slog.Logger

	mu      sync.RWMutex
	current *domain.MediaRecord
}

// NewMediaService creates a new media service.
func NewMediaService(
	normalizer *urlnorm.Normalizer,
	c *cache.Cache,
	metadata upstream.Fetcher,
	links upstream.Fetcher,
	engine *fusion.Engine,
	retryCfg retry.Config,
	notifier domain.Notifier,
	logger *slog.Logger,
) *MediaService {
	if notifier == nil {
		notifier = domain.NopNotifier{}
	}
	return &MediaService{
		normalizer: normalizer,
		cache:      c,
		metadata:   metadata,
		links:      links,
		fusion:     engine,
		retryCfg:   retryCfg,
		notifier:   notifier,
		logger:     logger,
	}
}

// Resolve normalizes rawURL, serves it from cache when fresh, and otherwise
// fetches both upstream payloads concurrently and fuses them. A metadata
// failure fails the call. A link failure yields a degraded record.
func (s *MediaService) Resolve(ctx context.Context, rawURL string) (*domain.MediaRecord, error) {
	normalized, err := s.normalizer.Normalize(rawURL)
	if err != nil {
		s.toast(domain.EventSeverityError, "", "That doesn't look like a supported video link")
		return nil, err
	}

	if rec, ok := s.cache.Get(normalized); ok {
		s.logger.Debug("media cache hit", "url", normalized)
		s.setCurrent(rec)
		return rec, nil
	}

	opID := "res_" + uuid.New().String()[:8]
	logger := s.logger.With("operation_id", opID, "url", normalized)

	s.notifier.Notify(domain.NotifyLoadingStart, domain.Notification{
		Severity:    domain.EventSeverityInfo,
		Category:    domain.EventCategoryMedia,
		Message:     "Fetching video info",
		OperationID: opID,
	})

	meta, links, linkErr, err := s.fetchBoth(ctx, normalized)

	s.notifier.Notify(domain.NotifyLoadingEnd, domain.Notification{
		Severity:    domain.EventSeverityInfo,
		Category:    domain.EventCategoryMedia,
		OperationID: opID,
	})

	if err != nil {
		logger.Error("metadata fetch failed", "error", err)
		s.toast(domain.EventSeverityError, opID, userMessage(err))
		return nil, err
	}

	rec := s.fusion.Fuse(meta, links, linkErr, normalized)
	s.cache.Put(normalized, rec)
	s.setCurrent(rec)

	if rec.Degraded {
		logger.Warn("download links unavailable, using preview URLs", "error", linkErr)
		s.toast(domain.EventSeverityWarning, opID, "Download links unavailable, using preview quality")
	} else {
		logger.Info("media resolved", "id", rec.ID, "images", len(rec.Images))
		s.toast(domain.EventSeveritySuccess, opID, "Video info loaded")
	}

	return rec, nil
}

// fetchBoth runs the metadata and link fetches side by side. Only the
// metadata error is returned as err; the link error is reported separately
// so the caller can degrade.
func (s *MediaService) fetchBoth(ctx context.Context, normalized string) (meta, links *upstream.Payload, linkErr, err error) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		p, err := retry.Do(gctx, s.retryCfg, func(attempt int) (*upstream.Payload, error) {
			return s.metadata.Fetch(gctx, normalized)
		})
		if err != nil {
			return err
		}
		meta = p
		return nil
	})

	if s.links != nil {
		g.Go(func() error {
			p, err := retry.Do(gctx, s.retryCfg, func(attempt int) (*upstream.Payload, error) {
				return s.links.Fetch(gctx, normalized)
			})
			if err != nil {
				linkErr = err
				return nil
			}
			links = p
			return nil
		})
	} else {
		linkErr = errors.New("link provider not configured")
	}

	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}
	return meta, links, linkErr, nil
}

// CurrentRecord returns the most recently resolved record.
func (s *MediaService) CurrentRecord() (*domain.MediaRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.current != nil
}

// CacheLen reports the number of cached records.
func (s *MediaService) CacheLen() int {
	return s.cache.Len()
}

func (s *MediaService) setCurrent(rec *domain.MediaRecord) {
	s.mu.Lock()
	s.current = rec
	s.mu.Unlock()
}

func (s *MediaService) toast(sev domain.EventSeverity, opID, msg string) {
	s.notifier.Notify(domain.NotifyToast, domain.Notification{
		Severity:    sev,
		Category:    domain.EventCategoryMedia,
		Message:     msg,
		OperationID: opID,
	})
}

// userMessage maps an error to a short human-readable toast.
func userMessage(err error) string {
	var upErr *domain.UpstreamError
	var archiveErr *domain.ArchiveEmptyError
	switch {
	case errors.Is(err, context.Canceled):
		return "Cancelled"
	case errors.Is(err, domain.ErrInvalidURL):
		return "That doesn't look like a supported video link"
	case errors.Is(err, domain.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "The request timed out, please try again"
	case errors.Is(err, domain.ErrNoRecord):
		return "Load a video first"
	case errors.Is(err, domain.ErrNoImages):
		return "This post has no images"
	case errors.Is(err, domain.ErrStorageFull):
		return "Not enough disk space to save the file"
	case errors.As(err, &archiveErr):
		return "None of the images could be downloaded, try downloading them one by one"
	case errors.As(err, &upErr):
		return fmt.Sprintf("Could not load video info (%s)", upErr.Reason)
	default:
		return "Something went wrong, please try again"
	}
}
