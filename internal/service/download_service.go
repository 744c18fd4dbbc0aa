package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/iconidentify/tikgrab/internal/bulk"
	"github.com/iconidentify/tikgrab/internal/domain"
	"github.com/iconidentify/tikgrab/internal/downloader"
	"github.com/iconidentify/tikgrab/internal/naming"
)

// Variant selects which URL of the current record to download.
type Variant string

const (
	VariantVideo   Variant = "video"
	VariantVideoHD Variant = "video_hd"
	VariantAudio   Variant = "audio"
	VariantImage   Variant = "image"
)

// ParseVariant accepts the variant keys plus a few aliases.
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "video", "sd":
		return VariantVideo, nil
	case "video_hd", "hd":
		return VariantVideoHD, nil
	case "audio", "music", "mp3":
		return VariantAudio, nil
	case "image", "photo":
		return VariantImage, nil
	}
	return "", fmt.Errorf("unknown download kind %q", s)
}

// Kind maps the variant to the media kind used for transports and naming.
func (v Variant) Kind() domain.MediaKind {
	switch v {
	case VariantAudio:
		return domain.MediaKindAudio
	case VariantImage:
		return domain.MediaKindImage
	default:
		return domain.MediaKindVideo
	}
}

// URLFor picks the best download URL of rec for v.
func URLFor(rec *domain.MediaRecord, v Variant) string {
	d := rec.DownloadURLs
	switch v {
	case VariantVideoHD:
		return firstNonEmpty(d.HighDef, d.NoWatermark, d.Standard)
	case VariantAudio:
		if d.Audio != "" {
			return d.Audio
		}
		if rec.Music != nil {
			return rec.Music.URL
		}
		return ""
	case VariantImage:
		if len(rec.Images) > 0 {
			return rec.Images[0].DownloadURL
		}
		return rec.CoverURL
	default:
		return firstNonEmpty(d.NoWatermark, d.Standard, d.HighDef)
	}
}

// BulkDownloader is the subset of bulk.Downloader the service uses.
type BulkDownloader interface {
	ArchiveAll(ctx context.Context, req bulk.ArchiveRequest) (*bulk.ArchiveResult, error)
	DownloadEachIndividually(ctx context.Context, req bulk.SequentialRequest) (*bulk.SequentialResult, error)
}

// Operation is one in-flight download.
type Operation struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Target    string    `json:"target,omitempty"`
	StartedAt time.Time `json:"started_at"`

	cancel context.CancelFunc
}

// DownloadService runs user-initiated downloads, tracks them so they can be
// cancelled, and reports every outcome as a notification.
type DownloadService struct {
	single   bulk.SingleDownloader
	bulk     BulkDownloader
	records  RecordSource
	notifier domain.Notifier
	logger   *slog.Logger

	mu  sync.Mutex
	ops map[string]*Operation
}

// NewDownloadService creates a new download service.
func NewDownloadService(single bulk.SingleDownloader, b BulkDownloader, records RecordSource, notifier domain.Notifier, logger *slog.Logger) *DownloadService {
	if notifier == nil {
		notifier = domain.NopNotifier{}
	}
	return &DownloadService{
		single:   single,
		bulk:     b,
		records:  records,
		notifier: notifier,
		logger:   logger,
		ops:      make(map[string]*Operation),
	}
}

// DownloadRequest asks for one file. When URL is empty the URL is taken
// from the current record according to Variant.
type DownloadRequest struct {
	URL      string
	Filename string
	Variant  Variant
	Mobile   bool
}

// DownloadMedia downloads a single file through the fallback chain.
func (s *DownloadService) DownloadMedia(ctx context.Context, req DownloadRequest) (*domain.DownloadResult, error) {
	if req.Variant == "" {
		req.Variant = VariantVideo
	}
	kind := req.Variant.Kind()

	target := req.URL
	filename := req.Filename
	if rec, ok := s.records.CurrentRecord(); ok {
		if target == "" {
			target = URLFor(rec, req.Variant)
		}
		if filename == "" {
			filename = naming.ForRecord(rec, kind, string(req.Variant))
		}
	} else if target == "" {
		s.toast(domain.EventSeverityError, domain.EventCategoryDownload, "", userMessage(domain.ErrNoRecord))
		return nil, domain.ErrNoRecord
	}

	ctx, op, done := s.begin(ctx, string(req.Variant), target)
	defer done()

	logger := s.logger.With("operation_id", op.ID, "variant", req.Variant)
	s.loading(domain.NotifyLoadingStart, domain.EventCategoryDownload, op.ID, fmt.Sprintf("Downloading %s", kind))

	result, err := s.single.Download(ctx, downloader.Request{
		URL:         target,
		Filename:    filename,
		Kind:        kind,
		Mobile:      req.Mobile,
		OperationID: op.ID,
	})

	s.loading(domain.NotifyLoadingEnd, domain.EventCategoryDownload, op.ID, "")

	if err != nil {
		logger.Error("download failed", "error", err)
		s.toast(domain.EventSeverityError, domain.EventCategoryDownload, op.ID, userMessage(err))
		return result, err
	}

	switch {
	case result.HandedOff:
		s.toast(domain.EventSeverityWarning, domain.EventCategoryDownload, op.ID,
			"Opened the link in your browser, save it from there")
	case result.Saved != nil:
		s.toast(domain.EventSeveritySuccess, domain.EventCategoryDownload, op.ID,
			fmt.Sprintf("Saved %s (%s)", result.Saved.Name, humanize.Bytes(uint64(result.Saved.Size))))
	}
	logger.Info("download finished", "method", result.Method, "handed_off", result.HandedOff)
	return result, nil
}

// ImagesRequest asks for a set of images. When Images is empty the current
// record's slides are used ("download all").
type ImagesRequest struct {
	Images   []string
	BaseName string
	Mobile   bool
}

// ArchiveImages downloads the images and bundles them into one ZIP.
func (s *DownloadService) ArchiveImages(ctx context.Context, req ImagesRequest) (*bulk.ArchiveResult, error) {
	items, base, err := s.imageTargets(req)
	if err != nil {
		s.toast(domain.EventSeverityError, domain.EventCategoryArchive, "", userMessage(err))
		return nil, err
	}

	ctx, op, done := s.begin(ctx, "archive", base)
	defer done()

	s.loading(domain.NotifyLoadingStart, domain.EventCategoryArchive, op.ID, fmt.Sprintf("Downloading %d images", len(items)))
	result, err := s.bulk.ArchiveAll(ctx, bulk.ArchiveRequest{Images: items, BaseName: base, OperationID: op.ID})
	s.loading(domain.NotifyLoadingEnd, domain.EventCategoryArchive, op.ID, "")

	if err != nil {
		s.logger.Error("archive failed", "operation_id", op.ID, "error", err)
		s.toast(domain.EventSeverityError, domain.EventCategoryArchive, op.ID, userMessage(err))
		return nil, err
	}

	sev := domain.EventSeveritySuccess
	msg := fmt.Sprintf("Archive ready: %d images (%s)", result.Succeeded, humanize.Bytes(uint64(len(result.Data))))
	if result.Succeeded < result.Total {
		sev = domain.EventSeverityWarning
		msg = fmt.Sprintf("Archive ready: %d of %d images, some could not be downloaded", result.Succeeded, result.Total)
	}
	s.toast(sev, domain.EventCategoryArchive, op.ID, msg)
	return result, nil
}

// DownloadImages downloads the images one at a time as separate files.
func (s *DownloadService) DownloadImages(ctx context.Context, req ImagesRequest) (*bulk.SequentialResult, error) {
	items, base, err := s.imageTargets(req)
	if err != nil {
		s.toast(domain.EventSeverityError, domain.EventCategoryDownload, "", userMessage(err))
		return nil, err
	}

	ctx, op, done := s.begin(ctx, "images", base)
	defer done()

	s.loading(domain.NotifyLoadingStart, domain.EventCategoryDownload, op.ID, fmt.Sprintf("Downloading %d images", len(items)))
	result, err := s.bulk.DownloadEachIndividually(ctx, bulk.SequentialRequest{
		Images:      items,
		BaseName:    base,
		OperationID: op.ID,
		Mobile:      req.Mobile,
	})
	s.loading(domain.NotifyLoadingEnd, domain.EventCategoryDownload, op.ID, "")

	if err != nil {
		s.logger.Warn("sequential download stopped", "operation_id", op.ID, "error", err)
		s.toast(domain.EventSeverityError, domain.EventCategoryDownload, op.ID, userMessage(err))
		return result, err
	}

	switch {
	case result.Failed == 0:
		s.toast(domain.EventSeveritySuccess, domain.EventCategoryDownload, op.ID,
			fmt.Sprintf("Downloaded all %d images", result.Succeeded))
	case result.Succeeded == 0:
		s.toast(domain.EventSeverityError, domain.EventCategoryDownload, op.ID, "None of the images could be downloaded")
	default:
		s.toast(domain.EventSeverityWarning, domain.EventCategoryDownload, op.ID,
			fmt.Sprintf("Downloaded %d of %d images", result.Succeeded, result.Total))
	}
	return result, nil
}

func (s *DownloadService) imageTargets(req ImagesRequest) ([]domain.ImageItem, string, error) {
	base := req.BaseName
	if len(req.Images) > 0 {
		if base == "" {
			if rec, ok := s.records.CurrentRecord(); ok {
				base = naming.BaseName(rec)
			}
		}
		return bulk.ImagesFromURLs(req.Images), base, nil
	}

	rec, ok := s.records.CurrentRecord()
	if !ok {
		return nil, "", domain.ErrNoRecord
	}
	if !rec.IsSlideshow() {
		return nil, "", domain.ErrNoImages
	}
	if base == "" {
		base = naming.BaseName(rec)
	}
	return rec.Images, base, nil
}

// CancelAll cancels every in-flight operation and returns how many were
// cancelled.
func (s *DownloadService) CancelAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, op := range s.ops {
		op.cancel()
	}
	n := len(s.ops)
	if n > 0 {
		s.logger.Info("cancelled in-flight downloads", "count", n)
		s.notifier.Notify(domain.NotifyToast, domain.Notification{
			Severity: domain.EventSeverityInfo,
			Category: domain.EventCategoryDownload,
			Message:  fmt.Sprintf("Cancelled %d download(s)", n),
		})
	}
	return n
}

// InFlight lists the running operations, oldest first.
func (s *DownloadService) InFlight() []Operation {
	s.mu.Lock()
	defer s.mu.Unlock()

	ops := make([]Operation, 0, len(s.ops))
	for _, op := range s.ops {
		ops = append(ops, Operation{ID: op.ID, Kind: op.Kind, Target: op.Target, StartedAt: op.StartedAt})
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].StartedAt.Before(ops[j].StartedAt) })
	return ops
}

func (s *DownloadService) begin(ctx context.Context, kind, target string) (context.Context, *Operation, func()) {
	ctx, cancel := context.WithCancel(ctx)
	op := &Operation{
		ID:        "dl_" + uuid.New().String()[:8],
		Kind:      kind,
		Target:    target,
		StartedAt: time.Now(),
		cancel:    cancel,
	}

	s.mu.Lock()
	s.ops[op.ID] = op
	s.mu.Unlock()

	return ctx, op, func() {
		cancel()
		s.mu.Lock()
		delete(s.ops, op.ID)
		s.mu.Unlock()
	}
}

func (s *DownloadService) loading(kind domain.NotificationKind, cat domain.EventCategory, opID, msg string) {
	s.notifier.Notify(kind, domain.Notification{
		Severity:    domain.EventSeverityInfo,
		Category:    cat,
		Message:     msg,
		OperationID: opID,
	})
}

func (s *DownloadService) toast(sev domain.EventSeverity, cat domain.EventCategory, opID, msg string) {
	s.notifier.Notify(domain.NotifyToast, domain.Notification{
		Severity:    sev,
		Category:    cat,
		Message:     msg,
		OperationID: opID,
	})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
