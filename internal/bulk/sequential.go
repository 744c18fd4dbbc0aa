package bulk

import (
	"context"
	"fmt"
	"time"

	"github.com/iconidentify/tikgrab/internal/domain"
	"github.com/iconidentify/tikgrab/internal/downloader"
	"github.com/iconidentify/tikgrab/internal/naming"
)

// SequentialRequest asks for every image as its own file.
type SequentialRequest struct {
	Images      []domain.ImageItem
	BaseName    string
	OperationID string
	Mobile      bool
}

// ItemResult is the outcome for one image.
type ItemResult struct {
	Position int                    `json:"position"`
	URL      string                 `json:"url"`
	Result   *domain.DownloadResult `json:"result,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// SequentialResult summarises a one-by-one run.
type SequentialResult struct {
	Items     []ItemResult `json:"items"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Total     int          `json:"total"`
}

// DownloadEachIndividually downloads the images one at a time through the
// single-file fallback chain, pausing ItemDelay between items. A failed
// item is recorded and skipped. Cancellation stops the run and returns
// what finished so far together with the context error.
func (d *Downloader) DownloadEachIndividually(ctx context.Context, req SequentialRequest) (*SequentialResult, error) {
	total := len(req.Images)
	if total == 0 {
		return nil, domain.ErrNoImages
	}
	if d.single == nil {
		return nil, fmt.Errorf("sequential download: no single-file downloader configured")
	}

	result := &SequentialResult{Total: total}
	logger := d.logger.With("operation_id", req.OperationID, "images", total)

	for i, img := range req.Images {
		if i > 0 && d.cfg.ItemDelay > 0 {
			if err := wait(ctx, d.cfg.ItemDelay); err != nil {
				return result, err
			}
		}

		pos := img.Position
		if pos <= 0 {
			pos = i + 1
		}
		item := ItemResult{Position: pos, URL: img.DownloadURL}

		res, err := d.single.Download(ctx, downloader.Request{
			URL:         img.DownloadURL,
			Filename:    naming.ImageEntry(req.BaseName, pos, ".jpg"),
			Kind:        domain.MediaKindImage,
			Mobile:      req.Mobile,
			OperationID: req.OperationID,
		})
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			item.Error = err.Error()
			result.Failed++
			logger.Warn("image download failed, skipping", "position", pos, "error", err)
		} else {
			item.Result = res
			result.Succeeded++
		}
		result.Items = append(result.Items, item)

		d.progress(req.OperationID, i+1, total, fmt.Sprintf("Downloaded %d of %d images", i+1, total))
	}

	logger.Info("sequential download finished", "succeeded", result.Succeeded, "failed", result.Failed)
	return result, nil
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
