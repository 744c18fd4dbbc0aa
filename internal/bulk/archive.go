package bulk

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/iconidentify/tikgrab/internal/domain"
	"github.com/iconidentify/tikgrab/internal/downloader"
	"github.com/iconidentify/tikgrab/internal/naming"
	"github.com/iconidentify/tikgrab/internal/retry"
)

// ArchiveRequest asks for every image bundled into one ZIP.
type ArchiveRequest struct {
	Images      []domain.ImageItem
	BaseName    string
	OperationID string
}

// ImageFailure records an image left out of an archive.
type ImageFailure struct {
	Position int    `json:"position"`
	URL      string `json:"url"`
	Error    string `json:"error"`
}

// ArchiveResult is a finished archive. Failed images are simply absent.
type ArchiveResult struct {
	Data      []byte         `json:"-"`
	Filename  string         `json:"filename"`
	Succeeded int            `json:"succeeded"`
	Total     int            `json:"total"`
	Reencoded int            `json:"reencoded,omitempty"`
	Failures  []ImageFailure `json:"failures,omitempty"`
}

type fetched struct {
	data   []byte
	ext    string
	method domain.TransportMethod
	err    error
}

// ArchiveAll downloads the images in batches, BatchSize at a time, and
// zips whatever succeeded. Batch N+1 starts only after batch N finished.
// It returns *domain.ArchiveEmptyError when nothing could be fetched.
func (d *Downloader) ArchiveAll(ctx context.Context, req ArchiveRequest) (*ArchiveResult, error) {
	total := len(req.Images)
	if total == 0 {
		return nil, domain.ErrNoImages
	}

	logger := d.logger.With("operation_id", req.OperationID, "images", total)
	results := make([]fetched, total)

	for start := 0; start < total; start += d.cfg.BatchSize {
		end := min(start+d.cfg.BatchSize, total)

		var g errgroup.Group
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				results[i] = d.fetchImage(ctx, req.Images[i].DownloadURL)
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d.progress(req.OperationID, end, total, fmt.Sprintf("Downloaded %d of %d images", end, total))
	}

	result := &ArchiveResult{
		Filename: naming.ArchiveName(req.BaseName),
		Total:    total,
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	now := time.Now()

	for i, r := range results {
		img := req.Images[i]
		pos := img.Position
		if pos <= 0 {
			pos = i + 1
		}
		if r.err != nil {
			result.Failures = append(result.Failures, ImageFailure{Position: pos, URL: img.DownloadURL, Error: r.err.Error()})
			logger.Warn("image left out of archive", "position", pos, "error", r.err)
			continue
		}

		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     naming.ImageEntry(req.BaseName, pos, r.ext),
			Method:   zip.Deflate,
			Modified: now,
		})
		if err != nil {
			return nil, fmt.Errorf("create archive entry: %w", err)
		}
		if _, err := w.Write(r.data); err != nil {
			return nil, fmt.Errorf("write archive entry: %w", err)
		}
		result.Succeeded++
		if r.method == domain.MethodReencode {
			result.Reencoded++
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finish archive: %w", err)
	}

	if result.Succeeded == 0 {
		return nil, &domain.ArchiveEmptyError{Total: total}
	}

	result.Data = buf.Bytes()
	logger.Info("archive built",
		"succeeded", result.Succeeded,
		"failed", len(result.Failures),
		"size", humanize.Bytes(uint64(len(result.Data))),
	)
	return result, nil
}

// fetchImage tries the primary fetchers with retry. On the last attempt a
// cross-origin refusal falls back to re-encoding.
func (d *Downloader) fetchImage(ctx context.Context, rawURL string) fetched {
	if !downloader.IsValidTarget(rawURL) {
		return fetched{err: domain.ErrInvalidTarget}
	}
	policy := retry.Config{
		MaxAttempts:   d.cfg.MaxAttempts,
		InitialDelay:  d.cfg.RetryDelay,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2,
	}
	last := policy.MaxAttempts - 1

	res, err := retry.Do(ctx, policy, func(attempt int) (fetched, error) {
		data, ctype, err := d.fetchPrimary(ctx, rawURL)
		if err == nil {
			return fetched{data: data, ext: downloader.ImageExtension(data, ctype)}, nil
		}
		if attempt == last && d.reencoder != nil && errors.Is(err, domain.ErrCrossOriginBlocked) {
			d.logger.Debug("falling back to re-encode", "url", rawURL, "error", err)
			jpg, rerr := d.reencoder.FetchAndReencode(ctx, rawURL, d.cfg.MaxImageBytes)
			if rerr == nil {
				return fetched{data: jpg, ext: ".jpg", method: domain.MethodReencode}, nil
			}
			return fetched{}, fmt.Errorf("%w; re-encode: %v", err, rerr)
		}
		return fetched{}, err
	})
	if err != nil {
		return fetched{err: err}
	}
	return res
}

func (d *Downloader) fetchPrimary(ctx context.Context, rawURL string) ([]byte, string, error) {
	var errs []error
	for _, f := range d.primary {
		data, ctype, err := f.FetchImage(ctx, rawURL, d.cfg.MaxImageBytes)
		if err == nil {
			return data, ctype, nil
		}
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, "", errors.New("no image fetchers configured")
	}
	return nil, "", errors.Join(errs...)
}

