package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif" // register GIF decoder
	"image/jpeg"
	_ "image/png" // register PNG decoder
	"log/slog"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/iconidentify/tikgrab/internal/domain"
)

// DefaultJPEGQuality is the quality used when re-encoding images.
const DefaultJPEGQuality = 90

// ReencodeJPEG decodes an image (JPEG, PNG, GIF or WebP), flattens it onto a
// white canvas and encodes it as JPEG.
func ReencodeJPEG(data []byte, quality int) ([]byte, error) {
	if len(data) == 0 {
		return nil, domain.ErrEmptyBody
	}
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, errors.New("image has no pixels")
	}

	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return out.Bytes(), nil
}

// ReencodeTransport fetches the raw bytes without content-type checks and
// re-encodes them as JPEG. It only handles images.
type ReencodeTransport struct {
	fetcher *HTTPFetcher
	quality int
	logger  *slog.Logger
}

// NewReencodeTransport creates the re-encode transport.
func NewReencodeTransport(fetcher *HTTPFetcher, quality int, logger *slog.Logger) *ReencodeTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReencodeTransport{fetcher: fetcher, quality: quality, logger: logger}
}

// Method implements Strategy.
func (r *ReencodeTransport) Method() domain.TransportMethod {
	return domain.MethodReencode
}

// Supports implements KindFilter.
func (r *ReencodeTransport) Supports(kind domain.MediaKind) bool {
	return kind == domain.MediaKindImage
}

// Fetch implements Strategy.
func (r *ReencodeTransport) Fetch(ctx context.Context, t Target) ([]byte, error) {
	return r.FetchAndReencode(ctx, t.URL, 0)
}

// FetchAndReencode downloads rawURL and returns it as JPEG.
func (r *ReencodeTransport) FetchAndReencode(ctx context.Context, rawURL string, maxBytes int64) ([]byte, error) {
	raw, _, err := r.fetcher.get(ctx, rawURL, fetchOptions{mode: strict, maxBytes: maxBytes})
	if err != nil {
		return nil, err
	}
	out, err := ReencodeJPEG(raw, r.quality)
	if err != nil {
		r.logger.Debug("re-encode failed", "url", rawURL, "error", err)
		return nil, err
	}
	return out, nil
}
