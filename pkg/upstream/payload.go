// Package upstream talks to the two third-party APIs that describe a post:
// a metadata API and a download-link API. Both are normalized into Payload.
package upstream

import (
	"context"

	"github.com/iconidentify/tikgrab/internal/domain"
)

// Payload is the provider-agnostic result of one upstream call.
type Payload struct {
	Provider   string
	ID         string
	Title      string
	CoverURL   string
	Duration   int
	Author     domain.Author
	Stats      domain.Statistics
	Video      VideoURLs
	AudioURL   string
	AudioTitle string
	Music      *domain.MusicInfo
	Images     []string
}

// VideoURLs groups the video variants a provider returned.
type VideoURLs struct {
	Standard    string
	HighDef     string
	NoWatermark string
}

// HasMedia reports whether the payload carries anything downloadable.
func (p *Payload) HasMedia() bool {
	return p.Video.Standard != "" || p.Video.HighDef != "" || p.Video.NoWatermark != "" ||
		p.AudioURL != "" || len(p.Images) > 0
}

// Fetcher is implemented by both API clients.
type Fetcher interface {
	Fetch(ctx context.Context, normalizedURL string) (*Payload, error)
}

// RateLimiter gates outgoing requests.
type RateLimiter interface {
	Acquire(ctx context.Context) error
}
