package downloader

import (
	"context"

	"github.com/iconidentify/tikgrab/internal/domain"
)

// Target is what a transport is asked to fetch.
type Target struct {
	URL      string
	Filename string
	Kind     domain.MediaKind
}

// Strategy is one byte-fetching step of the fallback chain.
type Strategy interface {
	Method() domain.TransportMethod
	// Fetch returns the full body. An empty body is an error.
	Fetch(ctx context.Context, t Target) ([]byte, error)
}

// Prober is implemented by strategies that need a health check before use.
// The probe runs once per download and does not count as a retry.
type Prober interface {
	Probe(ctx context.Context) error
}

// KindFilter is implemented by strategies that only handle some media kinds.
type KindFilter interface {
	Supports(kind domain.MediaKind) bool
}

// Saver persists downloaded bytes under a filename.
type Saver interface {
	SaveBytesAsFile(ctx context.Context, data []byte, filename string) (*domain.SavedFile, error)
}

// OpenRequest describes a link handed to the user's client.
type OpenRequest struct {
	URL         string
	Filename    string
	Mobile      bool
	OperationID string
}

// Opener hands a link to the user's client so it can fetch the file itself.
type Opener interface {
	OpenExternal(ctx context.Context, req OpenRequest) error
}

// ProbeResult describes the outcome of a proxy health probe.
type ProbeResult struct {
	StatusCode int
	Healthy    bool
	Error      string
}
