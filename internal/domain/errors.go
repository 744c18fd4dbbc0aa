package domain

import (
	"context"
	"errors"
	"strconv"
)

// Domain errors.
var (
	// ErrInvalidURL is returned when an input URL fails format or domain validation.
	ErrInvalidURL = errors.New("invalid media URL")

	// ErrInvalidTarget is returned when a download target is empty or a placeholder.
	ErrInvalidTarget = errors.New("invalid download target")

	// ErrRateLimited signals an internal rate-limit delay. It is never surfaced to users.
	ErrRateLimited = errors.New("rate limited")

	// ErrTimeout is returned when a single network call exceeds its deadline.
	ErrTimeout = errors.New("request timed out")

	// ErrEmptyBody is returned when a transport receives no bytes.
	ErrEmptyBody = errors.New("empty response body")

	// ErrProxyUnhealthy is returned when the download proxy fails its health probe.
	ErrProxyUnhealthy = errors.New("download proxy is unreachable")

	// ErrCrossOriginBlocked is returned when the media host refuses to hand out
	// usable bytes (auth wall, challenge page, non-media content type).
	ErrCrossOriginBlocked = errors.New("media host blocked the request")

	// ErrNoRecord is returned when an operation needs a current media record and none exists.
	ErrNoRecord = errors.New("no media record loaded")

	// ErrNoImages is returned when a bulk operation has nothing to process.
	ErrNoImages = errors.New("no images to download")

	// ErrStorageFull is returned when there is insufficient storage space.
	ErrStorageFull = errors.New("insufficient storage space")

	// ErrMediaNotFound is returned when a saved file cannot be found.
	ErrMediaNotFound = errors.New("media file not found")
)

// InvalidURLError describes why an input URL was rejected.
type InvalidURLError struct {
	Input  string
	Reason string
}

func (e *InvalidURLError) Error() string {
	return ErrInvalidURL.Error() + " " + strconv.Quote(e.Input) + ": " + e.Reason
}

func (e *InvalidURLError) Unwrap() error {
	return ErrInvalidURL
}

// UpstreamError wraps a failed call to one of the upstream APIs.
type UpstreamError struct {
	Provider   string
	Reason     string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	msg := e.Provider + ": " + e.Reason
	if e.StatusCode != 0 {
		msg += " (status " + strconv.Itoa(e.StatusCode) + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// NewUpstreamError creates a new UpstreamError.
func NewUpstreamError(provider, reason string, status int, err error) *UpstreamError {
	return &UpstreamError{
		Provider:   provider,
		Reason:     reason,
		StatusCode: status,
		Err:        err,
	}
}

// TransportError reports that one download method failed.
type TransportError struct {
	Method TransportMethod
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return string(e.Method) + " transport failed"
	}
	return string(e.Method) + " transport failed: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ArchiveEmptyError is returned when every image of an archive request failed.
type ArchiveEmptyError struct {
	Total int
}

func (e *ArchiveEmptyError) Error() string {
	return "archive is empty: all " + strconv.Itoa(e.Total) + " images failed to download, try downloading them individually"
}

// IsRetryable reports whether err is worth another attempt.
// Validation failures and caller cancellation are final.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInvalidURL) || errors.Is(err, ErrInvalidTarget) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var archiveErr *ArchiveEmptyError
	return !errors.As(err, &archiveErr)
}
