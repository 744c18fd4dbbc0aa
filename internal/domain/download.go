package domain

import (
	"time"
)

// MediaKind is the kind of media being downloaded.
type MediaKind string

const (
	MediaKindVideo MediaKind = "video"
	MediaKindAudio MediaKind = "audio"
	MediaKindImage MediaKind = "image"
)

// Valid returns true for known kinds.
func (k MediaKind) Valid() bool {
	switch k {
	case MediaKindVideo, MediaKindAudio, MediaKindImage:
		return true
	}
	return false
}

// Extension returns the default file extension for the kind.
func (k MediaKind) Extension() string {
	switch k {
	case MediaKindAudio:
		return ".mp3"
	case MediaKindImage:
		return ".jpg"
	default:
		return ".mp4"
	}
}

// TransportMethod names one step of the download fallback chain.
type TransportMethod string

const (
	MethodProxy    TransportMethod = "proxy"
	MethodDirect   TransportMethod = "direct"
	MethodReencode TransportMethod = "reencode"
	MethodHandoff  TransportMethod = "handoff"
)

// AttemptState represents where a download attempt currently is.
type AttemptState string

const (
	AttemptIdle         AttemptState = "idle"
	AttemptProbing      AttemptState = "probing"
	AttemptTransferring AttemptState = "transferring"
	AttemptSaved        AttemptState = "saved"
	AttemptMethodFailed AttemptState = "method_failed"
	AttemptDone         AttemptState = "done"
	AttemptExhausted    AttemptState = "exhausted"
)

// DownloadAttempt tracks one orchestrator invocation. It is never persisted.
type DownloadAttempt struct {
	ID           string            `json:"id"`
	TargetURL    string            `json:"target_url"`
	Filename     string            `json:"filename"`
	Kind         MediaKind         `json:"kind"`
	State        AttemptState      `json:"state"`
	MethodsTried []TransportMethod `json:"methods_tried"`
	LastError    string            `json:"last_error,omitempty"`
	StartedAt    time.Time         `json:"started_at"`
	FinishedAt   *time.Time        `json:"finished_at,omitempty"`
}

// NewDownloadAttempt creates an attempt in the idle state.
func NewDownloadAttempt(id, targetURL, filename string, kind MediaKind) *DownloadAttempt {
	return &DownloadAttempt{
		ID:        id,
		TargetURL: targetURL,
		Filename:  filename,
		Kind:      kind,
		State:     AttemptIdle,
		StartedAt: time.Now(),
	}
}

// Begin records that a method is being tried.
func (a *DownloadAttempt) Begin(method TransportMethod) {
	a.MethodsTried = append(a.MethodsTried, method)
}

// Transition moves the attempt to a new state.
func (a *DownloadAttempt) Transition(state AttemptState) {
	a.State = state
	if state == AttemptDone || state == AttemptExhausted {
		now := time.Now()
		a.FinishedAt = &now
	}
}

// Fail records a method failure.
func (a *DownloadAttempt) Fail(err error) {
	if err != nil {
		a.LastError = err.Error()
	}
	a.State = AttemptMethodFailed
}

// SavedFile describes bytes written by a Saver.
type SavedFile struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// DownloadResult is the outcome of a successful orchestrator run.
type DownloadResult struct {
	Method    TransportMethod  `json:"method"`
	Saved     *SavedFile       `json:"saved,omitempty"`
	HandedOff bool             `json:"handed_off"`
	Attempt   *DownloadAttempt `json:"attempt"`
}
