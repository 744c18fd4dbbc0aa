package downloader

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/iconidentify/tikgrab/internal/config"
	"github.com/iconidentify/tikgrab/internal/domain"
	"github.com/iconidentify/tikgrab/internal/retry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDownloadConfig() config.DownloadConfig {
	return config.DownloadConfig{
		ProbeTimeout:  time.Second,
		Timeout:       5 * time.Second,
		MaxAttempts:   2,
		RetryDelay:    time.Millisecond,
		MaxRetryDelay: 5 * time.Millisecond,
		MaxBytes:      10 << 20,
		UserAgent:     "test-agent",
		Referer:       "https://www.tiktok.com/",
		JPEGQuality:   90,
	}
}

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffFactor: 2}
}

// memSaver keeps saved files in memory.
type memSaver struct {
	mu    sync.Mutex
	files map[string][]byte
	err   error
}

func newMemSaver() *memSaver {
	return &memSaver{files: make(map[string][]byte)}
}

func (m *memSaver) SaveBytesAsFile(ctx context.Context, data []byte, filename string) (*domain.SavedFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.files[filename] = append([]byte(nil), data...)
	return &domain.SavedFile{Name: filename, Path: "/mem/" + filename, Size: int64(len(data))}, nil
}

func (m *memSaver) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

// recordingOpener remembers every handoff.
type recordingOpener struct {
	mu       sync.Mutex
	requests []OpenRequest
	err      error
}

func (r *recordingOpener) OpenExternal(ctx context.Context, req OpenRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	return r.err
}

// recordingNotifier remembers every notification.
type recordingNotifier struct {
	mu    sync.Mutex
	kinds []domain.NotificationKind
	notes []domain.Notification
}

func (r *recordingNotifier) Notify(kind domain.NotificationKind, n domain.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
	r.notes = append(r.notes, n)
}

// stubStrategy returns canned results and counts calls.
type stubStrategy struct {
	method   domain.TransportMethod
	data     []byte
	err      error
	calls    int
	probeErr error
	probed   int
	kinds    []domain.MediaKind
}

func (s *stubStrategy) Method() domain.TransportMethod { return s.method }

func (s *stubStrategy) Fetch(ctx context.Context, t Target) ([]byte, error) {
	s.calls++
	return s.data, s.err
}

type probingStub struct {
	*stubStrategy
}

func (p probingStub) Probe(ctx context.Context) error {
	p.probed++
	return p.probeErr
}

type kindStub struct {
	*stubStrategy
}

func (k kindStub) Supports(kind domain.MediaKind) bool {
	for _, want := range k.kinds {
		if kind == want {
			return true
		}
	}
	return false
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.NRGBA{R: 200, G: 10, B: 10, A: 128})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}
