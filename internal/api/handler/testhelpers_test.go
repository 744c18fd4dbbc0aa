package handler

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/iconidentify/tikgrab/internal/bulk"
	"github.com/iconidentify/tikgrab/internal/domain"
	"github.com/iconidentify/tikgrab/internal/downloader"
	"github.com/iconidentify/tikgrab/internal/service"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockResolver is a test implementation of MediaResolver.
type mockResolver struct {
	mu      sync.Mutex
	record  *domain.MediaRecord
	err     error
	current *domain.MediaRecord
	urls    []string
}

func (m *mockResolver) Resolve(ctx context.Context, rawURL string) (*domain.MediaRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.urls = append(m.urls, rawURL)
	if m.err != nil {
		return nil, m.err
	}
	m.current = m.record
	return m.record, nil
}

func (m *mockResolver) CurrentRecord() (*domain.MediaRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.current != nil
}

// mockDownloads is a test implementation of Downloads.
type mockDownloads struct {
	mu sync.Mutex

	result     *domain.DownloadResult
	archive    *bulk.ArchiveResult
	sequential *bulk.SequentialResult
	err        error
	ops        []service.Operation
	cancelled  int

	lastDownload service.DownloadRequest
	lastImages   service.ImagesRequest
}

func (m *mockDownloads) DownloadMedia(ctx context.Context, req service.DownloadRequest) (*domain.DownloadResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastDownload = req
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockDownloads) ArchiveImages(ctx context.Context, req service.ImagesRequest) (*bulk.ArchiveResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastImages = req
	if m.err != nil {
		return nil, m.err
	}
	return m.archive, nil
}

func (m *mockDownloads) DownloadImages(ctx context.Context, req service.ImagesRequest) (*bulk.SequentialResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastImages = req
	if m.err != nil {
		return nil, m.err
	}
	return m.sequential, nil
}

func (m *mockDownloads) InFlight() []service.Operation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ops
}

func (m *mockDownloads) CancelAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelled
}

// dirOpener serves files from a temp directory.
type dirOpener struct {
	dir string
}

func (d dirOpener) Open(name string) (*os.File, os.FileInfo, error) {
	if name != filepath.Base(name) {
		return nil, nil, domain.ErrMediaNotFound
	}
	f, err := os.Open(filepath.Join(d.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, domain.ErrMediaNotFound
		}
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, info, nil
}

type fakeSpace struct {
	free int64
	err  error
}

func (f fakeSpace) FreeSpace() (int64, error) { return f.free, f.err }

type fakeProxy struct {
	result downloader.ProbeResult
}

func (f fakeProxy) Check(ctx context.Context) *downloader.ProbeResult {
	r := f.result
	return &r
}

func sampleRecord() *domain.MediaRecord {
	return &domain.MediaRecord{
		ID:        "7301234567890",
		SourceURL: "https://www.tiktok.com/@dancer/video/7301234567890",
		Title:     "rooftop routine",
		PreviewURLs: domain.PreviewURLs{
			Standard: "https://cdn.example.com/play.mp4",
		},
		DownloadURLs: domain.DownloadURLs{
			Standard: "https://cdn.example.com/play.mp4",
		},
		Author: domain.Author{Username: "dancer"},
	}
}
