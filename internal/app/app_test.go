package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/iconidentify/tikgrab/internal/config"
	"github.com/iconidentify/tikgrab/internal/domain"
)

var clipBytes = bytes.Repeat([]byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p'}, 64)

func testConfig(t *testing.T, metadataURL string) *config.Config {
	t.Helper()
	return &config.Config{
		Server:  config.ServerConfig{WriteTimeout: time.Minute},
		Storage: config.StorageConfig{BasePath: t.TempDir()},
		Upstream: config.UpstreamConfig{
			MetadataURL:    metadataURL,
			Timeout:        5 * time.Second,
			MaxAttempts:    1,
			RetryDelay:     time.Millisecond,
			AllowedDomains: []string{"tiktok.com"},
		},
		RateLimit: config.RateLimitConfig{MinInterval: 0, MaxPerMinute: 100},
		Cache:     config.CacheConfig{TTL: time.Minute, MaxEntries: 10},
		Download: config.DownloadConfig{
			ProbeTimeout: time.Second,
			Timeout:      5 * time.Second,
			MaxAttempts:  1,
			RetryDelay:   time.Millisecond,
			MaxBytes:     1 << 20,
			JPEGQuality:  90,
		},
		Bulk:   config.BulkConfig{BatchSize: 3, MaxAttempts: 1, RetryDelay: time.Millisecond},
		Events: config.EventsConfig{RingBufferSize: 64},
	}
}

func TestApp_ResolveDownloadServe(t *testing.T) {
	media := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Write(clipBytes)
	}))
	defer media.Close()

	metadata := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"code":0,"msg":"success","data":{
			"id":"7301234567890","title":"rooftop routine",
			"play":"%[1]s/play.mp4","hdplay":"%[1]s/hd.mp4",
			"author":{"id":"42","unique_id":"dancer","nickname":"Dancer"}}}`, media.URL)
	}))
	defer metadata.Close()

	a, err := New(testConfig(t, metadata.URL), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	srv := httptest.NewServer(a.Router())
	defer srv.Close()

	// Resolve
	resp, err := http.Post(srv.URL+"/api/v1/media/resolve", "application/json",
		strings.NewReader(`{"url":"https://www.tiktok.com/@dancer/video/7301234567890?is_from_webapp=1"}`))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	var rec domain.MediaRecord
	json.NewDecoder(resp.Body).Decode(&rec)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve status = %d", resp.StatusCode)
	}
	if !rec.Degraded {
		t.Error("record should be degraded without a link provider")
	}

	// Download from the current record
	resp, err = http.Post(srv.URL+"/api/v1/downloads", "application/json", strings.NewReader(`{"kind":"video"}`))
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	var dl struct {
		Method  string `json:"method"`
		FileURL string `json:"file_url"`
		Size    int64  `json:"size"`
	}
	json.NewDecoder(resp.Body).Decode(&dl)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("download status = %d", resp.StatusCode)
	}
	if dl.Method != string(domain.MethodDirect) {
		t.Errorf("method = %q, want direct", dl.Method)
	}
	if dl.Size != int64(len(clipBytes)) {
		t.Errorf("size = %d, want %d", dl.Size, len(clipBytes))
	}

	// Serve the saved file
	resp, err = http.Get(srv.URL + dl.FileURL)
	if err != nil {
		t.Fatalf("file: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("file status = %d", resp.StatusCode)
	}
	if !bytes.Equal(body, clipBytes) {
		t.Error("served file differs from the downloaded bytes")
	}

	// The activity log saw the resolve warning and the save toast.
	var sawWarning, sawSaved bool
	for _, e := range a.Events.GetRecent(64) {
		if e.Kind != domain.NotifyToast {
			continue
		}
		if e.Severity == domain.EventSeverityWarning && e.Category == domain.EventCategoryMedia {
			sawWarning = true
		}
		if e.Severity == domain.EventSeveritySuccess && strings.HasPrefix(e.Message, "Saved ") {
			sawSaved = true
		}
	}
	if !sawWarning || !sawSaved {
		t.Errorf("warning toast = %v, saved toast = %v; want both", sawWarning, sawSaved)
	}
}

func TestNew_InvalidEndpoint(t *testing.T) {
	if _, err := New(testConfig(t, "not a url"), slog.New(slog.NewTextHandler(io.Discard, nil))); err == nil {
		t.Error("New should reject a relative metadata endpoint")
	}
}
