package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/iconidentify/tikgrab/internal/bulk"
	"github.com/iconidentify/tikgrab/internal/domain"
	"github.com/iconidentify/tikgrab/internal/service"
)

const iphoneUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 Mobile/15E148"

// ============================================================================
// Create
// ============================================================================

func TestDownloadHandler_Create_Saved(t *testing.T) {
	downloads := &mockDownloads{
		result: &domain.DownloadResult{
			Method: domain.MethodProxy,
			Saved:  &domain.SavedFile{Name: "dancer_7301234567890_video_hd.mp4", Size: 2048},
		},
	}
	handler := NewDownloadHandler(downloads, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/downloads", strings.NewReader(`{"kind":"hd"}`))
	w := httptest.NewRecorder()
	handler.Create(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp DownloadResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Method != domain.MethodProxy {
		t.Errorf("method = %q, want %q", resp.Method, domain.MethodProxy)
	}
	if resp.FileURL != "/api/v1/files/dancer_7301234567890_video_hd.mp4" {
		t.Errorf("file_url = %q", resp.FileURL)
	}
	if resp.Size != 2048 {
		t.Errorf("size = %d, want 2048", resp.Size)
	}
	if downloads.lastDownload.Variant != service.VariantVideoHD {
		t.Errorf("variant = %q, want %q", downloads.lastDownload.Variant, service.VariantVideoHD)
	}
	if downloads.lastDownload.Mobile {
		t.Error("desktop request should not be flagged mobile")
	}
}

func TestDownloadHandler_Create_EmptyBodyMobile(t *testing.T) {
	downloads := &mockDownloads{
		result: &domain.DownloadResult{Method: domain.MethodHandoff, HandedOff: true},
	}
	handler := NewDownloadHandler(downloads, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/downloads", http.NoBody)
	req.Header.Set("User-Agent", iphoneUA)
	w := httptest.NewRecorder()
	handler.Create(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp DownloadResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.HandedOff || resp.FileURL != "" {
		t.Errorf("resp = %+v, want handoff without file", resp)
	}
	if downloads.lastDownload.Variant != service.VariantVideo {
		t.Errorf("variant = %q, want default video", downloads.lastDownload.Variant)
	}
	if !downloads.lastDownload.Mobile {
		t.Error("iPhone request should be flagged mobile")
	}
}

func TestDownloadHandler_Create_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		wantCode int
	}{
		{"malformed body", `{"kind":`, nil, http.StatusBadRequest},
		{"unknown kind", `{"kind":"gif"}`, nil, http.StatusBadRequest},
		{"no record", `{}`, domain.ErrNoRecord, http.StatusNotFound},
		{"storage full", `{}`, domain.ErrStorageFull, http.StatusInsufficientStorage},
		{"transport", `{}`, &domain.TransportError{Method: domain.MethodDirect}, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewDownloadHandler(&mockDownloads{err: tt.err}, testLogger())

			req := httptest.NewRequest(http.MethodPost, "/api/v1/downloads", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			handler.Create(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
		})
	}
}

// ============================================================================
// Archive and Images
// ============================================================================

func TestDownloadHandler_Archive(t *testing.T) {
	zipBytes := []byte("PK\x03\x04fake")
	downloads := &mockDownloads{
		archive: &bulk.ArchiveResult{
			Data:      zipBytes,
			Filename:  "dancer_7301234567890_images.zip",
			Succeeded: 3,
			Total:     5,
		},
	}
	handler := NewDownloadHandler(downloads, testLogger())

	body := `{"images":["https://cdn.example.com/1.jpg","https://cdn.example.com/2.jpg"],"base_name":"post"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/archives", strings.NewReader(body))
	w := httptest.NewRecorder()
	handler.Archive(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/zip" {
		t.Errorf("Content-Type = %q, want application/zip", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); cd != "attachment; filename=dancer_7301234567890_images.zip" {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if got := w.Header().Get("X-Archive-Succeeded"); got != "3" {
		t.Errorf("X-Archive-Succeeded = %q, want 3", got)
	}
	if got := w.Header().Get("X-Archive-Total"); got != "5" {
		t.Errorf("X-Archive-Total = %q, want 5", got)
	}
	if !bytes.Equal(w.Body.Bytes(), zipBytes) {
		t.Error("body should be the archive bytes")
	}
	if len(downloads.lastImages.Images) != 2 || downloads.lastImages.BaseName != "post" {
		t.Errorf("images request = %+v", downloads.lastImages)
	}
}

func TestDownloadHandler_Archive_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"no images", domain.ErrNoImages, http.StatusUnprocessableEntity},
		{"all failed", &domain.ArchiveEmptyError{Total: 4}, http.StatusBadGateway},
		{"no record", domain.ErrNoRecord, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewDownloadHandler(&mockDownloads{err: tt.err}, testLogger())

			req := httptest.NewRequest(http.MethodPost, "/api/v1/archives", http.NoBody)
			w := httptest.NewRecorder()
			handler.Archive(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}
		})
	}
}

func TestDownloadHandler_Images(t *testing.T) {
	downloads := &mockDownloads{
		sequential: &bulk.SequentialResult{
			Items: []bulk.ItemResult{
				{Position: 1, URL: "https://cdn.example.com/1.jpg", Result: &domain.DownloadResult{Method: domain.MethodDirect}},
				{Position: 2, URL: "https://cdn.example.com/2.jpg", Error: "direct: status 404"},
			},
			Succeeded: 1,
			Failed:    1,
			Total:     2,
		},
	}
	handler := NewDownloadHandler(downloads, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/downloads/images", http.NoBody)
	req.Header.Set("User-Agent", iphoneUA)
	w := httptest.NewRecorder()
	handler.Images(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp bulk.SequentialResult
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Succeeded != 1 || resp.Failed != 1 || len(resp.Items) != 2 {
		t.Errorf("resp = %+v", resp)
	}
	if !downloads.lastImages.Mobile {
		t.Error("mobile flag should be forwarded")
	}
}

// ============================================================================
// List and CancelAll
// ============================================================================

func TestDownloadHandler_ListAndCancel(t *testing.T) {
	downloads := &mockDownloads{
		ops: []service.Operation{
			{ID: "dl_1a2b3c4d", Kind: "video", StartedAt: time.Now()},
		},
		cancelled: 1,
	}
	handler := NewDownloadHandler(downloads, testLogger())

	w := httptest.NewRecorder()
	handler.List(w, httptest.NewRequest(http.MethodGet, "/api/v1/downloads", nil))

	var list struct {
		Downloads []service.Operation `json:"downloads"`
	}
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if len(list.Downloads) != 1 || list.Downloads[0].ID != "dl_1a2b3c4d" {
		t.Errorf("downloads = %+v", list.Downloads)
	}

	w = httptest.NewRecorder()
	handler.CancelAll(w, httptest.NewRequest(http.MethodDelete, "/api/v1/downloads", nil))

	var cancelled map[string]int
	if err := json.NewDecoder(w.Body).Decode(&cancelled); err != nil {
		t.Fatalf("failed to decode cancel: %v", err)
	}
	if cancelled["cancelled"] != 1 {
		t.Errorf("cancelled = %d, want 1", cancelled["cancelled"])
	}
}
