package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/iconidentify/tikgrab/internal/domain"
)

func TestMediaHandler_Resolve(t *testing.T) {
	resolver := &mockResolver{record: sampleRecord()}
	handler := NewMediaHandler(resolver, testLogger())

	body := `{"url":"https://www.tiktok.com/@dancer/video/7301234567890"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/media/resolve", strings.NewReader(body))
	w := httptest.NewRecorder()

	handler.Resolve(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var rec domain.MediaRecord
	if err := json.NewDecoder(w.Body).Decode(&rec); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if rec.ID != "7301234567890" {
		t.Errorf("id = %q, want %q", rec.ID, "7301234567890")
	}
	if len(resolver.urls) != 1 {
		t.Errorf("resolver called %d times, want 1", len(resolver.urls))
	}
}

func TestMediaHandler_Resolve_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		wantCode int
	}{
		{"malformed body", `{`, nil, http.StatusBadRequest},
		{"missing url", `{}`, nil, http.StatusBadRequest},
		{"invalid url", `{"url":"https://example.com/x"}`, &domain.InvalidURLError{Input: "https://example.com/x", Reason: "unsupported host"}, http.StatusBadRequest},
		{"upstream failure", `{"url":"https://www.tiktok.com/@a/video/1"}`, &domain.UpstreamError{Provider: "metadata", StatusCode: 500}, http.StatusBadGateway},
		{"timeout", `{"url":"https://www.tiktok.com/@a/video/1"}`, fmt.Errorf("metadata: %w", domain.ErrTimeout), http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewMediaHandler(&mockResolver{err: tt.err}, testLogger())

			req := httptest.NewRequest(http.MethodPost, "/api/v1/media/resolve", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			handler.Resolve(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			var resp map[string]string
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp["error"] == "" {
				t.Error("error message should not be empty")
			}
		})
	}
}

func TestMediaHandler_Current(t *testing.T) {
	resolver := &mockResolver{}
	handler := NewMediaHandler(resolver, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/media/current", nil)
	w := httptest.NewRecorder()
	handler.Current(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("status before resolve = %d, want %d", w.Code, http.StatusNotFound)
	}

	resolver.current = sampleRecord()
	w = httptest.NewRecorder()
	handler.Current(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("status after resolve = %d, want %d", w.Code, http.StatusOK)
	}
}
