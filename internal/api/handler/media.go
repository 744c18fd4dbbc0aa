package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/iconidentify/tikgrab/internal/domain"
)

// MediaResolver resolves post URLs into records.
type MediaResolver interface {
	Resolve(ctx context.Context, rawURL string) (*domain.MediaRecord, error)
	CurrentRecord() (*domain.MediaRecord, bool)
}

// MediaHandler handles media lookup requests.
type MediaHandler struct {
	media  MediaResolver
	logger *slog.Logger
}

// NewMediaHandler creates a new media handler.
func NewMediaHandler(media MediaResolver, logger *slog.Logger) *MediaHandler {
	return &MediaHandler{
		media:  media,
		logger: logger,
	}
}

// ResolveRequest is the JSON request body for a lookup.
type ResolveRequest struct {
	URL string `json:"url"`
}

// Resolve handles POST /api/v1/media/resolve
func (h *MediaHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	rec, err := h.media.Resolve(r.Context(), req.URL)
	if err != nil {
		h.logger.Warn("resolve failed", "url", req.URL, "error", err)
		writeError(w, errorStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// Current handles GET /api/v1/media/current
func (h *MediaHandler) Current(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.media.CurrentRecord()
	if !ok {
		writeError(w, http.StatusNotFound, domain.ErrNoRecord.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
