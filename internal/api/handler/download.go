package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/iconidentify/tikgrab/internal/bulk"
	"github.com/iconidentify/tikgrab/internal/domain"
	"github.com/iconidentify/tikgrab/internal/service"
)

// Downloads is the subset of service.DownloadService the handler uses.
type Downloads interface {
	DownloadMedia(ctx context.Context, req service.DownloadRequest) (*domain.DownloadResult, error)
	ArchiveImages(ctx context.Context, req service.ImagesRequest) (*bulk.ArchiveResult, error)
	DownloadImages(ctx context.Context, req service.ImagesRequest) (*bulk.SequentialResult, error)
	InFlight() []service.Operation
	CancelAll() int
}

// DownloadHandler handles download, archive and cancellation requests.
type DownloadHandler struct {
	downloads Downloads
	logger    *slog.Logger
}

// NewDownloadHandler creates a new download handler.
func NewDownloadHandler(downloads Downloads, logger *slog.Logger) *DownloadHandler {
	return &DownloadHandler{
		downloads: downloads,
		logger:    logger,
	}
}

// DownloadRequest is the JSON request body for a single download.
// Kind is a variant key ("video", "video_hd", "audio", "image").
type DownloadRequest struct {
	URL      string `json:"url,omitempty"`
	Filename string `json:"filename,omitempty"`
	Kind     string `json:"kind,omitempty"`
}

// ImagesRequest is the JSON request body for bulk image operations.
// An empty image list means every image of the current record.
type ImagesRequest struct {
	Images   []string `json:"images,omitempty"`
	BaseName string   `json:"base_name,omitempty"`
}

// DownloadResponse reports how a download finished.
type DownloadResponse struct {
	Method    domain.TransportMethod  `json:"method"`
	HandedOff bool                    `json:"handed_off"`
	Filename  string                  `json:"filename,omitempty"`
	Size      int64                   `json:"size,omitempty"`
	FileURL   string                  `json:"file_url,omitempty"`
	Attempt   *domain.DownloadAttempt `json:"attempt,omitempty"`
}

// Create handles POST /api/v1/downloads
func (h *DownloadHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req DownloadRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	variant, err := service.ParseVariant(req.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.downloads.DownloadMedia(r.Context(), service.DownloadRequest{
		URL:      req.URL,
		Filename: req.Filename,
		Variant:  variant,
		Mobile:   isMobile(r),
	})
	if err != nil {
		h.logger.Warn("download failed", "kind", variant, "error", err)
		writeError(w, errorStatus(err), err.Error())
		return
	}

	resp := DownloadResponse{
		Method:    result.Method,
		HandedOff: result.HandedOff,
		Attempt:   result.Attempt,
	}
	if result.Saved != nil {
		resp.Filename = result.Saved.Name
		resp.Size = result.Saved.Size
		resp.FileURL = "/api/v1/files/" + result.Saved.Name
	}
	writeJSON(w, http.StatusOK, resp)
}

// Archive handles POST /api/v1/archives and streams back a ZIP.
func (h *DownloadHandler) Archive(w http.ResponseWriter, r *http.Request) {
	var req ImagesRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.downloads.ArchiveImages(r.Context(), service.ImagesRequest{
		Images:   req.Images,
		BaseName: req.BaseName,
		Mobile:   isMobile(r),
	})
	if err != nil {
		h.logger.Warn("archive failed", "error", err)
		writeError(w, errorStatus(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": result.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.Header().Set("X-Archive-Succeeded", strconv.Itoa(result.Succeeded))
	w.Header().Set("X-Archive-Total", strconv.Itoa(result.Total))
	w.WriteHeader(http.StatusOK)
	w.Write(result.Data)
}

// Images handles POST /api/v1/downloads/images, one file per image.
func (h *DownloadHandler) Images(w http.ResponseWriter, r *http.Request) {
	var req ImagesRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.downloads.DownloadImages(r.Context(), service.ImagesRequest{
		Images:   req.Images,
		BaseName: req.BaseName,
		Mobile:   isMobile(r),
	})
	if err != nil {
		h.logger.Warn("image downloads failed", "error", err)
		writeError(w, errorStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// List handles GET /api/v1/downloads
func (h *DownloadHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"downloads": h.downloads.InFlight(),
	})
}

// CancelAll handles DELETE /api/v1/downloads
func (h *DownloadHandler) CancelAll(w http.ResponseWriter, r *http.Request) {
	n := h.downloads.CancelAll()
	writeJSON(w, http.StatusOK, map[string]int{"cancelled": n})
}

// decodeOptional decodes a JSON body, treating an empty body as zero values.
func decodeOptional(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
