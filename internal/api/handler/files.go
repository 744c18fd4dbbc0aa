package handler

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/tikgrab/internal/domain"
)

// FileOpener opens saved files by name.
type FileOpener interface {
	Open(name string) (*os.File, os.FileInfo, error)
}

// FileHandler serves files the saver wrote to storage.
type FileHandler struct {
	files  FileOpener
	logger *slog.Logger
}

// NewFileHandler creates a new file handler.
func NewFileHandler(files FileOpener, logger *slog.Logger) *FileHandler {
	return &FileHandler{files: files, logger: logger}
}

// Serve handles GET /api/v1/files/{name}
func (h *FileHandler) Serve(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	f, info, err := h.files.Open(name)
	if err != nil {
		if errors.Is(err, domain.ErrMediaNotFound) {
			writeError(w, http.StatusNotFound, "file not found")
			return
		}
		h.logger.Error("failed to open saved file", "name", name, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to open file")
		return
	}
	defer f.Close()

	if ct := mime.TypeByExtension(filepath.Ext(info.Name())); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": info.Name()}))
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
