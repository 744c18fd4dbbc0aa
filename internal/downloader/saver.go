package downloader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/iconidentify/tikgrab/internal/config"
	"github.com/iconidentify/tikgrab/internal/domain"
	"github.com/iconidentify/tikgrab/internal/naming"
)

// FileSaver writes downloads into the storage directory. Bytes are staged in
// the temp directory first and the staging copy is released shortly after
// the final file appears.
type FileSaver struct {
	basePath     string
	tempPath     string
	minFree      int64
	releaseDelay time.Duration
	logger       *slog.Logger

	mu      sync.Mutex // serializes name allocation
	pending sync.WaitGroup
}

// NewFileSaver creates a saver and its directories.
func NewFileSaver(cfg config.StorageConfig, logger *slog.Logger) (*FileSaver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	tempPath := cfg.TempPath
	if tempPath == "" {
		tempPath = filepath.Join(cfg.BasePath, ".staging")
	}
	for _, dir := range []string{cfg.BasePath, tempPath} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return &FileSaver{
		basePath:     cfg.BasePath,
		tempPath:     tempPath,
		minFree:      cfg.MinFreeBytes,
		releaseDelay: cfg.ReleaseDelay,
		logger:       logger,
	}, nil
}

// SaveBytesAsFile implements Saver.
func (s *FileSaver) SaveBytesAsFile(ctx context.Context, data []byte, filename string) (*domain.SavedFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, domain.ErrEmptyBody
	}

	if err := s.checkSpace(int64(len(data))); err != nil {
		return nil, err
	}

	name := filepath.Base(filename)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = "download"
	}

	staged, err := s.stage(data)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	finalPath := s.uniquePath(name)
	err = linkOrCopy(staged, finalPath)
	s.mu.Unlock()
	if err != nil {
		os.Remove(staged)
		return nil, fmt.Errorf("store file: %w", err)
	}

	s.release(staged)

	s.logger.Info("file saved",
		"path", finalPath,
		"size", humanize.Bytes(uint64(len(data))),
	)

	return &domain.SavedFile{
		Name: filepath.Base(finalPath),
		Path: finalPath,
		Size: int64(len(data)),
	}, nil
}

// Open returns a saved file by name.
func (s *FileSaver) Open(name string) (*os.File, os.FileInfo, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return nil, nil, domain.ErrMediaNotFound
	}
	f, err := os.Open(filepath.Join(s.basePath, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, domain.ErrMediaNotFound
		}
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		f.Close()
		return nil, nil, domain.ErrMediaNotFound
	}
	return f, info, nil
}

// FreeSpace reports free bytes on the storage volume.
func (s *FileSaver) FreeSpace() (int64, error) {
	return getFreeDiskSpace(s.basePath)
}

// Wait blocks until every staged file has been released.
func (s *FileSaver) Wait() {
	s.pending.Wait()
}

func (s *FileSaver) checkSpace(size int64) error {
	free, err := getFreeDiskSpace(s.basePath)
	if err != nil {
		s.logger.Debug("free space check skipped", "error", err)
		return nil
	}
	if free-size < s.minFree {
		return fmt.Errorf("%w: %s free, need %s plus %s reserve", domain.ErrStorageFull,
			humanize.Bytes(uint64(max(free, 0))),
			humanize.Bytes(uint64(size)),
			humanize.Bytes(uint64(max(s.minFree, 0))),
		)
	}
	return nil
}

func (s *FileSaver) stage(data []byte) (string, error) {
	f, err := os.CreateTemp(s.tempPath, "stage-*.part")
	if err != nil {
		return "", fmt.Errorf("create staging file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write staging file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("sync staging file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close staging file: %w", err)
	}
	return f.Name(), nil
}

// release removes the staging file after the configured delay.
func (s *FileSaver) release(path string) {
	if s.releaseDelay <= 0 {
		os.Remove(path)
		return
	}
	s.pending.Add(1)
	time.AfterFunc(s.releaseDelay, func() {
		defer s.pending.Done()
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to release staging file", "path", path, "error", err)
		}
	})
}

// uniquePath returns base/name, or base/name_N.ext when taken.
func (s *FileSaver) uniquePath(name string) string {
	candidate := filepath.Join(s.basePath, name)
	if _, err := os.Stat(candidate); os.IsNotExist(err) {
		return candidate
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate = filepath.Join(s.basePath, fmt.Sprintf("%s_%d%s", stem, i, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

func linkOrCopy(src, dst string) error {
	if err := os.Link(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

// SafeFilename is the name the orchestrator saves under.
func SafeFilename(filename string, kind domain.MediaKind) string {
	return naming.Clean(filename, kind.Extension())
}

// ImageExtension sniffs the image format, trusting the bytes over the
// content type.
func ImageExtension(data []byte, contentType string) string {
	sniffed := http.DetectContentType(data)
	switch sniffed {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	switch contentType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/heic":
		return ".heic"
	}
	return ".jpg"
}
