package downloader

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/iconidentify/tikgrab/internal/config"
	"github.com/iconidentify/tikgrab/internal/domain"
)

func newTestSaver(t *testing.T, delay time.Duration) (*FileSaver, string, string) {
	t.Helper()
	base := filepath.Join(t.TempDir(), "media")
	temp := filepath.Join(t.TempDir(), "temp")
	s, err := NewFileSaver(config.StorageConfig{BasePath: base, TempPath: temp, ReleaseDelay: delay}, testLogger())
	if err != nil {
		t.Fatalf("NewFileSaver: %v", err)
	}
	return s, base, temp
}

func TestFileSaver_SaveAndOpen(t *testing.T) {
	s, base, _ := newTestSaver(t, 0)

	saved, err := s.SaveBytesAsFile(context.Background(), []byte("hello"), "clip.mp4")
	if err != nil {
		t.Fatalf("SaveBytesAsFile failed: %v", err)
	}
	if saved.Name != "clip.mp4" || saved.Size != 5 || saved.Path != filepath.Join(base, "clip.mp4") {
		t.Errorf("saved = %+v", saved)
	}

	f, info, err := s.Open("clip.mp4")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()
	data, _ := io.ReadAll(f)
	if string(data) != "hello" || info.Size() != 5 {
		t.Errorf("content = %q size = %d", data, info.Size())
	}
}

func TestFileSaver_UniqueNames(t *testing.T) {
	s, _, _ := newTestSaver(t, 0)
	ctx := context.Background()

	first, _ := s.SaveBytesAsFile(ctx, []byte("a"), "clip.mp4")
	second, err := s.SaveBytesAsFile(ctx, []byte("b"), "clip.mp4")
	if err != nil {
		t.Fatalf("SaveBytesAsFile failed: %v", err)
	}
	if first.Name != "clip.mp4" || second.Name != "clip_1.mp4" {
		t.Errorf("names = %q, %q", first.Name, second.Name)
	}
}

func TestFileSaver_ReleasesStagingFile(t *testing.T) {
	s, _, temp := newTestSaver(t, 20*time.Millisecond)

	if _, err := s.SaveBytesAsFile(context.Background(), []byte("data"), "x.jpg"); err != nil {
		t.Fatalf("SaveBytesAsFile failed: %v", err)
	}

	entries, _ := os.ReadDir(temp)
	if len(entries) != 1 {
		t.Errorf("staging entries before release = %d, want 1", len(entries))
	}

	s.Wait()
	entries, _ = os.ReadDir(temp)
	if len(entries) != 0 {
		t.Errorf("staging entries after release = %d, want 0", len(entries))
	}
}

func TestFileSaver_Rejects(t *testing.T) {
	s, _, _ := newTestSaver(t, 0)

	if _, err := s.SaveBytesAsFile(context.Background(), nil, "x.mp4"); !errors.Is(err, domain.ErrEmptyBody) {
		t.Errorf("empty data error = %v, want ErrEmptyBody", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.SaveBytesAsFile(ctx, []byte("x"), "x.mp4"); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled error = %v, want context.Canceled", err)
	}
}

func TestFileSaver_StorageFull(t *testing.T) {
	s, _, _ := newTestSaver(t, 0)
	if _, err := s.FreeSpace(); err != nil {
		t.Skipf("free space unavailable: %v", err)
	}
	s.minFree = 1 << 62

	_, err := s.SaveBytesAsFile(context.Background(), []byte("x"), "x.mp4")
	if !errors.Is(err, domain.ErrStorageFull) {
		t.Errorf("error = %v, want ErrStorageFull", err)
	}
}

func TestFileSaver_OpenRejectsTraversal(t *testing.T) {
	s, _, _ := newTestSaver(t, 0)

	for _, name := range []string{"", "../etc/passwd", ".hidden", "a/b.mp4", "missing.mp4"} {
		if _, _, err := s.Open(name); !errors.Is(err, domain.ErrMediaNotFound) {
			t.Errorf("Open(%q) error = %v, want ErrMediaNotFound", name, err)
		}
	}
}

func TestFileSaver_PathComponentsStripped(t *testing.T) {
	s, base, _ := newTestSaver(t, 0)

	saved, err := s.SaveBytesAsFile(context.Background(), []byte("x"), "../../escape.mp4")
	if err != nil {
		t.Fatalf("SaveBytesAsFile failed: %v", err)
	}
	if filepath.Dir(saved.Path) != base {
		t.Errorf("saved outside storage: %s", saved.Path)
	}
}

func TestImageExtension(t *testing.T) {
	tests := []struct {
		name  string
		data  []byte
		ctype string
		want  string
	}{
		{"png bytes", pngBytes(t, 2, 2), "", ".png"},
		{"jpeg bytes", []byte("\xff\xd8\xff\xe0rest"), "image/png", ".jpg"},
		{"gif bytes", []byte("GIF89a...."), "", ".gif"},
		{"webp bytes", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "", ".webp"},
		{"unknown bytes, webp header", []byte("????"), "image/webp", ".webp"},
		{"unknown everything", []byte("????"), "", ".jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ImageExtension(tt.data, tt.ctype); got != tt.want {
				t.Errorf("ImageExtension = %q, want %q", got, tt.want)
			}
		})
	}
}
