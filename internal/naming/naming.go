// Package naming builds filesystem-safe filenames for saved media.
package naming

import (
	"fmt"
	"path"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/iconidentify/tikgrab/internal/domain"
)

const maxBaseLength = 80

// ForRecord returns "{author}_{id}_{kind}{ext}" for a record, e.g.
// "dancer_7301234567890_video.mp4". Label distinguishes variants such as
// "video_hd" and defaults to the kind.
func ForRecord(rec *domain.MediaRecord, kind domain.MediaKind, label string) string {
	if label == "" {
		label = string(kind)
	}
	return BaseName(rec) + "_" + Sanitize(label) + kind.Extension()
}

// BaseName returns "{author}_{id}" or a fallback when both are missing.
func BaseName(rec *domain.MediaRecord) string {
	if rec == nil {
		return "tikgrab"
	}
	var parts []string
	if a := Sanitize(firstNonEmpty(rec.Author.Username, rec.Author.Nickname)); a != "" {
		parts = append(parts, a)
	}
	if id := Sanitize(rec.ID.String()); id != "" {
		parts = append(parts, id)
	}
	if len(parts) == 0 {
		if t := Sanitize(rec.Title); t != "" {
			return t
		}
		return "tikgrab"
	}
	return strings.Join(parts, "_")
}

// ImageEntry returns the name of the image at 1-based position pos,
// "{base}_image_{pos:02}{ext}".
func ImageEntry(base string, pos int, ext string) string {
	if base = Sanitize(base); base == "" {
		base = "tikgrab"
	}
	if ext == "" {
		ext = domain.MediaKindImage.Extension()
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return fmt.Sprintf("%s_image_%02d%s", base, pos, ext)
}

// ArchiveName returns "{base}_images.zip".
func ArchiveName(base string) string {
	if base = Sanitize(base); base == "" {
		base = "tikgrab"
	}
	return base + "_images.zip"
}

// Sanitize folds accents to ASCII, replaces characters that are invalid in
// filenames and collapses separators. Non-Latin letters are kept.
func Sanitize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'`")

	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err == nil {
		s = folded
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune('_')
		}
	}
	s = b.String()

	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	s = strings.Trim(s, "_.-")

	if len(s) > maxBaseLength {
		s = strings.TrimRight(truncateRunes(s, maxBaseLength), "_.-")
	}
	return s
}

// WithExtension replaces or adds ext on a caller-supplied filename.
func WithExtension(filename, ext string) string {
	base := strings.TrimSuffix(filename, path.Ext(filename))
	if s := Sanitize(base); s != "" {
		base = s
	} else {
		base = "tikgrab"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return base + ext
}

// Clean sanitizes a caller-supplied filename, keeping its extension when it
// has one and adding fallbackExt otherwise.
func Clean(filename, fallbackExt string) string {
	ext := strings.ToLower(path.Ext(filename))
	if ext == "" || len(ext) > 6 || Sanitize(ext[1:]) != ext[1:] {
		ext = fallbackExt
	}
	return WithExtension(filename, ext)
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Back off to a rune boundary.
	for n > 0 && !utf8RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func utf8RuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
