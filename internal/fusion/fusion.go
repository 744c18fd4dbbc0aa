// Package fusion merges the metadata and download-link payloads into one
// MediaRecord.
package fusion

import (
	"regexp"
	"time"

	"github.com/iconidentify/tikgrab/internal/domain"
	"github.com/iconidentify/tikgrab/pkg/upstream"
)

// DefaultForcedDownloadPatterns match URLs that make a browser save the file
// instead of playing it. Such URLs are never used for previews.
var DefaultForcedDownloadPatterns = []string{
	`(?i)content-disposition=attachment`,
	`(?i)[?&](download|dl)=(1|true)(&|$)`,
	`(?i)/download/`,
}

// Provenance field names.
const (
	FieldStandard    = "standard"
	FieldHighDef     = "high_def"
	FieldNoWatermark = "no_watermark"
	FieldAudio       = "audio"
	FieldImages      = "images"
	FieldMusic       = "music"
)

// Engine fuses payloads. It is safe for concurrent use.
type Engine struct {
	forced []*regexp.Regexp
	now    func() time.Time
}

// NewEngine creates an Engine. A nil pattern list uses the defaults.
func NewEngine(patterns []string) (*Engine, error) {
	if patterns == nil {
		patterns = DefaultForcedDownloadPatterns
	}
	e := &Engine{now: time.Now}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		e.forced = append(e.forced, re)
	}
	return e, nil
}

// MustEngine is NewEngine with the default patterns.
func MustEngine() *Engine {
	e, err := NewEngine(nil)
	if err != nil {
		panic(err)
	}
	return e
}

// IsForcedDownload reports whether rawURL matches a forced-download pattern.
func (e *Engine) IsForcedDownload(rawURL string) bool {
	for _, re := range e.forced {
		if re.MatchString(rawURL) {
			return true
		}
	}
	return false
}

// Fuse builds a record from meta and links. A nil links payload or a non-nil
// linkErr produces a degraded record whose download URLs mirror the previews.
// Fuse never fails; missing inputs yield empty fields.
func (e *Engine) Fuse(meta, links *upstream.Payload, linkErr error, originalURL string) *domain.MediaRecord {
	if meta == nil {
		meta = &upstream.Payload{}
	}
	degraded := links == nil || linkErr != nil
	if degraded {
		links = nil
	}

	rec := &domain.MediaRecord{
		ID:         domain.MediaID(meta.ID),
		SourceURL:  originalURL,
		Title:      meta.Title,
		CoverURL:   meta.CoverURL,
		Duration:   meta.Duration,
		Author:     meta.Author,
		Statistics: meta.Stats,
		FetchedAt:  e.now(),
		Provenance: domain.Provenance{
			Source: domain.SourceFused,
			Fields: make(map[string]string),
		},
	}
	if rec.Title == "" && links != nil {
		rec.Title = links.Title
	}

	rec.PreviewURLs = domain.PreviewURLs{
		Standard:    e.preview(meta.Video.Standard),
		HighDef:     e.preview(meta.Video.HighDef),
		NoWatermark: e.preview(meta.Video.NoWatermark),
		Audio:       e.preview(meta.AudioURL),
	}

	if degraded {
		rec.Degraded = true
		rec.Provenance.Source = domain.SourceDegraded
		if linkErr != nil {
			rec.Provenance.LinkError = linkErr.Error()
		}
		rec.DownloadURLs = domain.DownloadURLs{
			Standard:    rec.PreviewURLs.Standard,
			HighDef:     rec.PreviewURLs.HighDef,
			NoWatermark: rec.PreviewURLs.NoWatermark,
			Audio:       rec.PreviewURLs.Audio,
		}
		for field, v := range map[string]string{
			FieldStandard:    rec.DownloadURLs.Standard,
			FieldHighDef:     rec.DownloadURLs.HighDef,
			FieldNoWatermark: rec.DownloadURLs.NoWatermark,
			FieldAudio:       rec.DownloadURLs.Audio,
		} {
			if v != "" {
				rec.Provenance.Fields[field] = domain.ProviderMetadata
			}
		}
	} else {
		rec.DownloadURLs.Standard = pick(rec.Provenance.Fields, FieldStandard, links.Video.Standard, meta.Video.Standard)
		rec.DownloadURLs.HighDef = pick(rec.Provenance.Fields, FieldHighDef, links.Video.HighDef, meta.Video.HighDef)
		rec.DownloadURLs.NoWatermark = pick(rec.Provenance.Fields, FieldNoWatermark, links.Video.NoWatermark, meta.Video.NoWatermark)
		rec.DownloadURLs.Audio = pick(rec.Provenance.Fields, FieldAudio, links.AudioURL, meta.AudioURL)
	}

	rec.Images = fuseImages(meta, links, rec.Provenance.Fields)
	rec.DownloadURLs.Images = rec.ImageDownloadURLs()
	rec.Music = fuseMusic(meta, links, rec, rec.Provenance.Fields)

	return rec
}

func (e *Engine) preview(u string) string {
	if u == "" || e.IsForcedDownload(u) {
		return ""
	}
	return u
}

// pick returns the links value when set, otherwise the meta value, and
// records which provider supplied it.
func pick(fields map[string]string, field, fromLinks, fromMeta string) string {
	switch {
	case fromLinks != "":
		fields[field] = domain.ProviderLinks
		return fromLinks
	case fromMeta != "":
		fields[field] = domain.ProviderMetadata
		return fromMeta
	}
	return ""
}

func fuseImages(meta, links *upstream.Payload, fields map[string]string) []domain.ImageItem {
	if links != nil && len(links.Images) > 0 {
		fields[FieldImages] = domain.ProviderLinks
		items := make([]domain.ImageItem, len(links.Images))
		for i, u := range links.Images {
			thumb := u
			if i < len(meta.Images) && meta.Images[i] != "" {
				thumb = meta.Images[i]
			}
			items[i] = domain.ImageItem{ThumbnailURL: thumb, DownloadURL: u, Position: i + 1}
		}
		return items
	}

	if len(meta.Images) == 0 {
		return nil
	}
	fields[FieldImages] = domain.ProviderMetadata
	items := make([]domain.ImageItem, len(meta.Images))
	for i, u := range meta.Images {
		items[i] = domain.ImageItem{ThumbnailURL: u, DownloadURL: u, Position: i + 1}
	}
	return items
}

func fuseMusic(meta, links *upstream.Payload, rec *domain.MediaRecord, fields map[string]string) *domain.MusicInfo {
	if meta.Music != nil {
		m := *meta.Music
		if m.URL == "" {
			m.URL = rec.DownloadURLs.Audio
		}
		if m.Source == "" {
			m.Source = domain.ProviderMetadata
		}
		fields[FieldMusic] = domain.ProviderMetadata
		return &m
	}

	if links != nil && links.AudioURL != "" {
		title := links.AudioTitle
		if title == "" {
			title = "Original sound"
		}
		fields[FieldMusic] = domain.ProviderLinks
		return &domain.MusicInfo{
			Title:  title,
			Author: rec.Author.Nickname,
			URL:    links.AudioURL,
			Source: domain.ProviderLinks,
		}
	}

	if audio := firstNonEmpty(rec.DownloadURLs.Audio, meta.AudioURL); audio != "" {
		fields[FieldMusic] = domain.ProviderMetadata
		return &domain.MusicInfo{
			Title:  "Original sound",
			URL:    audio,
			Source: domain.ProviderMetadata,
		}
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
