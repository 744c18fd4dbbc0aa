package domain

import (
	"time"
)

// MediaID is the upstream identifier of a post.
type MediaID string

// String returns the string representation of the MediaID.
func (id MediaID) String() string {
	return string(id)
}

// ProvenanceSource tells how a record was assembled.
type ProvenanceSource string

const (
	// SourceFused means both upstream APIs contributed.
	SourceFused ProvenanceSource = "fused"
	// SourceDegraded means the download-link API was unavailable and
	// every download URL is a copy of its preview URL.
	SourceDegraded ProvenanceSource = "metadata-only"
)

// Provider names used in provenance and errors.
const (
	ProviderMetadata = "metadata"
	ProviderLinks    = "links"
)

// MediaRecord is the unified view of one post built from both upstream APIs.
// Records are immutable once built; a newer fetch replaces the whole record.
type MediaRecord struct {
	ID           MediaID      `json:"id"`
	SourceURL    string       `json:"source_url"`
	Title        string       `json:"title"`
	CoverURL     string       `json:"cover_url,omitempty"`
	Duration     int          `json:"duration_seconds,omitempty"`
	PreviewURLs  PreviewURLs  `json:"preview_urls"`
	DownloadURLs DownloadURLs `json:"download_urls"`
	Images       []ImageItem  `json:"images,omitempty"`
	Author       Author       `json:"author"`
	Statistics   Statistics   `json:"statistics"`
	Music        *MusicInfo   `json:"music,omitempty"`
	Provenance   Provenance   `json:"provenance"`
	Degraded     bool         `json:"degraded"`
	FetchedAt    time.Time    `json:"fetched_at"`
}

// PreviewURLs are safe to stream inline; none of them forces a file save.
type PreviewURLs struct {
	Standard    string `json:"standard,omitempty"`
	HighDef     string `json:"high_def,omitempty"`
	NoWatermark string `json:"no_watermark,omitempty"`
	Audio       string `json:"audio,omitempty"`
}

// DownloadURLs favour quality and may trigger a forced download.
type DownloadURLs struct {
	Standard    string   `json:"standard,omitempty"`
	HighDef     string   `json:"high_def,omitempty"`
	NoWatermark string   `json:"no_watermark,omitempty"`
	Audio       string   `json:"audio,omitempty"`
	Images      []string `json:"images,omitempty"`
}

// ImageItem is one slide of a photo post. Position is 1-based.
type ImageItem struct {
	ThumbnailURL string `json:"thumbnail_url"`
	DownloadURL  string `json:"download_url"`
	Position     int    `json:"position"`
}

// Author describes the account that published the post.
type Author struct {
	ID        string `json:"id,omitempty"`
	Username  string `json:"username,omitempty"`
	Nickname  string `json:"nickname,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Statistics holds engagement counters.
type Statistics struct {
	Plays     int64 `json:"plays"`
	Likes     int64 `json:"likes"`
	Comments  int64 `json:"comments"`
	Shares    int64 `json:"shares"`
	Downloads int64 `json:"downloads"`
	Collects  int64 `json:"collects"`
}

// MusicInfo describes the soundtrack of a post.
type MusicInfo struct {
	ID       string `json:"id,omitempty"`
	Title    string `json:"title"`
	Author   string `json:"author,omitempty"`
	URL      string `json:"url"`
	CoverURL string `json:"cover_url,omitempty"`
	Duration int    `json:"duration_seconds,omitempty"`
	Original bool   `json:"original"`
	Source   string `json:"source"`
}

// Provenance records which provider filled which field.
type Provenance struct {
	Source    ProvenanceSource  `json:"source"`
	Fields    map[string]string `json:"fields,omitempty"`
	LinkError string            `json:"link_error,omitempty"`
}

// IsSlideshow returns true if the record is a photo post.
func (r *MediaRecord) IsSlideshow() bool {
	return len(r.Images) > 0
}

// HasAudio returns true if any audio URL is known.
func (r *MediaRecord) HasAudio() bool {
	return r.DownloadURLs.Audio != "" || r.PreviewURLs.Audio != ""
}

// BestVideoDownloadURL returns the highest quality video download URL.
func (r *MediaRecord) BestVideoDownloadURL() string {
	switch {
	case r.DownloadURLs.HighDef != "":
		return r.DownloadURLs.HighDef
	case r.DownloadURLs.NoWatermark != "":
		return r.DownloadURLs.NoWatermark
	default:
		return r.DownloadURLs.Standard
	}
}

// DownloadURLFor picks the download URL matching a target key.
// Keys: video, video_hd, video_nowm, audio.
func (r *MediaRecord) DownloadURLFor(key string) (string, MediaKind) {
	switch key {
	case "video_hd", "hd":
		if r.DownloadURLs.HighDef != "" {
			return r.DownloadURLs.HighDef, MediaKindVideo
		}
		return r.BestVideoDownloadURL(), MediaKindVideo
	case "video_nowm", "nowm":
		if r.DownloadURLs.NoWatermark != "" {
			return r.DownloadURLs.NoWatermark, MediaKindVideo
		}
		return r.DownloadURLs.Standard, MediaKindVideo
	case "audio":
		return r.DownloadURLs.Audio, MediaKindAudio
	case "video", "":
		if r.DownloadURLs.Standard != "" {
			return r.DownloadURLs.Standard, MediaKindVideo
		}
		return r.BestVideoDownloadURL(), MediaKindVideo
	}
	return "", MediaKind(key)
}

// ImageDownloadURLs returns the download URL of every slide in position order.
func (r *MediaRecord) ImageDownloadURLs() []string {
	urls := make([]string, 0, len(r.Images))
	for _, img := range r.Images {
		urls = append(urls, img.DownloadURL)
	}
	return urls
}
