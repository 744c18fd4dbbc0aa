package upstream

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/iconidentify/tikgrab/internal/domain"
)

// MetadataClient fetches descriptive metadata and preview URLs from the
// primary API.
type MetadataClient struct {
	api *apiClient
}

// NewMetadataClient creates a client for the metadata API.
func NewMetadataClient(opts Options) (*MetadataClient, error) {
	api, err := newAPIClient(domain.ProviderMetadata, opts)
	if err != nil {
		return nil, err
	}
	return &MetadataClient{api: api}, nil
}

// Fetch retrieves metadata for a normalized post URL. It does not retry.
func (c *MetadataClient) Fetch(ctx context.Context, normalizedURL string) (*Payload, error) {
	var resp metadataResponse
	if err := c.api.getJSON(ctx, normalizedURL, url.Values{"hd": {"1"}}, &resp); err != nil {
		return nil, err
	}

	if resp.Code != 0 {
		msg := resp.Msg
		if msg == "" {
			msg = "unknown error"
		}
		return nil, domain.NewUpstreamError(c.api.provider, "API returned failure", 0,
			fmt.Errorf("code %d: %s", resp.Code, msg))
	}
	if resp.Data == nil {
		return nil, domain.NewUpstreamError(c.api.provider, "malformed response", 0,
			fmt.Errorf("missing data object"))
	}

	return c.parse(resp.Data), nil
}

// metadataResponse is the envelope returned by the metadata API.
type metadataResponse struct {
	Code int           `json:"code"`
	Msg  string        `json:"msg"`
	Data *metadataData `json:"data"`
}

type metadataData struct {
	ID          flexString `json:"id"`
	Title       string     `json:"title"`
	Cover       string     `json:"cover"`
	OriginCover string     `json:"origin_cover"`
	Duration    int        `json:"duration"`
	Play        string     `json:"play"`
	WMPlay      string     `json:"wmplay"`
	HDPlay      string     `json:"hdplay"`
	Music       string     `json:"music"`
	MusicInfo   *struct {
		ID       flexString `json:"id"`
		Title    string     `json:"title"`
		Play     string     `json:"play"`
		Cover    string     `json:"cover"`
		Author   string     `json:"author"`
		Original bool       `json:"original"`
		Duration int        `json:"duration"`
	} `json:"music_info"`
	PlayCount     int64    `json:"play_count"`
	DiggCount     int64    `json:"digg_count"`
	CommentCount  int64    `json:"comment_count"`
	ShareCount    int64    `json:"share_count"`
	DownloadCount int64    `json:"download_count"`
	CollectCount  int64    `json:"collect_count"`
	Images        []string `json:"images"`
	Author        struct {
		ID       flexString `json:"id"`
		UniqueID string     `json:"unique_id"`
		Nickname string     `json:"nickname"`
		Avatar   string     `json:"avatar"`
	} `json:"author"`
}

func (c *MetadataClient) parse(d *metadataData) *Payload {
	resolve := c.api.resolve

	p := &Payload{
		Provider: c.api.provider,
		ID:       string(d.ID),
		Title:    strings.TrimSpace(d.Title),
		CoverURL: resolve(d.Cover),
		Duration: d.Duration,
		Author: domain.Author{
			ID:        string(d.Author.ID),
			Username:  d.Author.UniqueID,
			Nickname:  d.Author.Nickname,
			AvatarURL: resolve(d.Author.Avatar),
		},
		Stats: domain.Statistics{
			Plays:     d.PlayCount,
			Likes:     d.DiggCount,
			Comments:  d.CommentCount,
			Shares:    d.ShareCount,
			Downloads: d.DownloadCount,
			Collects:  d.CollectCount,
		},
		// The metadata API's plain "play" stream is already watermark free.
		Video: VideoURLs{
			Standard:    resolve(d.Play),
			HighDef:     resolve(d.HDPlay),
			NoWatermark: resolve(d.Play),
		},
		AudioURL: resolve(d.Music),
	}
	if p.CoverURL == "" {
		p.CoverURL = resolve(d.OriginCover)
	}
	if p.Video.Standard == "" {
		p.Video.Standard = resolve(d.WMPlay)
	}

	if mi := d.MusicInfo; mi != nil && (mi.Title != "" || mi.Play != "") {
		p.AudioTitle = mi.Title
		p.Music = &domain.MusicInfo{
			ID:       string(mi.ID),
			Title:    mi.Title,
			Author:   mi.Author,
			URL:      resolve(mi.Play),
			CoverURL: resolve(mi.Cover),
			Duration: mi.Duration,
			Original: mi.Original,
			Source:   c.api.provider,
		}
		if p.Music.URL == "" {
			p.Music.URL = p.AudioURL
		}
		if p.AudioURL == "" {
			p.AudioURL = p.Music.URL
		}
	}

	for _, img := range d.Images {
		if u := resolve(img); u != "" {
			p.Images = append(p.Images, u)
		}
	}
	return p
}
