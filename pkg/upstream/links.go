package upstream

import (
	"context"
	"errors"
	"strings"

	"github.com/iconidentify/tikgrab/internal/domain"
)

// hdMarkers are matched against a link's quality label. The link API has no
// explicit resolution field, so this stays a best-effort guess.
var hdMarkers = []string{"1080", "hd", "original", "high", "2k", "4k"}

// LinkClient fetches direct download links from the secondary API.
type LinkClient struct {
	api *apiClient
}

// NewLinkClient creates a client for the download-link API.
func NewLinkClient(opts Options) (*LinkClient, error) {
	api, err := newAPIClient(domain.ProviderLinks, opts)
	if err != nil {
		return nil, err
	}
	return &LinkClient{api: api}, nil
}

// Fetch retrieves download links for a normalized post URL. It does not retry.
func (c *LinkClient) Fetch(ctx context.Context, normalizedURL string) (*Payload, error) {
	var resp linksResponse
	if err := c.api.getJSON(ctx, normalizedURL, nil, &resp); err != nil {
		return nil, err
	}

	if !strings.EqualFold(resp.Status, "success") {
		msg := resp.Message
		if msg == "" {
			msg = "status " + resp.Status
		}
		return nil, domain.NewUpstreamError(c.api.provider, "API returned failure", 0, errors.New(msg))
	}
	if resp.Data == nil {
		return nil, domain.NewUpstreamError(c.api.provider, "malformed response", 0, errors.New("missing data object"))
	}

	p := c.parse(resp.Data)
	if !p.HasMedia() {
		return nil, domain.NewUpstreamError(c.api.provider, "no download links", 0, errors.New("empty link list"))
	}
	return p, nil
}

// linksResponse is the envelope returned by the download-link API.
type linksResponse struct {
	Status  string     `json:"status"`
	Message string     `json:"message"`
	Data    *linksData `json:"data"`
}

type linksData struct {
	Title  string     `json:"title"`
	Links  []linkItem `json:"links"`
	Photos []string   `json:"photos"`
}

type linkItem struct {
	Type    string `json:"type"`
	Quality string `json:"quality"`
	URL     string `json:"url"`
}

func (c *LinkClient) parse(d *linksData) *Payload {
	p := &Payload{
		Provider: c.api.provider,
		Title:    strings.TrimSpace(d.Title),
	}

	for _, link := range d.Links {
		u := c.api.resolve(link.URL)
		if u == "" {
			continue
		}
		switch classifyLink(link) {
		case linkAudio:
			if p.AudioURL == "" {
				p.AudioURL = u
			}
		case linkImage:
			p.Images = append(p.Images, u)
		case linkHighDef:
			if p.Video.HighDef == "" {
				p.Video.HighDef = u
			}
		case linkNoWatermark:
			if p.Video.NoWatermark == "" {
				p.Video.NoWatermark = u
			}
		default:
			if p.Video.Standard == "" {
				p.Video.Standard = u
			}
		}
	}

	if len(d.Photos) > 0 {
		p.Images = p.Images[:0]
		for _, photo := range d.Photos {
			if u := c.api.resolve(photo); u != "" {
				p.Images = append(p.Images, u)
			}
		}
	}

	return p
}

type linkClass int

const (
	linkStandard linkClass = iota
	linkHighDef
	linkNoWatermark
	linkAudio
	linkImage
)

func classifyLink(l linkItem) linkClass {
	kind := strings.ToLower(strings.TrimSpace(l.Type))
	quality := strings.ToLower(l.Quality)

	switch {
	case kind == "audio" || kind == "music" || kind == "mp3" || strings.Contains(quality, "mp3") || strings.Contains(quality, "audio"):
		return linkAudio
	case kind == "image" || kind == "photo":
		return linkImage
	case IsHighDefLabel(quality):
		return linkHighDef
	case isNoWatermarkLabel(quality):
		return linkNoWatermark
	}
	return linkStandard
}

// IsHighDefLabel reports whether a quality label looks like an HD variant.
func IsHighDefLabel(label string) bool {
	label = strings.ToLower(label)
	for _, m := range hdMarkers {
		if strings.Contains(label, m) {
			return true
		}
	}
	return false
}

func isNoWatermarkLabel(label string) bool {
	compact := strings.NewReplacer(" ", "", "_", "", "-", "").Replace(label)
	return strings.Contains(compact, "nowatermark") || strings.Contains(compact, "withoutwatermark")
}
