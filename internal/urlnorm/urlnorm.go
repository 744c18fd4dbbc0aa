// Package urlnorm validates user-supplied post URLs and strips tracking noise
// so that equal posts produce equal cache keys.
package urlnorm

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/iconidentify/tikgrab/internal/domain"
)

// DefaultAllowedDomains are accepted when no list is configured.
var DefaultAllowedDomains = []string{"tiktok.com", "douyin.com", "iesdouyin.com"}

var trackingParams = map[string]struct{}{
	"_r":             {},
	"_t":             {},
	"is_from_webapp": {},
	"sender_device":  {},
	"sender_web_id":  {},
	"is_copy_url":    {},
	"share_app_id":   {},
	"share_item_id":  {},
	"share_link_id":  {},
	"social_sharing": {},
	"u_code":         {},
	"timestamp":      {},
	"user_id":        {},
	"tt_from":        {},
	"checksum":       {},
	"sec_user_id":    {},
	"web_id":         {},
	"enter_from":     {},
	"refer":          {},
}

var schemePrefix = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*://`)

// Normalizer checks URLs against a domain allow-list.
type Normalizer struct {
	allowed []string
}

// New creates a Normalizer. An empty list falls back to DefaultAllowedDomains.
func New(allowedDomains []string) *Normalizer {
	allowed := make([]string, 0, len(allowedDomains))
	for _, d := range allowedDomains {
		d = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(d, ".")))
		if d != "" {
			allowed = append(allowed, d)
		}
	}
	if len(allowed) == 0 {
		allowed = append(allowed, DefaultAllowedDomains...)
	}
	return &Normalizer{allowed: allowed}
}

// Normalize returns the canonical form of raw, or an *domain.InvalidURLError.
func (n *Normalizer) Normalize(raw string) (string, error) {
	input := strings.TrimSpace(raw)
	if input == "" {
		return "", invalid(raw, "empty URL")
	}
	if !schemePrefix.MatchString(input) {
		input = "https://" + input
	}

	u, err := url.Parse(input)
	if err != nil {
		return "", invalid(raw, "malformed URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", invalid(raw, "unsupported scheme "+u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", invalid(raw, "missing host")
	}
	if !n.Allowed(host) {
		return "", invalid(raw, "domain "+host+" is not supported")
	}

	if port := u.Port(); port != "" {
		u.Host = host + ":" + port
	} else {
		u.Host = host
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil
	u.RawQuery = cleanQuery(u.Query())

	return u.String(), nil
}

// Allowed reports whether host equals an allowed domain or is a subdomain of one.
func (n *Normalizer) Allowed(host string) bool {
	host = strings.ToLower(host)
	for _, d := range n.allowed {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// IsTrackingParam reports whether key is stripped during normalization.
func IsTrackingParam(key string) bool {
	k := strings.ToLower(key)
	if strings.HasPrefix(k, "utm_") {
		return true
	}
	_, ok := trackingParams[k]
	return ok
}

func cleanQuery(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		if IsTrackingParam(k) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	kept := url.Values{}
	for _, k := range keys {
		kept[k] = q[k]
	}
	return kept.Encode()
}

func invalid(input, reason string) error {
	return &domain.InvalidURLError{Input: input, Reason: reason}
}
