package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// ResolveURL resolves ref against base and returns an absolute URL with the
// fragment removed.
func ResolveURL(base, ref string) (string, error) {
	b, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	u := b.ResolveReference(r)
	if !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("url %q is not absolute", u.String())
	}
	u.Fragment = ""
	return u.String(), nil
}

// SiteLabel extracts a lowercase hostname for metrics labels. It returns
// "unknown" if the URL is invalid.
func SiteLabel(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
