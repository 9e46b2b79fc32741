package crawler

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Defaults applied when an Options field is left zero.
const (
	DefaultListingURL        = "https://www.camara.cl/diputados/diputados.aspx"
	DefaultEntityURLTemplate = "diputado.aspx?prmId={id}"
	DefaultIDParam           = "prmId"
	DefaultLinkMarker        = "diputado.aspx"
	DefaultUserAgent         = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (compatible; roster-crawler/1.0)"
	DefaultConcurrencyLimit  = 5
	DefaultRequestTimeout    = 30 * time.Second
	DefaultPeriod            = "2022-2026"
)

// Options captures the invocation parameters of one run. The struct is
// decoupled from Viper so the core can be driven from tests or the API.
type Options struct {
	ListingURL        string
	EntityURLTemplate string
	IDParam           string
	LinkMarker        string
	UserAgent         string
	ConcurrencyLimit  int
	RequestTimeout    time.Duration
	Period            string
}

// WithDefaults fills zero-valued fields.
func (o Options) WithDefaults() Options {
	if o.ListingURL == "" {
		o.ListingURL = DefaultListingURL
	}
	if o.EntityURLTemplate == "" {
		o.EntityURLTemplate = DefaultEntityURLTemplate
	}
	if o.IDParam == "" {
		o.IDParam = DefaultIDParam
	}
	if o.LinkMarker == "" {
		o.LinkMarker = DefaultLinkMarker
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.ConcurrencyLimit == 0 {
		o.ConcurrencyLimit = DefaultConcurrencyLimit
	}
	if o.RequestTimeout == 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.Period == "" {
		o.Period = DefaultPeriod
	}
	return o
}

// Validate checks for obviously bad configuration combinations.
func (o Options) Validate() error {
	u, err := url.Parse(o.ListingURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("crawl.listing_url must be an absolute URL, got %q", o.ListingURL)
	}
	if !strings.Contains(o.EntityURLTemplate, "{id}") {
		return fmt.Errorf("crawl.entity_url_template must contain {id}")
	}
	if strings.TrimSpace(o.IDParam) == "" {
		return fmt.Errorf("crawl.id_param must be set")
	}
	if o.UserAgent == "" {
		return fmt.Errorf("crawl.user_agent must be set")
	}
	if o.ConcurrencyLimit <= 0 {
		return fmt.Errorf("crawl.concurrency_limit must be > 0")
	}
	if o.RequestTimeout <= 0 {
		return fmt.Errorf("crawl.request_timeout must be > 0")
	}
	return nil
}

// EntityURL renders the canonical entity page URL for id, resolving a relative
// template against the listing URL.
func (o Options) EntityURL(id string) (string, error) {
	raw := strings.ReplaceAll(o.EntityURLTemplate, "{id}", url.QueryEscape(id))
	return ResolveURL(o.ListingURL, raw)
}
