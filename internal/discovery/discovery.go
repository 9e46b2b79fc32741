// Package discovery derives the ordered, deduplicated entity references from
// the roster listing page.
package discovery

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/roster-crawler/internal/crawler"
	"github.com/JakeFAU/roster-crawler/internal/extract"
)

const (
	minLinkName      = 3
	maxAncestorDepth = 5
	maxNameLen       = 100
	ancestorSelector = "div, li, td, h3, h4"
)

var ancestorNameBand = struct{ min, max int }{10, 100}

// Discoverer implements crawler.Discoverer for a single listing URL.
type Discoverer struct {
	opts     crawler.Options
	fetcher  crawler.Fetcher
	headless crawler.Fetcher
	detector crawler.HeadlessDetector
	logger   *zap.Logger

	linkID   *regexp.Regexp
	scriptID *regexp.Regexp
}

var _ crawler.Discoverer = (*Discoverer)(nil)

// New builds a Discoverer. opts must already carry defaults.
func New(opts crawler.Options, fetcher crawler.Fetcher, logger *zap.Logger) *Discoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	param := regexp.QuoteMeta(opts.IDParam)
	return &Discoverer{
		opts:     opts,
		fetcher:  fetcher,
		logger:   logger,
		linkID:   regexp.MustCompile(`(?i)[?&]` + param + `=(\d+)`),
		scriptID: regexp.MustCompile(`(?i)\b` + param + `=(\d+)`),
	}
}

// WithHeadless enables a single headless re-render of the listing when both
// static strategies come back empty and detector judges the page a JS shell.
func (d *Discoverer) WithHeadless(fetcher crawler.Fetcher, detector crawler.HeadlessDetector) *Discoverer {
	d.headless = fetcher
	d.detector = detector
	return d
}

// Discover fetches the listing page and returns its references. A listing
// fetch failure is returned as an error; a page with no references yields an
// empty slice.
func (d *Discoverer) Discover(ctx context.Context) ([]crawler.EntityRef, error) {
	listingURL := d.opts.ListingURL
	page, err := d.fetcher.Fetch(ctx, listingURL)
	if err != nil {
		return nil, fmt.Errorf("discover listing: %w", err)
	}

	refs, strategy := d.parse(page)
	if len(refs) == 0 && d.shouldPromote(page) {
		d.logger.Info("listing looks script rendered, retrying headless", zap.String("url", listingURL))
		rendered, err := d.headless.Fetch(ctx, listingURL)
		if err != nil {
			d.logger.Warn("headless listing fetch failed", zap.String("url", listingURL), zap.Error(err))
		} else {
			refs, strategy = d.parse(rendered)
			strategy = "headless_" + strategy
		}
	}

	d.logger.Info("listing discovered",
		zap.String("url", listingURL),
		zap.Int("references", len(refs)),
		zap.String("strategy", strategy),
	)
	return refs, nil
}

func (d *Discoverer) shouldPromote(page crawler.Page) bool {
	return d.headless != nil && d.detector != nil && d.detector.ShouldPromote(page)
}

func (d *Discoverer) parse(page crawler.Page) ([]crawler.EntityRef, string) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		d.logger.Warn("listing unparsable", zap.Error(err))
		return []crawler.EntityRef{}, "none"
	}
	if refs := dedupe(d.fromLinks(doc)); len(refs) > 0 {
		return refs, "links"
	}
	if refs := dedupe(d.fromScripts(doc)); len(refs) > 0 {
		return refs, "scripts"
	}
	return []crawler.EntityRef{}, "none"
}

// fromLinks reads every anchor pointing at an entity page.
func (d *Discoverer) fromLinks(doc *goquery.Document) []crawler.EntityRef {
	var refs []crawler.EntityRef
	doc.Find("a[href]").Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		if !crawler.ContainsFold(href, d.opts.LinkMarker) {
			return
		}
		m := d.linkID.FindStringSubmatch(href)
		if m == nil {
			return
		}
		target, err := crawler.ResolveURL(d.opts.ListingURL, href)
		if err != nil {
			d.logger.Debug("skipping unresolvable entity link", zap.String("href", href), zap.Error(err))
			return
		}
		refs = append(refs, crawler.EntityRef{
			ID:          m[1],
			DisplayName: linkName(link, m[1]),
			URL:         target,
		})
	})
	return refs
}

// fromScripts recovers ids embedded in inline scripts and builds canonical
// entity URLs for them.
func (d *Discoverer) fromScripts(doc *goquery.Document) []crawler.EntityRef {
	var refs []crawler.EntityRef
	doc.Find("script").Each(func(_ int, script *goquery.Selection) {
		body := script.Text()
		if !crawler.ContainsFold(body, d.opts.IDParam) {
			return
		}
		for _, m := range d.scriptID.FindAllStringSubmatch(body, -1) {
			target, err := d.opts.EntityURL(m[1])
			if err != nil {
				continue
			}
			refs = append(refs, crawler.EntityRef{
				ID:          m[1],
				DisplayName: placeholderName(m[1]),
				URL:         target,
			})
		}
	})
	return refs
}

func linkName(link *goquery.Selection, id string) string {
	name := extract.SelectionText(link)
	if crawler.RuneLen(name) < minLinkName {
		name = ""
		link.ParentsFiltered(ancestorSelector).EachWithBreak(func(i int, parent *goquery.Selection) bool {
			if i >= maxAncestorDepth {
				return false
			}
			text := extract.SelectionText(parent)
			if crawler.WithinBand(text, ancestorNameBand.min, ancestorNameBand.max) {
				name = text
				return false
			}
			return true
		})
	}
	if strings.TrimSpace(name) == "" {
		name = placeholderName(id)
	}
	return crawler.TruncateRunes(name, maxNameLen)
}

func placeholderName(id string) string {
	return "Entity " + id
}

// dedupe keeps the first reference seen for each id.
func dedupe(refs []crawler.EntityRef) []crawler.EntityRef {
	seen := make(map[string]struct{}, len(refs))
	out := make([]crawler.EntityRef, 0, len(refs))
	for _, ref := range refs {
		if _, ok := seen[ref.ID]; ok {
			continue
		}
		seen[ref.ID] = struct{}{}
		out = append(out, ref)
	}
	return out
}
