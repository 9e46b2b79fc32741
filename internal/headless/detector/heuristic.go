// Package detector decides when a fetched roster page is a JavaScript shell
// worth re-rendering headlessly.
package detector

import (
	"bytes"
	"net/http"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/JakeFAU/roster-crawler/internal/crawler"
)

const (
	defaultThreshold = 2048
	// minVisibleText is the visible text below which a page with a client
	// side mount point is considered unrendered.
	minVisibleText = 200
	scriptSharePct = 25
)

// Heuristic promotes pages that look script rendered. When markers are set,
// a page containing any of them is already usable and is never promoted.
type Heuristic struct {
	BodyLengthThreshold int
	Markers             []string
}

// NewHeuristic creates a detector. A zero threshold uses 2048 bytes.
func NewHeuristic(threshold int, markers ...string) *Heuristic {
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	lowered := make([]string, 0, len(markers))
	for _, m := range markers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			lowered = append(lowered, m)
		}
	}
	return &Heuristic{BodyLengthThreshold: threshold, Markers: lowered}
}

var mountIDs = map[string]bool{"__next": true, "root": true, "app": true, "__nuxt": true}

// ShouldPromote decides whether a headless fetch is required. Pages that
// were already rendered headlessly are never promoted again.
func (h *Heuristic) ShouldPromote(page crawler.Page) bool {
	if page.Headless || page.StatusCode != http.StatusOK {
		return false
	}
	body := page.Body
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	if h.hasMarker(body) {
		return false
	}
	s := scan(body)
	if s.mount && s.visibleText < minVisibleText {
		return true
	}
	return len(body) < h.BodyLengthThreshold && s.scriptBytes*100/len(body) >= scriptSharePct
}

func (h *Heuristic) hasMarker(body []byte) bool {
	if len(h.Markers) == 0 {
		return false
	}
	lower := bytes.ToLower(body)
	for _, m := range h.Markers {
		if bytes.Contains(lower, []byte(m)) {
			return true
		}
	}
	return false
}

type stats struct {
	scriptBytes int
	visibleText int
	mount       bool
}

// scan tokenizes body once, measuring inline script bytes, visible text
// runes and the presence of a client side mount point.
func scan(body []byte) stats {
	var s stats
	z := html.NewTokenizer(bytes.NewReader(body))
	var raw atom.Atom
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return s
		case html.StartTagToken, html.SelfClosingTagToken:
			size := len(z.Raw())
			tok := z.Token()
			switch tok.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Template:
				if tt == html.StartTagToken {
					raw = tok.DataAtom
				}
			}
			if tok.DataAtom == atom.Script {
				s.scriptBytes += size
			}
			for _, attr := range tok.Attr {
				if (attr.Key == "id" && mountIDs[attr.Val]) || attr.Key == "data-reactroot" || attr.Key == "ng-app" {
					s.mount = true
				}
			}
		case html.EndTagToken:
			if raw == atom.Script {
				s.scriptBytes += len(z.Raw())
			}
			raw = 0
		case html.TextToken:
			text := z.Text()
			switch raw {
			case atom.Script:
				s.scriptBytes += len(text)
			case 0:
				s.visibleText += utf8.RuneCount(bytes.TrimSpace(text))
			}
		}
	}
}
