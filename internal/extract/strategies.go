package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/roster-crawler/internal/crawler"
)

const labeledTrimSet = " \t\r\n:;,.-–—|/\"'·"

type readFunc func(doc *Document, sel *goquery.Selection) (string, bool)

func (p ElementProbe) accepts(sel *goquery.Selection) bool {
	if p.Pattern == nil {
		return true
	}
	value, ok := sel.Attr(p.Attr)
	return ok && p.Pattern.MatchString(value)
}

// elementStrategy returns the first element selected by the probe that read
// accepts.
func elementStrategy(p ElementProbe, read readFunc) Strategy[string] {
	return Strategy[string]{
		Name: p.Name,
		Apply: func(doc *Document) (string, bool) {
			var (
				out   string
				found bool
			)
			doc.Find(p.Selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
				if !p.accepts(sel) {
					return true
				}
				out, found = read(doc, sel)
				return !found
			})
			return out, found
		},
	}
}

func elementStrategies(probes []ElementProbe, read readFunc) []Strategy[string] {
	out := make([]Strategy[string], 0, len(probes))
	for _, p := range probes {
		out = append(out, elementStrategy(p, read))
	}
	return out
}

// readImageSource resolves a non-empty src against the page URL.
func readImageSource(doc *Document, sel *goquery.Selection) (string, bool) {
	src, ok := sel.Attr("src")
	src = strings.TrimSpace(src)
	if !ok || src == "" {
		return "", false
	}
	resolved, err := crawler.ResolveURL(doc.URL, src)
	if err != nil {
		return "", false
	}
	return resolved, true
}

func readContainerText(minLen, maxLen int) readFunc {
	return func(_ *Document, sel *goquery.Selection) (string, bool) {
		text := SelectionText(sel)
		if crawler.RuneLen(text) <= minLen {
			return "", false
		}
		return crawler.TruncateRunes(text, maxLen), true
	}
}

// patternStrategy applies re to a text view of the page. The first capture
// group is preferred over the whole match.
func patternStrategy(name string, re *regexp.Regexp, view func(*Document) string, clean func(string) string) Strategy[string] {
	return Strategy[string]{
		Name: name,
		Apply: func(doc *Document) (string, bool) {
			m := re.FindStringSubmatch(view(doc))
			if m == nil {
				return "", false
			}
			value := m[0]
			if len(m) > 1 && m[1] != "" {
				value = m[1]
			}
			if clean != nil {
				value = clean(value)
			}
			return value, value != ""
		},
	}
}

func patternStrategies(prefix string, patterns []*regexp.Regexp, view func(*Document) string, clean func(string) string) []Strategy[string] {
	out := make([]Strategy[string], 0, len(patterns))
	for i, re := range patterns {
		out = append(out, patternStrategy(fmt.Sprintf("%s_%d", prefix, i+1), re, view, clean))
	}
	return out
}

func contentView(doc *Document) string { return doc.ContentText() }

func pageView(doc *Document) string { return doc.Text() }

func trimLabeled(s string) string {
	return strings.Trim(crawler.CollapseSpace(s), labeledTrimSet)
}

// paragraphStrategy joins every paragraph whose text falls inside band.
func paragraphStrategy(band Band, maxLen int) Strategy[string] {
	return Strategy[string]{
		Name: "bio_paragraphs",
		Apply: func(doc *Document) (string, bool) {
			var parts []string
			doc.Find("p").Each(func(_ int, sel *goquery.Selection) {
				text := SelectionText(sel)
				if crawler.WithinBand(text, band.Min, band.Max) {
					parts = append(parts, text)
				}
			})
			if len(parts) == 0 {
				return "", false
			}
			return crawler.TruncateRunes(strings.Join(parts, " "), maxLen), true
		},
	}
}

// committeeBlock finds the first keyword heading that has a following block
// element and returns that block.
func committeeBlock(doc *Document, r Rules) *goquery.Selection {
	blocks := make(map[string]struct{}, len(r.CommitteeBlocks))
	for _, tag := range r.CommitteeBlocks {
		blocks[tag] = struct{}{}
	}
	isBlock := func(n *html.Node) bool {
		_, ok := blocks[n.Data]
		return ok
	}

	var block *html.Node
	doc.Find(r.CommitteeHeadings).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		heading := strings.ToLower(SelectionText(sel))
		if !containsAny(heading, r.CommitteeKeywords) {
			return true
		}
		block = followingElement(sel.Get(0), isBlock)
		return block == nil
	})
	if block == nil {
		return nil
	}
	return goquery.NewDocumentFromNode(block).Selection
}

func committeeListStrategy(r Rules) Strategy[[]string] {
	return Strategy[[]string]{
		Name: "committee_list_items",
		Apply: func(doc *Document) ([]string, bool) {
			block := committeeBlock(doc, r)
			if block == nil {
				return nil, false
			}
			var items []string
			block.Find("li").Each(func(_ int, li *goquery.Selection) {
				if text := SelectionText(li); text != "" {
					items = append(items, text)
				}
			})
			return capList(items), len(items) > 0
		},
	}
}

func committeeSplitStrategy(r Rules) Strategy[[]string] {
	return Strategy[[]string]{
		Name: "committee_split_text",
		Apply: func(doc *Document) ([]string, bool) {
			block := committeeBlock(doc, r)
			if block == nil {
				return nil, false
			}
			if hasNonEmptyItem(block) {
				return nil, false
			}
			text := SelectionText(block)
			if crawler.RuneLen(text) <= r.CommitteeMinText {
				return nil, false
			}
			var items []string
			for _, segment := range r.CommitteeSplit.Split(text, -1) {
				segment = strings.TrimSpace(segment)
				if crawler.WithinBand(segment, r.CommitteeSegment.Min, r.CommitteeSegment.Max) {
					items = append(items, segment)
				}
			}
			return capList(items), len(items) > 0
		},
	}
}

func hasNonEmptyItem(block *goquery.Selection) bool {
	found := false
	block.Find("li").EachWithBreak(func(_ int, li *goquery.Selection) bool {
		found = SelectionText(li) != ""
		return !found
	})
	return found
}

func capList(items []string) []string {
	if len(items) > crawler.MaxCommittees {
		return items[:crawler.MaxCommittees]
	}
	return items
}

func containsAny(haystack string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}
