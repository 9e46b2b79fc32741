package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/JakeFAU/roster-crawler/internal/crawler"
)

// Document is a parsed entity page plus lazily computed text views.
type Document struct {
	// URL is the page address used to resolve relative links.
	URL string

	dom *goquery.Document

	text        *string
	contentText *string
	contentRe   *regexp.Regexp
}

// Parse builds a Document from raw HTML. contentClass selects the main content
// container whose text feeds the labeled-value patterns.
func Parse(body []byte, pageURL string, contentClass *regexp.Regexp) (*Document, error) {
	dom, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{URL: pageURL, dom: dom, contentRe: contentClass}, nil
}

// Find runs a CSS selector over the whole page.
func (d *Document) Find(selector string) *goquery.Selection {
	return d.dom.Find(selector)
}

// Text is the whitespace-collapsed text of the whole page, script and style
// bodies excluded.
func (d *Document) Text() string {
	if d.text == nil {
		t := SelectionText(d.dom.Selection)
		d.text = &t
	}
	return *d.text
}

// ContentText is the collapsed text of the first div whose class matches the
// content pattern, or of the body when none does.
func (d *Document) ContentText() string {
	if d.contentText != nil {
		return *d.contentText
	}
	var container *goquery.Selection
	if d.contentRe != nil {
		container = d.dom.Find("div[class]").FilterFunction(func(_ int, s *goquery.Selection) bool {
			class, _ := s.Attr("class")
			return d.contentRe.MatchString(class)
		}).First()
	}
	if container == nil || container.Length() == 0 {
		container = d.dom.Find("body").First()
	}
	t := SelectionText(container)
	d.contentText = &t
	return t
}

// SelectionText joins the text nodes under every node in sel with single
// spaces.
func SelectionText(sel *goquery.Selection) string {
	if sel == nil {
		return ""
	}
	var b strings.Builder
	for _, n := range sel.Nodes {
		writeText(&b, n)
	}
	return crawler.CollapseSpace(b.String())
}

func writeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		b.WriteByte(' ')
		return
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Template:
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
}

// followingElement returns the first element after n in document order,
// skipping n's own descendants, for which match is true.
func followingElement(n *html.Node, match func(*html.Node) bool) *html.Node {
	for cur := n; cur != nil; cur = cur.Parent {
		for sib := cur.NextSibling; sib != nil; sib = sib.NextSibling {
			if found := firstInSubtree(sib, match); found != nil {
				return found
			}
		}
	}
	return nil
}

func firstInSubtree(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := firstInSubtree(c, match); found != nil {
			return found
		}
	}
	return nil
}
