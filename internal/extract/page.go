package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Page is a fetched and parsed document. It is read-only once built and may
// be shared by extractors running concurrently.
type Page struct {
	URL *url.URL
	Doc *goquery.Document
	Raw []byte

	base     *url.URL
	textOnce sync.Once
	text     string
	flowOnce sync.Once
	flow     string
}

// NewPage parses body as HTML. Relative references resolve against rawURL,
// or against the document's <base href> when one is present.
func NewPage(rawURL string, body []byte) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	p := &Page{URL: u, Doc: doc, Raw: body, base: u}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := u.Parse(strings.TrimSpace(href)); err == nil {
			p.base = b
		}
	}
	return p, nil
}

// Resolve turns a reference found in the page into an absolute http(s) URL.
// Fragment-only, javascript:, data: and other non-web references are
// rejected.
func (p *Page) Resolve(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return "", false
	}
	u, err := p.base.Parse(ref)
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	u.Fragment = ""
	return u.String(), true
}

// blockElements end a run of inline text in FlowText.
var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"br": true, "dd": true, "div": true, "dl": true, "dt": true,
	"fieldset": true, "figcaption": true, "figure": true, "footer": true,
	"form": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true,
	"h6": true, "header": true, "hr": true, "li": true, "main": true,
	"nav": true, "ol": true, "p": true, "pre": true, "section": true,
	"table": true, "td": true, "th": true, "tr": true, "ul": true,
	"title": true, "body": true, "option": true,
}

func skipElement(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.Data {
	case "script", "style", "noscript", "template":
		return true
	}
	return false
}

// FlowText returns the visible text as it reads in the browser: text nodes
// inside inline markup are concatenated as-is, so "<b>info</b>@shop.test"
// stays one token, while block elements are separated by newlines.
// Whitespace runs within a text node collapse to one space.
func (p *Page) FlowText() string {
	p.flowOnce.Do(func() {
		var b strings.Builder
		var walk func(n *html.Node)
		walk = func(n *html.Node) {
			if skipElement(n) {
				return
			}
			block := n.Type == html.ElementNode && blockElements[n.Data]
			if block {
				b.WriteByte('\n')
			}
			if n.Type == html.TextNode {
				b.WriteString(collapseSpace(n.Data))
			}
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
			if block {
				b.WriteByte('\n')
			}
		}
		for _, n := range p.Doc.Nodes {
			walk(n)
		}
		p.flow = b.String()
	})
	return p.flow
}

func collapseSpace(s string) string {
	var b strings.Builder
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		b.WriteRune(r)
	}
	if space {
		b.WriteByte(' ')
	}
	return b.String()
}

// VisibleText returns the document's text nodes, excluding script, style,
// noscript and template content, joined by single spaces.
func (p *Page) VisibleText() string {
	p.textOnce.Do(func() {
		var parts []string
		var walk func(n *html.Node)
		walk = func(n *html.Node) {
			if skipElement(n) {
				return
			}
			if n.Type == html.TextNode {
				if s := strings.Join(strings.Fields(n.Data), " "); s != "" {
					parts = append(parts, s)
				}
			}
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
		}
		for _, n := range p.Doc.Nodes {
			walk(n)
		}
		p.text = strings.Join(parts, " ")
	})
	return p.text
}
