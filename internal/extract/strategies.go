package extract

import (
	"bytes"
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
)

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	phoneRe = regexp.MustCompile(`\+?\d(?:[ .\-]?\d){7,12}`)
	hrefRe  = regexp.MustCompile(`(?i)href\s*=\s*["']([^"'#][^"']*)["']`)
)

var (
	videoHosts = []string{"youtube.com", "youtube-nocookie.com", "youtu.be", "vimeo.com", "dailymotion.com"}
	videoExts  = []string{".mp4", ".webm", ".ogg", ".mov"}
	docExts    = []string{".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx", ".zip", ".rar", ".txt"}
)

func visibleText(p *Page) Result {
	text := p.VisibleText()
	if text == "" {
		return Result{}
	}
	return Found(text)
}

func readableText(p *Page) Result {
	article, err := readability.FromReader(bytes.NewReader(p.Raw), p.URL)
	if err != nil {
		return Failed(err)
	}
	text := strings.Join(strings.Fields(article.TextContent), " ")
	if text == "" {
		return Result{}
	}
	return Found(text)
}

func imageSources(p *Page) Result {
	var out []string
	p.Doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		for _, attr := range []string{"src", "data-src"} {
			if v, ok := s.Attr(attr); ok {
				if abs, ok := p.Resolve(v); ok {
					out = append(out, abs)
				}
			}
		}
	})
	return Found(out...)
}

func imageSrcsets(p *Page) Result {
	var out []string
	p.Doc.Find("img[srcset], picture source[srcset]").Each(func(_ int, s *goquery.Selection) {
		set, _ := s.Attr("srcset")
		for _, candidate := range strings.Split(set, ",") {
			fields := strings.Fields(candidate)
			if len(fields) == 0 {
				continue
			}
			if abs, ok := p.Resolve(fields[0]); ok {
				out = append(out, abs)
			}
		}
	})
	return Found(out...)
}

func anchorLinks(p *Page) Result {
	var out []string
	p.Doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if abs, ok := p.Resolve(href); ok {
			out = append(out, abs)
		}
	})
	return Found(out...)
}

// rawLinks scans the unparsed markup, catching hrefs on elements the parser
// dropped or relocated.
func rawLinks(p *Page) Result {
	var out []string
	for _, m := range hrefRe.FindAllSubmatch(p.Raw, -1) {
		if abs, ok := p.Resolve(string(m[1])); ok {
			out = append(out, abs)
		}
	}
	return Found(out...)
}

func videoElements(p *Page) Result {
	var out []string
	add := func(ref string) {
		if abs, ok := p.Resolve(ref); ok {
			out = append(out, abs)
		}
	}

	p.Doc.Find("video[src], video source[src]").Each(func(_ int, s *goquery.Selection) {
		v, _ := s.Attr("src")
		add(v)
	})
	p.Doc.Find("iframe[src]").Each(func(_ int, s *goquery.Selection) {
		v, _ := s.Attr("src")
		if abs, ok := p.Resolve(v); ok && isVideoHost(abs) {
			out = append(out, abs)
		}
	})
	p.Doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		v, _ := s.Attr("href")
		if abs, ok := p.Resolve(v); ok && hasExt(abs, videoExts) {
			out = append(out, abs)
		}
	})
	return Found(out...)
}

func videoMeta(p *Page) Result {
	var out []string
	sel := `meta[property="og:video"], meta[property="og:video:url"], meta[property="og:video:secure_url"], meta[name="twitter:player:stream"]`
	p.Doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
		v, _ := s.Attr("content")
		if abs, ok := p.Resolve(v); ok {
			out = append(out, abs)
		}
	})
	return Found(out...)
}

func emailsInText(p *Page) Result {
	return Found(emailRe.FindAllString(p.FlowText(), -1)...)
}

func mailtoLinks(p *Page) Result {
	var out []string
	p.Doc.Find(`a[href^="mailto:"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		addr := strings.TrimPrefix(href, "mailto:")
		if i := strings.IndexByte(addr, '?'); i >= 0 {
			addr = addr[:i]
		}
		if unescaped, err := url.PathUnescape(addr); err == nil {
			addr = unescaped
		}
		if emailRe.MatchString(addr) {
			out = append(out, emailRe.FindString(addr))
		}
	})
	return Found(out...)
}

func phonesInText(p *Page) Result {
	return Found(phoneRe.FindAllString(p.FlowText(), -1)...)
}

func telLinks(p *Page) Result {
	var out []string
	p.Doc.Find(`a[href^="tel:"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		num := strings.TrimSpace(strings.TrimPrefix(href, "tel:"))
		if n := countDigits(num); n >= 8 && n <= 13 {
			out = append(out, num)
		}
	})
	return Found(out...)
}

func documentLinks(p *Page) Result {
	var out []string
	p.Doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if abs, ok := p.Resolve(href); ok && hasExt(abs, docExts) {
			out = append(out, abs)
		}
	})
	return Found(out...)
}

func embeddedDocuments(p *Page) Result {
	var out []string
	p.Doc.Find("embed[src], iframe[src], object[data]").Each(func(_ int, s *goquery.Selection) {
		ref, ok := s.Attr("src")
		if !ok {
			ref, _ = s.Attr("data")
		}
		if abs, ok := p.Resolve(ref); ok && hasExt(abs, docExts) {
			out = append(out, abs)
		}
	})
	return Found(out...)
}

func isVideoHost(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range videoHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// hasExt reports whether the URL's path ends in one of exts.
func hasExt(raw string, exts []string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}
