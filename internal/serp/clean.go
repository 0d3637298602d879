package serp

import (
	"encoding/base64"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/purell"
)

const normalizeFlags = purell.FlagLowercaseScheme |
	purell.FlagLowercaseHost |
	purell.FlagRemoveDefaultPort |
	purell.FlagRemoveFragment |
	purell.FlagDecodeUnnecessaryEscapes |
	purell.FlagRemoveDotSegments

// Clean unwraps search-engine redirect links, normalizes each URL, drops
// non-web and repeated entries, and truncates to limit. Rank order is
// preserved.
func Clean(urls []string, limit int) []string {
	out := make([]string, 0, min(len(urls), max(limit, 0)))
	seen := make(map[string]bool, len(urls))
	for _, raw := range urls {
		if limit > 0 && len(out) >= limit {
			break
		}
		u := unwrapRedirect(strings.TrimSpace(raw))
		parsed, err := url.Parse(u)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			continue
		}
		norm, err := purell.NormalizeURLString(u, normalizeFlags)
		if err != nil {
			continue
		}
		if seen[norm] {
			continue
		}
		seen[norm] = true
		out = append(out, norm)
	}
	return out
}

// unwrapRedirect returns the destination of known result-click redirects:
// DuckDuckGo /l/?uddg=, Google /url?q=, Bing /ck/a?u=a1<base64> and the
// Yahoo /RU=<escaped>/ path segment.
func unwrapRedirect(raw string) string {
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	q := u.Query()

	switch {
	case strings.HasSuffix(host, "duckduckgo.com") && u.Path == "/l/":
		if dest := q.Get("uddg"); dest != "" {
			return dest
		}
	case strings.HasPrefix(host, "google.") && u.Path == "/url":
		if dest := q.Get("q"); dest != "" {
			return dest
		}
		if dest := q.Get("url"); dest != "" {
			return dest
		}
	case host == "bing.com" && u.Path == "/ck/a":
		if enc := q.Get("u"); strings.HasPrefix(enc, "a1") {
			if dest, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(enc[2:], "=")); err == nil {
				return string(dest)
			}
		}
	case strings.HasSuffix(host, "search.yahoo.com"):
		if _, rest, ok := strings.Cut(raw, "/RU="); ok {
			seg, _, _ := strings.Cut(rest, "/")
			if dest, err := url.PathUnescape(seg); err == nil {
				return dest
			}
		}
	}
	return raw
}
