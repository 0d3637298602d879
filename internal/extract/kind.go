package extract

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is one category of extractable page content. The string value is the
// tag persisted with each detail row.
type Kind string

const (
	// Text is the page's visible text.
	Text Kind = "text"
	// Images are image sources, including lazy-loaded and srcset ones.
	Images Kind = "images"
	// Links are absolute hyperlink targets.
	Links Kind = "link"
	// Video covers video files and embedded player URLs.
	Video Kind = "video"
	// Email is e-mail addresses in the text or in mailto links.
	Email Kind = "email"
	// Phone is phone numbers of 8 to 13 digits in the text or in tel links.
	Phone Kind = "phone"
	// Documents are links to office documents and archives.
	Documents Kind = "document"

	// Error tags a detail that records why a page produced nothing.
	Error Kind = "error"
)

// All lists every extractable kind in canonical order.
var All = []Kind{Text, Images, Links, Video, Email, Phone, Documents}

// ErrUnknownKind is returned for a feature name with no matching Kind.
var ErrUnknownKind = errors.New("extract: unknown feature kind")

var kindAliases = map[string]Kind{
	"text":            Text,
	"testo":           Text,
	"images":          Images,
	"image":           Images,
	"immagini":        Images,
	"link":            Links,
	"links":           Links,
	"video":           Video,
	"videos":          Video,
	"email":           Email,
	"emails":          Email,
	"phone":           Phone,
	"phones":          Phone,
	"numeri_telefono": Phone,
	"document":        Documents,
	"documents":       Documents,
	"documenti":       Documents,
}

// ParseKind maps a user-supplied feature name to its Kind.
func ParseKind(s string) (Kind, error) {
	k, ok := kindAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// ParseKinds parses a comma-separated feature list. "all" selects every
// kind. Duplicates are dropped, first occurrence wins.
func ParseKinds(list string) ([]Kind, error) {
	if strings.EqualFold(strings.TrimSpace(list), "all") {
		return append([]Kind(nil), All...), nil
	}

	var kinds []Kind
	seen := make(map[Kind]bool)
	for _, part := range strings.Split(list, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		k, err := ParseKind(part)
		if err != nil {
			return nil, err
		}
		if !seen[k] {
			seen[k] = true
			kinds = append(kinds, k)
		}
	}
	if len(kinds) == 0 {
		return nil, fmt.Errorf("%w: empty feature list", ErrUnknownKind)
	}
	return kinds, nil
}
