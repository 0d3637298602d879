// Package bypass recognises bot-protection challenge pages so that a failed
// page fetch can say who blocked it.
package bypass

import (
	"bytes"
	"net/http"
	"strings"
)

// Response is the part of an HTTP response the detectors look at.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Signature describes how one bot-protection vendor marks its block pages.
type Signature struct {
	Name     string
	Statuses []int
	// Server matches case-insensitively against the Server header.
	Server  string
	Headers []string
	Body    [][]byte
}

// Matches reports whether res carries the signature.
func (s Signature) Matches(res Response) bool {
	statusOK := false
	for _, code := range s.Statuses {
		if res.StatusCode == code {
			statusOK = true
			break
		}
	}
	if !statusOK {
		return false
	}

	if s.Server != "" && strings.Contains(strings.ToLower(res.Header.Get("Server")), s.Server) {
		return true
	}
	for _, h := range s.Headers {
		if res.Header.Get(h) != "" {
			return true
		}
	}
	for _, marker := range s.Body {
		if bytes.Contains(res.Body, marker) {
			return true
		}
	}
	return false
}

// DefaultSignatures returns the known vendors in evaluation order.
func DefaultSignatures() []Signature {
	return []Signature{
		{
			Name:     "Cloudflare",
			Statuses: []int{http.StatusForbidden, http.StatusServiceUnavailable},
			Server:   "cloudflare",
			Body: [][]byte{
				[]byte("cf-browser-verification"),
				[]byte("cloudflare-nginx"),
				[]byte("cf-turnstile"),
				[]byte("Attention Required! | Cloudflare"),
			},
		},
		{
			Name:     "Akamai",
			Statuses: []int{http.StatusForbidden},
			Server:   "akamai",
		},
		{
			Name:     "DataDome",
			Statuses: []int{http.StatusForbidden},
			Server:   "datadome",
			Headers:  []string{"X-DataDome", "X-DataDome-Response"},
			Body:     [][]byte{[]byte("geo.captcha-delivery.com"), []byte("datadome")},
		},
		{
			Name:     "PerimeterX",
			Statuses: []int{http.StatusForbidden},
			Headers:  []string{"X-Px-Captcha"},
			Body: [][]byte{
				[]byte("client.perimeterx.net"),
				[]byte("px-captcha"),
				[]byte("_pxBlock"),
			},
		},
	}
}

// Detect returns the name of the first matching signature, or "".
func Detect(res Response, signatures []Signature) string {
	for _, s := range signatures {
		if s.Matches(res) {
			return s.Name
		}
	}
	// Akamai's generic block page needs both markers, which a Signature
	// cannot express.
	if res.StatusCode == http.StatusForbidden &&
		bytes.Contains(res.Body, []byte("Reference #")) &&
		bytes.Contains(res.Body, []byte("Access Denied")) {
		return "Akamai"
	}
	return ""
}
