package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/FranksOps/harvest/internal/bypass"
	"github.com/FranksOps/harvest/internal/fingerprint"
	"github.com/FranksOps/harvest/internal/metrics"
	"github.com/FranksOps/harvest/pkg/httpclient"
	"github.com/FranksOps/harvest/pkg/proxy"
	"github.com/FranksOps/harvest/pkg/useragent"
)

// FetchConfig configures page fetches.
type FetchConfig struct {
	Timeout      time.Duration
	MaxRedirects int
	UseCookieJar bool
	// UAPool supplies the User-Agent header. Defaults to the fixed desktop
	// Chrome identity.
	UAPool       *useragent.Pool
	Fingerprint  fingerprint.Profile
	MaxBodyBytes int64
	// InsecureSkipVerify is for tests against self-signed servers.
	InsecureSkipVerify bool
	// Proxies rotates fetches across proxy endpoints. HTTPS requests sent
	// through a proxy use Go's TLS stack, not the fingerprint profile.
	Proxies *proxy.Pool
}

// Response is a fetched page.
type Response struct {
	URL          string
	StatusCode   int
	Header       http.Header
	Body         []byte
	Duration     time.Duration
	DetectionSrc string
}

// StatusError reports a response outside the 2xx range.
type StatusError struct {
	URL          string
	StatusCode   int
	Status       string
	DetectionSrc string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s for url: %s", e.Status, e.URL)
	if e.DetectionSrc != "" {
		msg += fmt.Sprintf(" (blocked by %s)", e.DetectionSrc)
	}
	return msg
}

// Fetcher performs single-URL GETs. One Fetcher holds one client, so
// connections and cookies (if enabled) are reused across pages.
type Fetcher struct {
	config     FetchConfig
	client     *httpclient.Client
	signatures []bypass.Signature
}

const defaultMaxBody = 10 << 20

// NewFetcher initializes a new Fetcher with the given configuration.
func NewFetcher(cfg FetchConfig) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.Fixed(useragent.Desktop)
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBody
	}

	tlsOpts := fingerprint.Options{
		Profile:            cfg.Fingerprint,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
	if cfg.Proxies.Len() > 0 {
		tlsOpts.Proxy = proxy.FromRequest
	}
	transport, err := fingerprint.Transport(tlsOpts)
	if err != nil {
		return nil, fmt.Errorf("scraper: setup transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: cfg.UseCookieJar,
		Transport:    transport,
		Headers: http.Header{
			"Accept":          {"text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"},
			"Accept-Language": {"en-US,en;q=0.5"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("scraper: create client: %w", err)
	}

	return &Fetcher{
		config:     cfg,
		client:     client,
		signatures: bypass.DefaultSignatures(),
	}, nil
}

// Client exposes the underlying HTTP client so downloads share its
// transport and cookie jar.
func (f *Fetcher) Client() *httpclient.Client { return f.client }

// Fetch GETs targetURL. A non-2xx response is returned together with a
// *StatusError; transport failures return a nil Response.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) (*Response, error) {
	start := time.Now()
	domain := hostOf(targetURL)

	via := f.config.Proxies.Next()
	if via != nil {
		ctx = proxy.WithURL(ctx, via)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UAPool.Next())

	resp, err := f.client.Do(ctx, req)
	f.config.Proxies.Report(via, err)
	if err != nil {
		metrics.RecordScrape(domain, "error", "", time.Since(start), 0)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodyBytes))
	if err != nil {
		metrics.RecordScrape(domain, "error", "", time.Since(start), len(body))
		return nil, fmt.Errorf("read body: %w", err)
	}

	res := &Response{
		URL:        targetURL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Duration:   time.Since(start),
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		res.DetectionSrc = bypass.Detect(bypass.Response{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       body,
		}, f.signatures)
		metrics.RecordScrape(domain, strconv.Itoa(resp.StatusCode), res.DetectionSrc, res.Duration, len(body))
		return res, &StatusError{
			URL:          targetURL,
			StatusCode:   resp.StatusCode,
			Status:       resp.Status,
			DetectionSrc: res.DetectionSrc,
		}
	}

	metrics.RecordScrape(domain, strconv.Itoa(resp.StatusCode), "", res.Duration, len(body))
	return res, nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Hostname()
}
