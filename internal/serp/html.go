package serp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/FranksOps/harvest/pkg/ratelimit"
	"github.com/FranksOps/harvest/pkg/useragent"
	"github.com/gocolly/colly/v2"
)

// HTMLEngine describes how to read one engine's result page. Each element
// matching Result is one ranked hit; its link is the href of the first
// descendant matching Link, or of the element itself when Link is empty.
type HTMLEngine struct {
	Name   string
	URL    func(query string, limit int) string
	Result string
	Link   string
}

// HTMLEngines are the engines scraped without a browser.
var HTMLEngines = []HTMLEngine{
	{
		Name: "duckduckgo",
		URL: func(q string, _ int) string {
			return "https://html.duckduckgo.com/html/?q=" + url.QueryEscape(q)
		},
		Result: "div.result",
		Link:   "a.result__a",
	},
	{
		Name: "bing",
		URL: func(q string, n int) string {
			return fmt.Sprintf("https://www.bing.com/search?q=%s&count=%d", url.QueryEscape(q), n)
		},
		Result: "li.b_algo",
		Link:   "h2 a",
	},
	{
		Name: "mojeek",
		URL: func(q string, _ int) string {
			return "https://www.mojeek.com/search?q=" + url.QueryEscape(q)
		},
		Result: "ul.results-standard li",
		Link:   "a.ob",
	},
	{
		Name: "brave",
		URL: func(q string, _ int) string {
			return "https://search.brave.com/search?source=web&q=" + url.QueryEscape(q)
		},
		Result: `#results div.snippet[data-type="web"]`,
		Link:   "a",
	},
	{
		Name: "yahoo",
		URL: func(q string, n int) string {
			return fmt.Sprintf("https://search.yahoo.com/search?p=%s&n=%d", url.QueryEscape(q), n)
		},
		Result: "div.dd.algo",
		Link:   "a",
	},
	{
		Name: "ask",
		URL: func(q string, _ int) string {
			return "https://www.ask.com/web?q=" + url.QueryEscape(q)
		},
		Result: "div.PartialSearchResults-item",
		Link:   "a.result-link",
	},
}

// HTMLConfig configures an HTMLProvider.
type HTMLConfig struct {
	UserAgents *useragent.Pool
	Timeout    time.Duration
	// Limiter is shared by every HTML provider so concurrent engines do not
	// burst the network.
	Limiter   *ratelimit.Limiter
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// HTMLProvider scrapes a search engine's HTML result page with colly.
type HTMLProvider struct {
	engine HTMLEngine
	cfg    HTMLConfig
}

// NewHTML returns a provider for engine.
func NewHTML(engine HTMLEngine, cfg HTMLConfig) *HTMLProvider {
	if cfg.UserAgents == nil {
		cfg.UserAgents = useragent.NewPool(useragent.DesktopPool)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Transport == nil {
		cfg.Transport = http.DefaultTransport
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &HTMLProvider{engine: engine, cfg: cfg}
}

func (p *HTMLProvider) Name() string { return htmlPrefix + p.engine.Name }

// Search fetches one result page. A new collector is built per call so
// concurrent searches share no callbacks.
func (p *HTMLProvider) Search(ctx context.Context, query string, limit int) ([]string, error) {
	if err := p.cfg.Limiter.Wait(ctx); err != nil {
		return nil, err
	}

	c := colly.NewCollector(
		colly.UserAgent(p.cfg.UserAgents.Random()),
		colly.AllowURLRevisit(),
	)
	c.WithTransport(ctxTransport{ctx: ctx, base: p.cfg.Transport})
	c.SetRequestTimeout(p.cfg.Timeout)

	var (
		links     []string
		scrapeErr error
	)
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
	})
	c.OnHTML(p.engine.Result, func(e *colly.HTMLElement) {
		href := e.Attr("href")
		if p.engine.Link != "" {
			href = e.ChildAttr(p.engine.Link, "href")
		}
		if href == "" {
			return
		}
		links = append(links, e.Request.AbsoluteURL(href))
	})
	c.OnError(func(r *colly.Response, err error) {
		scrapeErr = fmt.Errorf("%s: status %d: %w", p.Name(), r.StatusCode, err)
	})

	if err := c.Visit(p.engine.URL(query, limit)); err != nil && scrapeErr == nil {
		scrapeErr = fmt.Errorf("%s: %w", p.Name(), err)
	}
	if scrapeErr != nil {
		return nil, scrapeErr
	}

	p.cfg.Logger.Debug("html results parsed", "provider", p.Name(), "raw", len(links))
	return Clean(links, limit), nil
}

// ctxTransport ties every request colly issues to the caller's context as
// well as the request's own, so either one cancels it.
type ctxTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t ctxTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.ctx.Err(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(req.Context())
	stop := context.AfterFunc(t.ctx, cancel)
	release := func() {
		stop()
		cancel()
	}

	resp, err := t.base.RoundTrip(req.WithContext(ctx))
	if err != nil {
		release()
		return nil, err
	}
	resp.Body = &releaseBody{ReadCloser: resp.Body, release: release}
	return resp, nil
}

type releaseBody struct {
	io.ReadCloser
	release func()
}

func (b *releaseBody) Close() error {
	err := b.ReadCloser.Close()
	b.release()
	return err
}
