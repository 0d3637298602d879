package serp

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
)

// BrowserEngines are the engines rendered in headless Chrome before their
// result links are read.
var BrowserEngines = []HTMLEngine{
	{
		Name: "google",
		URL: func(q string, n int) string {
			return fmt.Sprintf("https://www.google.com/search?q=%s&num=%d", url.QueryEscape(q), n)
		},
		Result: "div.g",
		Link:   "a",
	},
	{
		Name: "bing",
		URL: func(q string, n int) string {
			return fmt.Sprintf("https://www.bing.com/search?q=%s&count=%d", url.QueryEscape(q), n)
		},
		Result: "li.b_algo",
		Link:   "a",
	},
	{
		Name: "baidu",
		URL: func(q string, _ int) string {
			return "https://www.baidu.com/s?wd=" + url.QueryEscape(q)
		},
		Result: "h3.t",
		Link:   "a",
	},
	{
		Name: "duckduckgo",
		URL: func(q string, _ int) string {
			return "https://duckduckgo.com/?q=" + url.QueryEscape(q)
		},
		Result: "a.result__a",
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
		Name: "yandex",
		URL: func(q string, _ int) string {
			return "https://yandex.com/search/?text=" + url.QueryEscape(q)
		},
		Result: "a.organic__url",
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

// BrowserConfig configures a BrowserProvider.
type BrowserConfig struct {
	UserAgent string
	// Settle is how long to wait after the body is visible for client-side
	// rendering to finish.
	Settle time.Duration
	// ExecPath overrides the Chrome binary chromedp looks up.
	ExecPath string
	Logger   *slog.Logger
}

// BrowserProvider renders a result page in headless Chrome.
type BrowserProvider struct {
	engine HTMLEngine
	opts   []chromedp.ExecAllocatorOption
	settle time.Duration
	logger *slog.Logger
}

// NewBrowser returns a provider for engine. Chrome is only started on Search.
func NewBrowser(engine HTMLEngine, cfg BrowserConfig) *BrowserProvider {
	if cfg.Settle == 0 {
		cfg.Settle = 2 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Headless,
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("exclude-switches", "enable-automation"),
		chromedp.Flag("disable-extensions", ""),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return &BrowserProvider{engine: engine, opts: opts, settle: cfg.Settle, logger: cfg.Logger}
}

func (p *BrowserProvider) Name() string { return browserPrefix + p.engine.Name }

// Search starts a browser, loads the result page and parses the rendered DOM.
func (p *BrowserProvider) Search(ctx context.Context, query string, limit int) ([]string, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, p.opts...)
	defer allocCancel()
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	searchURL := p.engine.URL(query, limit)
	var (
		location string
		dom      string
	)
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(searchURL),
		chromedp.WaitVisible("body"),
		chromedp.Sleep(p.settle),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &dom),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.Name(), err)
	}

	links, err := parseResults(p.engine, location, dom)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.Name(), err)
	}
	p.logger.Debug("browser results parsed", "provider", p.Name(), "url", location, "raw", len(links))
	return Clean(links, limit), nil
}

// parseResults applies engine's selectors to a rendered page, resolving
// relative hrefs against pageURL.
func parseResults(engine HTMLEngine, pageURL, dom string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(dom))
	if err != nil {
		return nil, fmt.Errorf("parsing rendered page: %w", err)
	}
	base, _ := url.Parse(pageURL)

	var links []string
	doc.Find(engine.Result).Each(func(_ int, s *goquery.Selection) {
		if engine.Link != "" {
			s = s.Find(engine.Link).First()
		}
		href, ok := s.Attr("href")
		if !ok || href == "" {
			return
		}
		if base != nil {
			if ref, err := base.Parse(href); err == nil {
				href = ref.String()
			}
		}
		links = append(links, href)
	})
	return links, nil
}
