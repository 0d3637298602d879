package scraper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/FranksOps/harvest/internal/extract"
	"github.com/FranksOps/harvest/internal/schedule"
	"github.com/FranksOps/harvest/pkg/ratelimit"
)

// PageFetcher retrieves a page body. *Fetcher is the production
// implementation.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*Response, error)
}

// PageRecord is the outcome of scraping one page. Either Err is set and
// Features is nil, or Features holds one entry per kind whose extractor
// ran to completion (possibly with no values).
type PageRecord struct {
	URL      string
	Features map[extract.Kind][]string
	Err      string
}

// Failed reports whether the page could not be fetched or parsed.
func (r PageRecord) Failed() bool { return r.Err != "" }

// Config configures a PageScraper.
type Config struct {
	Fetcher PageFetcher
	// Delay is slept after every page. Only the scraping goroutine waits.
	Delay      time.Duration
	Downloader extract.Downloader
	Logger     *slog.Logger
}

// PageScraper fetches a page and runs the requested extractors on it.
type PageScraper struct {
	fetcher PageFetcher
	delay   time.Duration
	opts    extract.Options
	logger  *slog.Logger
}

// NewPageScraper creates a PageScraper. A nil logger uses slog.Default().
func NewPageScraper(cfg Config) *PageScraper {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &PageScraper{
		fetcher: cfg.Fetcher,
		delay:   cfg.Delay,
		opts:    extract.Options{Logger: cfg.Logger, Downloader: cfg.Downloader},
		logger:  cfg.Logger,
	}
}

// ScrapeOne fetches url and extracts kinds from it. Extractors run one
// after another in Sync mode and concurrently in Async mode, each using the
// matching extraction mode. A kind whose every strategy failed is left out
// of the record.
func (s *PageScraper) ScrapeOne(ctx context.Context, url string, kinds []extract.Kind, mode schedule.Mode) PageRecord {
	rec := s.scrape(ctx, url, kinds, mode)
	if err := ratelimit.Pause(ctx, s.delay); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Debug("post-scrape delay interrupted", "url", url, "err", err)
	}
	return rec
}

func (s *PageScraper) scrape(ctx context.Context, url string, kinds []extract.Kind, mode schedule.Mode) PageRecord {
	resp, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		s.logger.Warn("page fetch failed", "url", url, "err", err)
		return PageRecord{URL: url, Err: err.Error()}
	}

	page, err := extract.NewPage(url, resp.Body)
	if err != nil {
		s.logger.Warn("page parse failed", "url", url, "err", err)
		return PageRecord{URL: url, Err: err.Error()}
	}

	type outcome struct {
		values []string
		err    error
	}
	outcomes := make([]outcome, len(kinds))

	schedule.Each(ctx, mode, len(kinds), func(ctx context.Context, i int) {
		e, err := extract.New(kinds[i], page, s.opts)
		if err != nil {
			outcomes[i].err = err
			return
		}
		outcomes[i].values, outcomes[i].err = e.Extract(ctx, mode)
	})

	rec := PageRecord{URL: url, Features: make(map[extract.Kind][]string, len(kinds))}
	for i, k := range kinds {
		if outcomes[i].err != nil {
			s.logger.Warn("feature extraction failed", "url", url, "kind", k, "err", outcomes[i].err)
			continue
		}
		rec.Features[k] = outcomes[i].values
	}
	return rec
}
