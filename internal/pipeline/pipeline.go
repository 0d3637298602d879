// Package pipeline runs one harvest: search every selected provider,
// persist the returned links, scrape each stored link and persist the
// extracted features against it.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/FranksOps/harvest/internal/extract"
	"github.com/FranksOps/harvest/internal/metrics"
	"github.com/FranksOps/harvest/internal/report"
	"github.com/FranksOps/harvest/internal/schedule"
	"github.com/FranksOps/harvest/internal/scraper"
	"github.com/FranksOps/harvest/internal/serp"
	"github.com/FranksOps/harvest/internal/storage"
	"github.com/FranksOps/harvest/internal/storage/ndjson"
	"github.com/google/uuid"
)

// NoDetails is the error detail stored for a page that was fetched but
// yielded no feature values.
const NoDetails = "no details extracted or scraping failed"

// Searcher fans a query out to providers. *serp.Aggregator implements it.
type Searcher interface {
	Aggregate(ctx context.Context, query string, limit int, providers []serp.Provider) map[string][]string
}

// Scraper scrapes one page. *scraper.PageScraper implements it.
type Scraper interface {
	ScrapeOne(ctx context.Context, url string, kinds []extract.Kind, mode schedule.Mode) scraper.PageRecord
}

// Config wires a Pipeline. Archive is optional.
type Config struct {
	Store    storage.LinkStore
	Searcher Searcher
	Scraper  Scraper
	Archive  *ndjson.Archive
	Logger   *slog.Logger
}

// Pipeline connects search, persistence and extraction.
type Pipeline struct {
	store    storage.LinkStore
	searcher Searcher
	scraper  Scraper
	archive  *ndjson.Archive
	logger   *slog.Logger
}

// New validates cfg and returns a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	switch {
	case cfg.Store == nil:
		return nil, errors.New("pipeline: store is nil")
	case cfg.Searcher == nil:
		return nil, errors.New("pipeline: searcher is nil")
	case cfg.Scraper == nil:
		return nil, errors.New("pipeline: scraper is nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{
		store:    cfg.Store,
		searcher: cfg.Searcher,
		scraper:  cfg.Scraper,
		archive:  cfg.Archive,
		logger:   cfg.Logger,
	}, nil
}

// Request is the input of one run.
type Request struct {
	Query     string
	Cap       int
	Providers []serp.Provider
	Kinds     []extract.Kind
	Mode      schedule.Mode
}

// Validate reports the first problem with r.
func (r Request) Validate() error {
	switch {
	case strings.TrimSpace(r.Query) == "":
		return errors.New("pipeline: empty query")
	case r.Cap <= 0:
		return fmt.Errorf("pipeline: result cap must be positive, got %d", r.Cap)
	case len(r.Providers) == 0:
		return errors.New("pipeline: no providers selected")
	case len(r.Kinds) == 0:
		return errors.New("pipeline: no features selected")
	}
	return nil
}

// Target is a stored link to scrape.
type Target struct {
	ID  storage.LinkID
	URL string
}

// Run searches, persists and extracts. The only error is an invalid
// request; everything after that degrades per provider, page or row.
func (p *Pipeline) Run(ctx context.Context, req Request) (*report.Summary, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	sum := report.NewSummary(uuid.NewString(), req.Query, req.Mode.String())
	logger := p.logger.With("run_id", sum.RunID)
	logger.Info("run started", "query", req.Query, "cap", req.Cap, "providers", len(req.Providers), "mode", req.Mode)

	results := p.searcher.Aggregate(ctx, req.Query, req.Cap, req.Providers)
	for name, urls := range results {
		sum.Providers[name] = len(urls)
	}

	targets := p.persist(ctx, sum, req.Query, results)
	sum.LinksPersisted = len(targets)

	p.extract(ctx, sum, targets, req.Kinds, req.Mode)
	sum.Finish()

	logger.Info("run finished",
		"links", sum.LinksPersisted,
		"pages", sum.PagesScraped,
		"failed", sum.PagesFailed,
		"details", sum.TotalDetails(),
		"duration", sum.Duration,
	)
	return sum, nil
}

// Persist stores every (query, provider, url) triple and returns the
// distinct stored links in provider-name order, then rank order. A URL
// already present keeps its original query and provider. Rows the store
// rejects are logged and skipped.
func (p *Pipeline) Persist(ctx context.Context, query string, results map[string][]string) []Target {
	return p.persist(ctx, report.NewSummary("", query, ""), query, results)
}

func (p *Pipeline) persist(ctx context.Context, sum *report.Summary, query string, results map[string][]string) []Target {
	providers := make([]string, 0, len(results))
	for name := range results {
		providers = append(providers, name)
	}
	sort.Strings(providers)

	var targets []Target
	seen := make(map[storage.LinkID]bool)
	for _, provider := range providers {
		for _, u := range results[provider] {
			id, err := p.store.InsertLink(ctx, query, provider, u)
			if err != nil {
				p.logger.Warn("link not persisted", "provider", provider, "url", u, "err", err)
				metrics.PersistFailuresTotal.WithLabelValues("search_results").Inc()
				sum.AddPersistFailure()
				continue
			}
			if seen[id] {
				continue
			}
			seen[id] = true
			targets = append(targets, Target{ID: id, URL: u})
		}
	}
	return targets
}

// Extract scrapes every target and persists its features, one page after
// another in Sync mode or all at once in Async mode. It returns once every
// page has been handled.
func (p *Pipeline) Extract(ctx context.Context, targets []Target, kinds []extract.Kind, mode schedule.Mode) *report.Summary {
	sum := report.NewSummary(uuid.NewString(), "", mode.String())
	p.extract(ctx, sum, targets, kinds, mode)
	sum.Finish()
	return sum
}

func (p *Pipeline) extract(ctx context.Context, sum *report.Summary, targets []Target, kinds []extract.Kind, mode schedule.Mode) {
	schedule.Each(ctx, mode, len(targets), func(ctx context.Context, i int) {
		p.process(ctx, sum, targets[i], kinds, mode)
	})
}

func (p *Pipeline) process(ctx context.Context, sum *report.Summary, t Target, kinds []extract.Kind, mode schedule.Mode) {
	rec := p.scraper.ScrapeOne(ctx, t.URL, kinds, mode)
	sum.AddPage(rec.Failed())

	switch {
	case rec.Failed():
		p.record(ctx, sum, t, extract.Error, rec.Err)
	default:
		found := 0
		for _, k := range kinds {
			values := rec.Features[k]
			if len(values) == 0 {
				continue
			}
			found++
			value, err := encode(k, values)
			if err != nil {
				p.logger.Warn("feature not encodable", "link_id", t.ID, "kind", k, "err", err)
				continue
			}
			p.record(ctx, sum, t, k, value)
		}
		if found == 0 {
			p.record(ctx, sum, t, extract.Error, NoDetails)
		}
	}

	p.archiveRecord(ctx, sum, t, rec)
}

func (p *Pipeline) record(ctx context.Context, sum *report.Summary, t Target, kind extract.Kind, value string) {
	if err := p.store.RecordDetail(ctx, t.ID, string(kind), value); err != nil {
		p.logger.Warn("detail not persisted", "link_id", t.ID, "url", t.URL, "kind", kind, "err", err)
		metrics.PersistFailuresTotal.WithLabelValues("link_details").Inc()
		sum.AddPersistFailure()
		return
	}
	metrics.DetailsPersistedTotal.WithLabelValues(string(kind)).Inc()
	sum.AddDetail(string(kind))
}

func (p *Pipeline) archiveRecord(ctx context.Context, sum *report.Summary, t Target, rec scraper.PageRecord) {
	if p.archive == nil {
		return
	}
	entry := ndjson.Entry{
		RunID:     sum.RunID,
		LinkID:    int64(t.ID),
		Query:     sum.Query,
		URL:       t.URL,
		Error:     rec.Err,
		ScrapedAt: time.Now().UTC(),
	}
	if len(rec.Features) > 0 {
		entry.Features = make(map[string][]string, len(rec.Features))
		for k, v := range rec.Features {
			entry.Features[string(k)] = v
		}
	}
	if err := p.archive.Append(ctx, entry); err != nil {
		p.logger.Warn("page record not archived", "link_id", t.ID, "err", err)
	}
}

// encode turns extracted values into a detail value: text is stored as
// is, every other kind as a JSON array.
func encode(kind extract.Kind, values []string) (string, error) {
	if kind == extract.Text {
		return strings.Join(values, "\n"), nil
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
