// Package extract pulls typed features (text, media URLs, contacts,
// documents) out of a parsed page.
//
// Each feature kind owns an ordered list of strategies. ExtractSync tries
// them in order and stops at the first one that finds something, so order
// is the tie-break policy. ExtractAsync runs every strategy concurrently,
// waits for all of them, and then takes the first non-empty result in
// strategy order. The two modes are deliberately not equivalent: a later
// strategy that fails or panics is never observed in sync mode.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/FranksOps/harvest/internal/schedule"
	"golang.org/x/sync/errgroup"
)

// Downloader fetches the resources behind extracted URLs. It is best-effort:
// failures are logged by the implementation and never returned.
type Downloader interface {
	Download(ctx context.Context, kind Kind, urls []string)
}

type variant struct {
	strategies []Strategy
	// download marks kinds whose values are handed to the Downloader.
	download bool
}

var variants = map[Kind]variant{
	Text: {strategies: []Strategy{
		{Name: "visible-text", Run: visibleText},
		{Name: "readability", Run: readableText},
	}},
	Images: {download: true, strategies: []Strategy{
		{Name: "img-src", Run: imageSources},
		{Name: "srcset", Run: imageSrcsets},
	}},
	Links: {strategies: []Strategy{
		{Name: "anchor-href", Run: anchorLinks},
		{Name: "raw-href", Run: rawLinks},
	}},
	Video: {download: true, strategies: []Strategy{
		{Name: "video-elements", Run: videoElements},
		{Name: "og-video", Run: videoMeta},
	}},
	Email: {strategies: []Strategy{
		{Name: "text-regex", Run: emailsInText},
		{Name: "mailto", Run: mailtoLinks},
	}},
	Phone: {strategies: []Strategy{
		{Name: "text-regex", Run: phonesInText},
		{Name: "tel", Run: telLinks},
	}},
	Documents: {download: true, strategies: []Strategy{
		{Name: "anchor-ext", Run: documentLinks},
		{Name: "embedded", Run: embeddedDocuments},
	}},
}

// Options carries the collaborators shared by every extractor of a run.
type Options struct {
	Logger     *slog.Logger
	Downloader Downloader
}

// Extractor extracts one feature kind from one page.
type Extractor struct {
	kind       Kind
	page       *Page
	strategies []Strategy
	download   bool
	opts       Options
}

var errNoDocument = errors.New("extract: page has no parsed document")

// New builds the extractor registered for kind.
func New(kind Kind, page *Page, opts Options) (*Extractor, error) {
	v, ok := variants[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if page == nil || page.Doc == nil {
		return nil, errNoDocument
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Extractor{
		kind:       kind,
		page:       page,
		strategies: v.strategies,
		download:   v.download,
		opts:       opts,
	}, nil
}

func (e *Extractor) Kind() Kind { return e.kind }

// Extract dispatches to ExtractSync or ExtractAsync.
func (e *Extractor) Extract(ctx context.Context, mode schedule.Mode) ([]string, error) {
	if mode == schedule.Async {
		return e.ExtractAsync(ctx)
	}
	return e.ExtractSync(ctx)
}

// ExtractSync returns the deduplicated values of the first strategy that
// finds any. Strategies after a hit are not invoked.
func (e *Extractor) ExtractSync(ctx context.Context) ([]string, error) {
	results := make([]Result, 0, len(e.strategies))
	for _, s := range e.strategies {
		res := s.run(e.page)
		e.logFailure(s, res)
		results = append(results, res)
		if res.OK() {
			break
		}
	}
	return e.finish(ctx, results)
}

// ExtractAsync runs every strategy concurrently and, once all have
// returned, picks the first non-empty result in strategy order.
func (e *Extractor) ExtractAsync(ctx context.Context) ([]string, error) {
	results := make([]Result, len(e.strategies))

	var g errgroup.Group
	for i, s := range e.strategies {
		g.Go(func() error {
			results[i] = s.run(e.page)
			return nil
		})
	}
	_ = g.Wait()

	for i, s := range e.strategies {
		e.logFailure(s, results[i])
	}
	return e.finish(ctx, results)
}

func (e *Extractor) finish(ctx context.Context, results []Result) ([]string, error) {
	failed := 0
	for _, res := range results {
		if res.OK() {
			values := dedupe(res.Values)
			if e.download && e.opts.Downloader != nil && len(values) > 0 {
				e.opts.Downloader.Download(ctx, e.kind, values)
			}
			return values, nil
		}
		if res.Err != nil {
			failed++
		}
	}
	if failed == len(results) && failed > 0 {
		return nil, fmt.Errorf("%w: %s", ErrAllStrategiesFailed, e.kind)
	}
	return nil, nil
}

func (e *Extractor) logFailure(s Strategy, res Result) {
	if res.Err == nil {
		return
	}
	e.opts.Logger.Warn("extraction strategy failed",
		"kind", e.kind,
		"strategy", s.Name,
		"url", e.page.URL.String(),
		"err", res.Err,
	)
}
