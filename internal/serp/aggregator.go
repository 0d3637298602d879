package serp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/FranksOps/harvest/internal/metrics"
	"github.com/FranksOps/harvest/pkg/ratelimit"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultRetries = 3
	DefaultBackoff = time.Second
)

// Aggregator queries a set of providers concurrently and merges their
// answers by provider tag. A failing provider never affects its siblings.
type Aggregator struct {
	// Retries is the number of attempts per provider. Zero means DefaultRetries.
	Retries int
	// Backoff is the fixed pause between attempts. Zero means DefaultBackoff;
	// a negative value disables the pause.
	Backoff time.Duration
	// Timeout bounds a single attempt. Zero means no per-attempt deadline.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Aggregate returns one entry per provider, keyed by Name. Providers that
// fail every attempt, or find nothing, map to an empty non-nil slice.
// All providers are awaited; there is no early exit.
func (a *Aggregator) Aggregate(ctx context.Context, query string, limit int, providers []Provider) map[string][]string {
	results := make([][]string, len(providers))

	var g errgroup.Group
	for i, p := range providers {
		g.Go(func() error {
			results[i] = a.searchWithRetry(ctx, p, query, limit)
			return nil
		})
	}
	_ = g.Wait()

	merged := make(map[string][]string, len(providers))
	for i, p := range providers {
		name := p.Name()
		// Two providers sharing a tag keep the first non-empty answer.
		if prev, ok := merged[name]; ok && len(prev) > 0 {
			continue
		}
		merged[name] = results[i]
	}
	return merged
}

func (a *Aggregator) searchWithRetry(ctx context.Context, p Provider, query string, limit int) []string {
	logger := a.logger().With("provider", p.Name(), "query", query)
	attempts := a.Retries
	if attempts <= 0 {
		attempts = DefaultRetries
	}
	backoff := a.Backoff
	if backoff == 0 {
		backoff = DefaultBackoff
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		urls, err := a.attempt(ctx, p, query, limit)
		if err == nil {
			if len(urls) > limit && limit > 0 {
				urls = urls[:limit]
			}
			outcome := "ok"
			if len(urls) == 0 {
				outcome = "empty"
			}
			metrics.ProviderSearchesTotal.WithLabelValues(p.Name(), outcome).Inc()
			metrics.ProviderResultsTotal.WithLabelValues(p.Name()).Add(float64(len(urls)))
			if urls == nil {
				urls = []string{}
			}
			return urls
		}

		logger.Warn("provider search failed", "attempt", attempt, "of", attempts, "err", err)
		if attempt < attempts && backoff > 0 {
			if err := ratelimit.Pause(ctx, backoff); err != nil {
				break
			}
		}
	}

	metrics.ProviderSearchesTotal.WithLabelValues(p.Name(), "error").Inc()
	logger.Error("provider gave up, recording empty result", "attempts", attempts)
	return []string{}
}

func (a *Aggregator) attempt(ctx context.Context, p Provider, query string, limit int) (urls []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("serp: provider %s panicked: %v", p.Name(), r)
		}
	}()
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}
	return p.Search(ctx, query, limit)
}

func (a *Aggregator) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}
