// Package serp queries search engines for result URLs and aggregates the
// answers of many providers.
package serp

import (
	"context"
	"errors"
)

// ErrUnknownProvider is returned when a provider selection names nothing
// registered.
var ErrUnknownProvider = errors.New("serp: unknown provider")

// ErrProviderDisabled is returned when a selected engine is known but every
// provider for it is disabled by configuration.
var ErrProviderDisabled = errors.New("serp: provider disabled by configuration")

const (
	htmlPrefix    = "html-"
	serpAPIPrefix = "serpapi-"
	browserPrefix = "browser-"
)

// Provider is one search backend. Name is the provider tag recorded with
// every link it finds, in the form "<backend>-<engine>". Search returns at
// most limit result URLs in rank order. Errors are folded into an empty
// result by the Aggregator.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]string, error)
}

// Func adapts a plain function to the Provider interface.
type Func struct {
	Tag string
	Fn  func(ctx context.Context, query string, limit int) ([]string, error)
}

func (f Func) Name() string { return f.Tag }

func (f Func) Search(ctx context.Context, query string, limit int) ([]string, error) {
	return f.Fn(ctx, query, limit)
}
