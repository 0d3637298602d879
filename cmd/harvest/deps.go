package main

import (
	"context"
	"fmt"

	"github.com/FranksOps/harvest/internal/config"
	"github.com/FranksOps/harvest/internal/serp"
	"github.com/FranksOps/harvest/internal/storage"
	"github.com/FranksOps/harvest/internal/storage/boltdb"
	"github.com/FranksOps/harvest/internal/storage/postgres"
	"github.com/FranksOps/harvest/internal/storage/sqlite"
	"github.com/FranksOps/harvest/pkg/httpclient"
	"github.com/FranksOps/harvest/pkg/proxy"
	"github.com/FranksOps/harvest/pkg/ratelimit"
	"github.com/FranksOps/harvest/pkg/useragent"
)

func openStore(ctx context.Context, cfg config.Storage) (storage.LinkStore, error) {
	var (
		store storage.LinkStore
		err   error
	)
	switch cfg.Driver {
	case "sqlite":
		store, err = sqlite.New(cfg.DSN)
	case "postgres":
		store, err = postgres.New(ctx, cfg.DSN)
	case "bolt":
		store, err = boltdb.New(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Driver, err)
	}
	return store, nil
}

// newRegistry builds the provider registry. The returned limiter paces
// the html-* family and must be stopped by the caller.
func (a *app) newRegistry() (*serp.Registry, *ratelimit.Limiter, error) {
	client, err := httpclient.New(httpclient.Config{Timeout: a.cfg.Search.Timeout})
	if err != nil {
		return nil, nil, fmt.Errorf("search client: %w", err)
	}
	limiter := ratelimit.NewLimiter(a.cfg.Search.RPS, 0.2)
	reg := serp.NewRegistry(serp.RegistryConfig{
		SerpAPIKey: a.cfg.Search.SerpAPIKey,
		Headless:   a.cfg.Search.Headless,
		UserAgents: useragent.NewPool(useragent.DesktopPool),
		Timeout:    a.cfg.Search.Timeout,
		Limiter:    limiter,
		Client:     client,
		Logger:     a.logger,
	})
	return reg, limiter, nil
}

// proxyPool returns nil when no proxies are configured.
func (a *app) proxyPool() (*proxy.Pool, error) {
	if a.cfg.Scrape.ProxiesFile != "" {
		return proxy.Load(a.cfg.Scrape.ProxiesFile, proxy.Config{}, a.cfg.Scrape.Proxies...)
	}
	if len(a.cfg.Scrape.Proxies) == 0 {
		return nil, nil
	}
	return proxy.NewPool(proxy.Config{}, a.cfg.Scrape.Proxies...)
}
