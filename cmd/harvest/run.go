package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/FranksOps/harvest/internal/download"
	"github.com/FranksOps/harvest/internal/fingerprint"
	"github.com/FranksOps/harvest/internal/metrics"
	"github.com/FranksOps/harvest/internal/pipeline"
	"github.com/FranksOps/harvest/internal/report"
	"github.com/FranksOps/harvest/internal/scraper"
	"github.com/FranksOps/harvest/internal/serp"
	"github.com/FranksOps/harvest/internal/storage/ndjson"
	"github.com/FranksOps/harvest/pkg/useragent"
	"github.com/spf13/cobra"
)

type runOptions struct {
	query    string
	noPrompt bool
	format   string
}

func newRunCmd(a *app) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Search, store result links and extract page features",
		Long: `Run asks for the query, results per provider, providers, features and
mode unless they are given as flags, then searches every selected provider,
stores the links and extracts the selected features from each page.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.query, "query", "q", "", "search query")
	f.Int("cap", 0, "results per provider")
	f.String("providers", "", `comma-separated engines or provider tags, or "all"`)
	f.String("features", "", `comma-separated features (text, images, link, video, email, phone, document) or "all"`)
	f.String("mode", "", "sync or async")
	f.Bool("headless", false, "enable browser-* providers (needs Chrome)")
	f.Bool("download", false, "download found images, documents and videos")
	f.Int("metrics", 0, "serve Prometheus metrics on this port")
	f.StringSlice("proxy", nil, "proxy URL for page fetches, repeatable")
	f.BoolVar(&opts.noPrompt, "no-prompt", false, "never prompt, use flags and configuration only")
	f.StringVar(&opts.format, "format", "text", "summary format: text or json")
	return cmd
}

// promptMissing fills in whatever the flags left open.
func (a *app) promptMissing(cmd *cobra.Command, opts *runOptions) error {
	p := newPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
	changed := cmd.Flags().Changed
	var err error

	if !changed("query") && opts.query == "" {
		if opts.query, err = p.ask("Query", ""); err != nil {
			return err
		}
	}
	if !changed("cap") {
		if a.cfg.Search.Cap, err = p.askInt("Results per provider", a.cfg.Search.Cap); err != nil {
			return err
		}
	}
	if !changed("providers") {
		if a.cfg.Search.Providers, err = p.ask("Providers (comma separated or all)", a.cfg.Search.Providers); err != nil {
			return err
		}
	}
	if !changed("features") {
		if a.cfg.Extract.Features, err = p.ask("Features (comma separated or all)", a.cfg.Extract.Features); err != nil {
			return err
		}
	}
	if !changed("mode") {
		if a.cfg.Extract.Mode, err = p.ask("Mode (sync/async)", a.cfg.Extract.Mode); err != nil {
			return err
		}
	}
	return a.cfg.Validate()
}

func (a *app) run(cmd *cobra.Command, opts runOptions) error {
	ctx := cmd.Context()
	if !opts.noPrompt {
		if err := a.promptMissing(cmd, &opts); err != nil {
			return err
		}
	}
	if opts.query == "" {
		return errors.New("a query is required")
	}
	kinds, err := a.cfg.Kinds()
	if err != nil {
		return err
	}
	mode, err := a.cfg.Mode()
	if err != nil {
		return err
	}

	if a.cfg.Metrics.Port > 0 {
		srv, err := metrics.Start(a.cfg.Metrics.Port, a.logger)
		if err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Stop(stopCtx)
		}()
	}

	store, err := openStore(ctx, a.cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	registry, limiter, err := a.newRegistry()
	if err != nil {
		return err
	}
	defer limiter.Stop()
	providers, err := registry.Select(a.cfg.Search.Providers)
	if err != nil {
		return err
	}

	proxies, err := a.proxyPool()
	if err != nil {
		return err
	}
	if n := proxies.Len(); n > 0 {
		a.logger.Info("proxy rotation enabled", "proxies", n)
	}

	profile, _ := fingerprint.ParseProfile(a.cfg.Scrape.Fingerprint)
	fetcher, err := scraper.NewFetcher(scraper.FetchConfig{
		Timeout:      a.cfg.Scrape.Timeout,
		UAPool:       useragent.Fixed(a.cfg.Scrape.UserAgent),
		Fingerprint:  profile,
		MaxBodyBytes: a.cfg.Scrape.MaxBodyBytes,
		Proxies:      proxies,
	})
	if err != nil {
		return err
	}

	scrapeCfg := scraper.Config{Fetcher: fetcher, Delay: a.cfg.Scrape.Delay, Logger: a.logger}
	if a.cfg.Download.Enabled {
		dl, err := download.NewManager(download.Config{
			Dir:     a.cfg.Download.Dir,
			YTDLP:   a.cfg.Download.YTDLP,
			Timeout: a.cfg.Download.Timeout,
			Client:  fetcher.Client(),
			Logger:  a.logger,
		})
		if err != nil {
			return err
		}
		scrapeCfg.Downloader = dl
	}

	var archive *ndjson.Archive
	if a.cfg.Archive.Path != "" {
		if archive, err = ndjson.Open(a.cfg.Archive.Path); err != nil {
			return err
		}
		defer archive.Close()
	}

	p, err := pipeline.New(pipeline.Config{
		Store: store,
		Searcher: &serp.Aggregator{
			Retries: a.cfg.Search.Retries,
			Backoff: a.cfg.Search.Backoff,
			Timeout: a.cfg.Search.Timeout,
			Logger:  a.logger,
		},
		Scraper: scraper.NewPageScraper(scrapeCfg),
		Archive: archive,
		Logger:  a.logger,
	})
	if err != nil {
		return err
	}

	sum, err := p.Run(ctx, pipeline.Request{
		Query:     opts.query,
		Cap:       a.cfg.Search.Cap,
		Providers: providers,
		Kinds:     kinds,
		Mode:      mode,
	})
	if err != nil {
		return err
	}

	switch opts.format {
	case "json":
		return report.WriteJSON(cmd.OutOrStdout(), sum)
	case "text", "":
		return report.WriteText(cmd.OutOrStdout(), sum)
	default:
		return fmt.Errorf("unknown summary format %q", opts.format)
	}
}
