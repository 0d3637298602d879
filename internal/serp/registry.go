package serp

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/FranksOps/harvest/pkg/httpclient"
	"github.com/FranksOps/harvest/pkg/ratelimit"
	"github.com/FranksOps/harvest/pkg/useragent"
)

// RegistryConfig holds what the built-in provider families need.
type RegistryConfig struct {
	SerpAPIKey string
	// Headless enables the browser-* family in "all" and engine selections.
	Headless   bool
	UserAgents *useragent.Pool
	Timeout    time.Duration
	Limiter    *ratelimit.Limiter
	Client     *httpclient.Client
	Logger     *slog.Logger
}

type entry struct {
	provider Provider
	engine   string
	// enabled entries take part in "all" and bare engine selections.
	enabled bool
}

// Registry maps provider tags to providers, keeping registration order.
type Registry struct {
	entries []entry
	logger  *slog.Logger
}

// NewRegistry registers the html-*, serpapi-* and browser-* families.
// serpapi-* is enabled only with a key and browser-* only when Headless.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	r := &Registry{logger: cfg.Logger}

	for _, e := range HTMLEngines {
		r.add(NewHTML(e, HTMLConfig{
			UserAgents: cfg.UserAgents,
			Timeout:    cfg.Timeout,
			Limiter:    cfg.Limiter,
			Logger:     cfg.Logger,
		}), e.Name, true)
	}
	for _, name := range SerpAPIEngines {
		p, err := NewSerpAPI(SerpAPIConfig{Engine: name, APIKey: cfg.SerpAPIKey, Client: cfg.Client})
		if err != nil {
			cfg.Logger.Error("skipping serpapi engine", "engine", name, "err", err)
			continue
		}
		r.add(p, name, cfg.SerpAPIKey != "")
	}
	ua := useragent.Desktop
	if cfg.UserAgents != nil && cfg.UserAgents.Len() > 0 {
		ua = cfg.UserAgents.Next()
	}
	for _, e := range BrowserEngines {
		r.add(NewBrowser(e, BrowserConfig{UserAgent: ua, Logger: cfg.Logger}), e.Name, cfg.Headless)
	}
	return r
}

// Register adds p as an enabled provider for engine, replacing any
// provider with the same tag.
func (r *Registry) Register(p Provider, engine string) {
	r.add(p, engine, true)
}

func (r *Registry) add(p Provider, engine string, enabled bool) {
	e := entry{provider: p, engine: engine, enabled: enabled}
	for i := range r.entries {
		if r.entries[i].provider.Name() == p.Name() {
			r.entries[i] = e
			return
		}
	}
	r.entries = append(r.entries, e)
}

// Tags lists every registered tag with whether it is enabled.
func (r *Registry) Tags() map[string]bool {
	out := make(map[string]bool, len(r.entries))
	for _, e := range r.entries {
		out[e.provider.Name()] = e.enabled
	}
	return out
}

// Names returns the registered tags in registration order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.provider.Name())
	}
	return out
}

// Select resolves a comma-separated selection. "all" picks every enabled
// provider, a bare engine name picks the enabled providers for that
// engine and a full tag picks that provider even if disabled. An engine
// whose providers are all disabled fails with ErrProviderDisabled, and
// unknown names fail with ErrUnknownProvider.
func (r *Registry) Select(selection string) ([]Provider, error) {
	var (
		out  []Provider
		seen = map[string]bool{}
	)
	pick := func(e entry) {
		name := e.provider.Name()
		if !seen[name] {
			seen[name] = true
			out = append(out, e.provider)
		}
	}

	for _, tok := range strings.Split(selection, ",") {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok == "" {
			continue
		}
		matched := false
		for _, e := range r.entries {
			switch {
			case tok == "all" && e.enabled,
				tok == e.engine && e.enabled,
				tok == e.provider.Name():
				if !e.enabled {
					r.logger.Warn("selected provider is not enabled by configuration", "provider", tok)
				}
				pick(e)
				matched = true
			}
		}
		if !matched {
			if hints := r.enableHints(tok); len(hints) > 0 {
				return nil, fmt.Errorf("%w: %q: enable it with %s", ErrProviderDisabled, tok, strings.Join(hints, " or "))
			}
			return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, tok)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty selection", ErrUnknownProvider)
	}
	return out, nil
}

// enableHints names the settings that would enable the disabled providers
// registered for engine.
func (r *Registry) enableHints(engine string) []string {
	var hints []string
	for _, e := range r.entries {
		if e.engine != engine || e.enabled {
			continue
		}
		var h string
		switch {
		case strings.HasPrefix(e.provider.Name(), serpAPIPrefix):
			h = "search.serpapi_key (HARVEST_SEARCH_SERPAPI_KEY)"
		case strings.HasPrefix(e.provider.Name(), browserPrefix):
			h = "search.headless (--headless)"
		default:
			h = "the " + e.provider.Name() + " provider configuration"
		}
		if !slices.Contains(hints, h) {
			hints = append(hints, h)
		}
	}
	return hints
}

// Engines lists the distinct engine names across families, sorted.
func (r *Registry) Engines() []string {
	var out []string
	for _, e := range r.entries {
		if !slices.Contains(out, e.engine) {
			out = append(out, e.engine)
		}
	}
	slices.Sort(out)
	return out
}
