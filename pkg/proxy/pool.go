// Package proxy rotates outgoing page fetches across a set of proxy
// endpoints and benches endpoints that keep failing.
package proxy

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

type endpoint struct {
	url          *url.URL
	failures     int
	benchedUntil time.Time
}

// Config sets the health policy.
type Config struct {
	// MaxFailures is the number of consecutive failures that benches an
	// endpoint. Defaults to 3.
	MaxFailures int
	// Cooldown is how long a benched endpoint sits out. Defaults to 5m.
	Cooldown time.Duration
}

// Pool hands out endpoints round-robin. It is safe for concurrent use.
type Pool struct {
	mu          sync.Mutex
	endpoints   []*endpoint
	next        int
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time
}

// NewPool builds a pool from raw proxy URLs. A URL without a scheme is
// taken as http.
func NewPool(cfg Config, rawURLs ...string) (*Pool, error) {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	p := &Pool{maxFailures: cfg.MaxFailures, cooldown: cfg.Cooldown, now: time.Now}
	for _, raw := range rawURLs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("proxy: invalid url %q", raw)
		}
		p.endpoints = append(p.endpoints, &endpoint{url: u})
	}
	return p, nil
}

// Load reads one proxy URL per line from path, skipping blanks and
// #-comments, and appends extra.
func Load(path string, cfg Config, extra ...string) (*Pool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("proxy: %w", err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("proxy: reading %s: %w", path, err)
	}
	return NewPool(cfg, append(urls, extra...)...)
}

// Len is the number of configured endpoints, benched or not.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints)
}

// Next returns the next endpoint that is not benched, or nil when the pool
// is empty or every endpoint is cooling down.
func (p *Pool) Next() *url.URL {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for range p.endpoints {
		e := p.endpoints[p.next]
		p.next = (p.next + 1) % len(p.endpoints)
		if now.Before(e.benchedUntil) {
			continue
		}
		return e.url
	}
	return nil
}

// Report records the outcome of a request sent through u. A success
// clears the failure count; MaxFailures consecutive failures bench u for
// Cooldown.
func (p *Pool) Report(u *url.URL, err error) {
	if p == nil || u == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range p.endpoints {
		if e.url.String() != u.String() {
			continue
		}
		if err == nil {
			e.failures = 0
			return
		}
		e.failures++
		if e.failures >= p.maxFailures {
			e.failures = 0
			e.benchedUntil = p.now().Add(p.cooldown)
		}
		return
	}
}

type ctxKey struct{}

// WithURL routes requests made with the returned context through u.
func WithURL(ctx context.Context, u *url.URL) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// FromRequest is an http.Transport Proxy func: the URL set with WithURL,
// else the environment's proxy settings.
func FromRequest(req *http.Request) (*url.URL, error) {
	if u, ok := req.Context().Value(ctxKey{}).(*url.URL); ok && u != nil {
		return u, nil
	}
	return http.ProxyFromEnvironment(req)
}
