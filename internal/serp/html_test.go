package serp

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"testing"
)

const ddgPage = `<html><body>
<div class="result"><a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fa&rut=1">A</a></div>
<div class="result"><a class="result__a" href="https://example.org/b">B</a></div>
<div class="result"><a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fa&rut=2">A again</a></div>
<div class="result"><a class="result__a" href="https://example.net/c">C</a></div>
</body></html>`

func testEngine(srvURL string) HTMLEngine {
	return HTMLEngine{
		Name: "duckduckgo",
		URL: func(q string, _ int) string {
			return srvURL + "/html/?q=" + url.QueryEscape(q)
		},
		Result: "div.result",
		Link:   "a.result__a",
	}
}

func TestHTMLProviderSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "cats" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		if r.Header.Get("User-Agent") == "" {
			t.Error("missing user agent")
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, ddgPage)
	}))
	defer srv.Close()

	p := NewHTML(testEngine(srv.URL), HTMLConfig{})
	if p.Name() != "html-duckduckgo" {
		t.Errorf("unexpected name %q", p.Name())
	}

	got, err := p.Search(context.Background(), "cats", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := []string{"https://example.com/a", "https://example.org/b", "https://example.net/c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Search() = %v, want %v", got, want)
	}
}

func TestHTMLProviderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewHTML(testEngine(srv.URL), HTMLConfig{})
	if _, err := p.Search(context.Background(), "cats", 3); err == nil {
		t.Fatal("expected error for 429 response")
	}
}

func TestHTMLProviderCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, ddgPage)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewHTML(testEngine(srv.URL), HTMLConfig{})
	if _, err := p.Search(ctx, "cats", 3); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
