package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/FranksOps/harvest/internal/extract"
	"github.com/FranksOps/harvest/internal/schedule"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const samplePage = `<html><head><title>Shop</title></head><body>
<p>Write to info@shop.test or info@shop.test, call +39 06 123 4567.</p>
<a href="/about">About</a>
<a href="https://other.test/price-list.pdf">Prices</a>
<img src="/logo.png">
</body></html>`

func newTestScraper(t *testing.T, delay time.Duration) (*PageScraper, *httptest.Server) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/shop", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, samplePage)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	fetcher, err := NewFetcher(FetchConfig{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	return NewPageScraper(Config{Fetcher: fetcher, Delay: delay, Logger: quietLogger()}), ts
}

func TestScrapeOne_Features(t *testing.T) {
	s, ts := newTestScraper(t, 0)
	kinds := []extract.Kind{extract.Email, extract.Links, extract.Documents, extract.Images, extract.Video}

	for _, mode := range []schedule.Mode{schedule.Sync, schedule.Async} {
		rec := s.ScrapeOne(context.Background(), ts.URL+"/shop", kinds, mode)
		if rec.Failed() {
			t.Fatalf("%s: unexpected error %s", mode, rec.Err)
		}

		if got := rec.Features[extract.Email]; !reflect.DeepEqual(got, []string{"info@shop.test"}) {
			t.Errorf("%s: email = %v", mode, got)
		}
		wantLinks := []string{ts.URL + "/about", "https://other.test/price-list.pdf"}
		if got := rec.Features[extract.Links]; !reflect.DeepEqual(got, wantLinks) {
			t.Errorf("%s: links = %v, want %v", mode, got, wantLinks)
		}
		if got := rec.Features[extract.Documents]; !reflect.DeepEqual(got, []string{"https://other.test/price-list.pdf"}) {
			t.Errorf("%s: documents = %v", mode, got)
		}
		if got := rec.Features[extract.Images]; !reflect.DeepEqual(got, []string{ts.URL + "/logo.png"}) {
			t.Errorf("%s: images = %v", mode, got)
		}
		got, ok := rec.Features[extract.Video]
		if !ok || len(got) != 0 {
			t.Errorf("%s: expected an empty video entry, got %v (present=%v)", mode, got, ok)
		}
	}
}

func TestScrapeOne_HTTPErrorRecord(t *testing.T) {
	s, ts := newTestScraper(t, 0)

	rec := s.ScrapeOne(context.Background(), ts.URL+"/broken", []extract.Kind{extract.Text, extract.Email}, schedule.Async)
	want := "500 Internal Server Error for url: " + ts.URL + "/broken"
	if rec.Err != want {
		t.Errorf("Err = %q, want %q", rec.Err, want)
	}
	if rec.Features != nil {
		t.Errorf("expected no features on an error record, got %v", rec.Features)
	}
}

func TestScrapeOne_Delay(t *testing.T) {
	s, ts := newTestScraper(t, 40*time.Millisecond)

	start := time.Now()
	s.ScrapeOne(context.Background(), ts.URL+"/shop", []extract.Kind{extract.Links}, schedule.Sync)
	if time.Since(start) < 35*time.Millisecond {
		t.Errorf("expected post-scrape delay")
	}
}

type stubFetcher struct {
	body []byte
	err  error
}

func (f stubFetcher) Fetch(ctx context.Context, url string) (*Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &Response{URL: url, StatusCode: 200, Body: f.body}, nil
}

func TestScrapeOne_TransportError(t *testing.T) {
	s := NewPageScraper(Config{Fetcher: stubFetcher{err: errors.New("request failed: connection refused")}, Logger: quietLogger()})
	rec := s.ScrapeOne(context.Background(), "https://down.test/", []extract.Kind{extract.Text}, schedule.Sync)
	if rec.Err != "request failed: connection refused" || rec.Features != nil {
		t.Errorf("unexpected record %+v", rec)
	}
}

func TestScrapeOne_UnknownKindOmitted(t *testing.T) {
	s := NewPageScraper(Config{Fetcher: stubFetcher{body: []byte(`<a href="/x">x</a>`)}, Logger: quietLogger()})
	rec := s.ScrapeOne(context.Background(), "https://a.test/", []extract.Kind{extract.Links, extract.Kind("audio")}, schedule.Sync)
	if rec.Failed() {
		t.Fatalf("unexpected error %s", rec.Err)
	}
	if _, ok := rec.Features["audio"]; ok {
		t.Errorf("unknown kind must be omitted")
	}
	if got := rec.Features[extract.Links]; !reflect.DeepEqual(got, []string{"https://a.test/x"}) {
		t.Errorf("links = %v", got)
	}
}
