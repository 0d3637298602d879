package extract

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/FranksOps/harvest/internal/schedule"
)

func mustPage(t *testing.T, rawURL, body string) *Page {
	t.Helper()
	p, err := NewPage(rawURL, []byte(body))
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}
	return p
}

func withStrategies(t *testing.T, kind Kind, strategies ...Strategy) *Extractor {
	t.Helper()
	e, err := New(kind, mustPage(t, "https://a.test/", "<html><body></body></html>"), Options{})
	if err != nil {
		t.Fatalf("New(%s): %v", kind, err)
	}
	e.strategies = strategies
	return e
}

func TestExtractSync_ShortCircuits(t *testing.T) {
	for _, kind := range All {
		t.Run(string(kind), func(t *testing.T) {
			var secondCalls atomic.Int32
			e := withStrategies(t, kind,
				Strategy{Name: "first", Run: func(*Page) Result { return Found("v1") }},
				Strategy{Name: "second", Run: func(*Page) Result {
					secondCalls.Add(1)
					panic("second strategy must not run")
				}},
			)

			got, err := e.ExtractSync(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, []string{"v1"}) {
				t.Errorf("expected [v1], got %v", got)
			}
			if n := secondCalls.Load(); n != 0 {
				t.Errorf("expected second strategy never invoked, got %d calls", n)
			}
		})
	}
}

func TestExtractSync_FallsThroughEmptyAndFailed(t *testing.T) {
	e := withStrategies(t, Links,
		Strategy{Name: "empty", Run: func(*Page) Result { return Result{} }},
		Strategy{Name: "broken", Run: func(*Page) Result { return Failed(errors.New("boom")) }},
		Strategy{Name: "panics", Run: func(*Page) Result { panic("nil map") }},
		Strategy{Name: "hit", Run: func(*Page) Result { return Found("b", "a", "b") }},
	)

	got, err := e.ExtractSync(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"b", "a"}) {
		t.Errorf("expected deduplicated [b a], got %v", got)
	}
}

func TestExtractAsync_InvokesEveryStrategyOnce(t *testing.T) {
	for _, kind := range All {
		t.Run(string(kind), func(t *testing.T) {
			var calls [3]atomic.Int32
			e := withStrategies(t, kind,
				Strategy{Name: "s0", Run: func(*Page) Result { calls[0].Add(1); return Result{} }},
				Strategy{Name: "s1", Run: func(*Page) Result { calls[1].Add(1); return Found("x", "x", "y") }},
				Strategy{Name: "s2", Run: func(*Page) Result { calls[2].Add(1); return Found("z") }},
			)

			got, err := e.ExtractAsync(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for i := range calls {
				if n := calls[i].Load(); n != 1 {
					t.Errorf("strategy %d invoked %d times, want 1", i, n)
				}
			}
			if !reflect.DeepEqual(got, []string{"x", "y"}) {
				t.Errorf("expected first non-empty in order [x y], got %v", got)
			}
		})
	}
}

func TestExtract_AllStrategiesFailed(t *testing.T) {
	e := withStrategies(t, Email,
		Strategy{Name: "a", Run: func(*Page) Result { return Failed(errors.New("a")) }},
		Strategy{Name: "b", Run: func(*Page) Result { panic("b") }},
	)

	for _, mode := range []schedule.Mode{schedule.Sync, schedule.Async} {
		_, err := e.Extract(context.Background(), mode)
		if !errors.Is(err, ErrAllStrategiesFailed) {
			t.Errorf("%s: expected ErrAllStrategiesFailed, got %v", mode, err)
		}
	}
}

func TestExtract_EmptyIsNotFailure(t *testing.T) {
	e := withStrategies(t, Phone,
		Strategy{Name: "a", Run: func(*Page) Result { return Failed(errors.New("a")) }},
		Strategy{Name: "b", Run: func(*Page) Result { return Result{} }},
	)
	got, err := e.ExtractSync(context.Background())
	if err != nil || len(got) != 0 {
		t.Errorf("expected empty result without error, got %v, %v", got, err)
	}
}

func TestNew_UnknownKind(t *testing.T) {
	p := mustPage(t, "https://a.test/", "<p>x</p>")
	if _, err := New(Error, p, Options{}); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind for error kind, got %v", err)
	}
	if _, err := New(Kind("audio"), p, Options{}); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
	if _, err := New(Text, nil, Options{}); err == nil {
		t.Errorf("expected error for nil page")
	}
}

type recordingDownloader struct {
	mu    sync.Mutex
	calls map[Kind][]string
}

func (d *recordingDownloader) Download(_ context.Context, kind Kind, urls []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.calls == nil {
		d.calls = make(map[Kind][]string)
	}
	d.calls[kind] = append(d.calls[kind], urls...)
}

func TestExtract_DownloadSideEffect(t *testing.T) {
	body := `<html><body>
		<img src="/a.png"><img data-src="b.jpg">
		<a href="/files/report.pdf">report</a>
		<a href="mailto:x@y.org">mail</a>
	</body></html>`
	p := mustPage(t, "https://a.test/dir/", body)
	dl := &recordingDownloader{}

	for _, kind := range []Kind{Images, Documents, Email} {
		e, err := New(kind, p, Options{Downloader: dl})
		if err != nil {
			t.Fatalf("New(%s): %v", kind, err)
		}
		if _, err := e.ExtractSync(context.Background()); err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
	}

	wantImages := []string{"https://a.test/a.png", "https://a.test/dir/b.jpg"}
	if !reflect.DeepEqual(dl.calls[Images], wantImages) {
		t.Errorf("images downloads = %v, want %v", dl.calls[Images], wantImages)
	}
	if !reflect.DeepEqual(dl.calls[Documents], []string{"https://a.test/files/report.pdf"}) {
		t.Errorf("document downloads = %v", dl.calls[Documents])
	}
	if _, ok := dl.calls[Email]; ok {
		t.Errorf("email extraction must not trigger downloads")
	}
}
