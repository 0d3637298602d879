package ndjson

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestArchive_AppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.jsonl")
	a, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer a.Close()

	ctx := context.Background()
	now := time.Now().UTC()
	entries := []Entry{
		{RunID: "r1", LinkID: 1, URL: "https://a.test/", Features: map[string][]string{"email": {"a@b.com"}}, ScrapedAt: now},
		{RunID: "r2", LinkID: 2, URL: "https://b.test/", Error: "500 Internal Server Error for url: https://b.test/", ScrapedAt: now},
		{RunID: "r1", LinkID: 3, URL: "https://c.test/", ScrapedAt: now},
	}
	for _, e := range entries {
		if err := a.Append(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	all, err := a.Entries("")
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
	if all[0].Features["email"][0] != "a@b.com" || all[1].Error == "" {
		t.Errorf("round trip lost data: %+v", all)
	}

	r1, err := a.Entries("r1")
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(r1) != 2 || r1[1].LinkID != 3 {
		t.Errorf("expected run r1 entries 1 and 3, got %+v", r1)
	}

	// Appends after a read still land at the end.
	if err := a.Append(ctx, Entry{RunID: "r3", LinkID: 4, URL: "https://d.test/"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	all, _ = a.Entries("")
	if len(all) != 4 || all[3].LinkID != 4 {
		t.Errorf("expected appended entry last, got %+v", all)
	}
}

func TestArchive_ReopenAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.jsonl")
	a, _ := Open(path)
	_ = a.Append(context.Background(), Entry{RunID: "r1", URL: "https://a.test/"})
	a.Close()

	b, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer b.Close()
	_ = b.Append(context.Background(), Entry{RunID: "r2", URL: "https://b.test/"})

	all, err := b.Entries("")
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected archive to accumulate across opens, got %d", len(all))
	}
}

func TestArchive_ConcurrentAppend(t *testing.T) {
	a, err := Open(filepath.Join(t.TempDir(), "results.jsonl"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer a.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = a.Append(context.Background(), Entry{RunID: "r", LinkID: int64(i), URL: fmt.Sprintf("https://%d.test/", i)})
		}()
	}
	wg.Wait()

	all, err := a.Entries("r")
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(all) != 20 {
		t.Errorf("expected 20 intact lines, got %d", len(all))
	}
}
