// Package storagetest holds the behavioural checks every storage.LinkStore
// implementation must pass.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/FranksOps/harvest/internal/storage"
)

// Run exercises store against the LinkStore contract. The store must be
// empty and is closed by the caller.
func Run(t *testing.T, store storage.LinkStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("InsertIsIdempotentOnURL", func(t *testing.T) {
		id1, err := store.InsertLink(ctx, "cats", "p1", "https://u1.test/")
		if err != nil {
			t.Fatalf("insert u1: %v", err)
		}
		id2, err := store.InsertLink(ctx, "cats", "p1", "https://u2.test/")
		if err != nil {
			t.Fatalf("insert u2: %v", err)
		}
		if id1 == id2 {
			t.Fatalf("distinct URLs got the same id %d", id1)
		}

		again, err := store.InsertLink(ctx, "dogs", "p2", "https://u1.test/")
		if err != nil {
			t.Fatalf("re-insert u1: %v", err)
		}
		if again != id1 {
			t.Errorf("expected existing id %d on duplicate insert, got %d", id1, again)
		}

		links, err := store.Links(ctx, storage.Filter{})
		if err != nil {
			t.Fatalf("links: %v", err)
		}
		if len(links) != 2 {
			t.Fatalf("expected 2 rows, got %d", len(links))
		}

		l, err := store.Link(ctx, id1)
		if err != nil {
			t.Fatalf("link: %v", err)
		}
		if l.Query != "cats" || l.Provider != "p1" || l.URL != "https://u1.test/" {
			t.Errorf("first insertion must win, got %+v", l)
		}
		if l.CreatedAt.IsZero() {
			t.Errorf("expected creation timestamp")
		}
	})

	t.Run("LinkNotFound", func(t *testing.T) {
		if _, err := store.Link(ctx, storage.LinkID(987654)); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("DetailsAppend", func(t *testing.T) {
		id, err := store.InsertLink(ctx, "cats", "p1", "https://details.test/")
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
		for _, v := range []string{"first", "second"} {
			if err := store.RecordDetail(ctx, id, "text", v); err != nil {
				t.Fatalf("record %s: %v", v, err)
			}
		}
		if err := store.RecordDetail(ctx, id, "email", `["a@b.com"]`); err != nil {
			t.Fatalf("record email: %v", err)
		}

		details, err := store.Details(ctx, id)
		if err != nil {
			t.Fatalf("details: %v", err)
		}
		if len(details) != 3 {
			t.Fatalf("expected 3 details (append-only), got %d", len(details))
		}
		if details[0].Value != "first" || details[1].Value != "second" || details[2].Kind != "email" {
			t.Errorf("unexpected detail order: %+v", details)
		}
		for _, d := range details {
			if d.LinkID != id {
				t.Errorf("detail %d belongs to %d, want %d", d.ID, d.LinkID, id)
			}
		}
	})

	t.Run("DetailRequiresLink", func(t *testing.T) {
		if err := store.RecordDetail(ctx, storage.LinkID(424242), "text", "orphan"); err == nil {
			t.Errorf("expected error recording a detail for an unknown link")
		}
	})

	t.Run("FilterAndBrowse", func(t *testing.T) {
		id, err := store.InsertLink(ctx, "birds", "serpapi-bing", "https://birds.test/")
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
		if _, err := store.InsertLink(ctx, "birds", "html-mojeek", "https://birds2.test/"); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if err := store.RecordDetail(ctx, id, "link", `["https://x.test/"]`); err != nil {
			t.Fatalf("record: %v", err)
		}

		links, err := store.Links(ctx, storage.Filter{Query: "birds", Provider: "serpapi-bing"})
		if err != nil {
			t.Fatalf("links: %v", err)
		}
		if len(links) != 1 || links[0].ID != id {
			t.Fatalf("expected only %d, got %+v", id, links)
		}

		limited, err := store.Links(ctx, storage.Filter{Query: "birds", Limit: 1, Offset: 1})
		if err != nil {
			t.Fatalf("links: %v", err)
		}
		if len(limited) != 1 || limited[0].URL != "https://birds2.test/" {
			t.Errorf("expected second bird link with limit/offset, got %+v", limited)
		}

		rows, err := store.Browse(ctx, storage.Filter{Query: "birds"})
		if err != nil {
			t.Fatalf("browse: %v", err)
		}
		if len(rows) != 2 {
			t.Fatalf("expected 2 browse rows, got %d: %+v", len(rows), rows)
		}
		var withDetail, without int
		for _, r := range rows {
			if r.Link.Query != "birds" {
				t.Errorf("filter leaked query %q", r.Link.Query)
			}
			if r.HasDetail {
				withDetail++
				if r.Detail.Kind != "link" || r.Detail.LinkID != id {
					t.Errorf("unexpected joined detail %+v", r.Detail)
				}
			} else {
				without++
			}
		}
		if withDetail != 1 || without != 1 {
			t.Errorf("expected one joined and one bare row, got %d/%d", withDetail, without)
		}
	})

	t.Run("ConcurrentInsertSameURL", func(t *testing.T) {
		const workers = 8
		ids := make([]storage.LinkID, workers)
		errs := make([]error, workers)

		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ids[i], errs[i] = store.InsertLink(ctx, "race", fmt.Sprintf("p%d", i), "https://race.test/")
			}()
		}
		wg.Wait()

		for i := range ids {
			if errs[i] != nil {
				t.Fatalf("worker %d: %v", i, errs[i])
			}
			if ids[i] != ids[0] {
				t.Errorf("worker %d got id %d, want %d", i, ids[i], ids[0])
			}
		}
		links, err := store.Links(ctx, storage.Filter{URL: "https://race.test/"})
		if err != nil {
			t.Fatalf("links: %v", err)
		}
		if len(links) != 1 {
			t.Errorf("expected a single row for the raced URL, got %d", len(links))
		}
	})
}
