package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/FranksOps/harvest/internal/storage"
	"github.com/FranksOps/harvest/internal/storage/storagetest"
)

func TestPostgresLinkStore(t *testing.T) {
	// Only run this test if HARVEST_TEST_POSTGRES_DSN is set
	dsn := os.Getenv("HARVEST_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("Skipping Postgres store test: HARVEST_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	s, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("Failed to create Postgres store: %v", err)
	}
	defer s.Close()

	// The contract suite expects an empty store.
	if _, err := s.(*linkStore).pool.Exec(ctx, `TRUNCATE link_details, search_results RESTART IDENTITY`); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	storagetest.Run(t, s)
}

func TestQueryBuilder(t *testing.T) {
	q := newQuery(`SELECT id FROM search_results WHERE 1=1`)
	q.filter(storage.Filter{Query: "cats", URL: "https://u1.test/"}, "l.")
	q.sql += ` ORDER BY id`
	q.paginate(storage.Filter{Limit: 5, Offset: 10})

	want := `SELECT id FROM search_results WHERE 1=1 AND l.query = $1 AND l.url = $2 ORDER BY id LIMIT $3 OFFSET $4`
	if q.sql != want {
		t.Errorf("sql = %q\nwant  %q", q.sql, want)
	}
	if len(q.args) != 4 || q.args[0] != "cats" || q.args[2] != 5 || q.args[3] != 10 {
		t.Errorf("unexpected args %v", q.args)
	}
}
