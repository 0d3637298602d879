package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/FranksOps/harvest/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure linkStore implements storage.LinkStore
var _ storage.LinkStore = (*linkStore)(nil)

type linkStore struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS search_results (
	id BIGSERIAL PRIMARY KEY,
	query TEXT NOT NULL,
	provider TEXT NOT NULL,
	url TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS link_details (
	id BIGSERIAL PRIMARY KEY,
	link_id BIGINT NOT NULL REFERENCES search_results(id),
	kind TEXT NOT NULL,
	value TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_link_details_link_id ON link_details(link_id);
`

// New connects to Postgres and ensures the schema exists.
func New(ctx context.Context, dsn string) (storage.LinkStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: schema: %w", err)
	}

	return &linkStore{pool: pool}, nil
}

func (s *linkStore) InsertLink(ctx context.Context, query, provider, url string) (storage.LinkID, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
	INSERT INTO search_results (query, provider, url)
	VALUES ($1, $2, $3)
	ON CONFLICT (url) DO NOTHING
	RETURNING id`,
		query, provider, url,
	).Scan(&id)
	if err == nil {
		return storage.LinkID(id), nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("postgres: insert link: %w", err)
	}

	if err := s.pool.QueryRow(ctx, `SELECT id FROM search_results WHERE url = $1`, url).Scan(&id); err != nil {
		return 0, fmt.Errorf("postgres: lookup link: %w", err)
	}
	return storage.LinkID(id), nil
}

func (s *linkStore) RecordDetail(ctx context.Context, id storage.LinkID, kind, value string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO link_details (link_id, kind, value) VALUES ($1, $2, $3)`,
		int64(id), kind, value,
	)
	if err != nil {
		return fmt.Errorf("postgres: record detail: %w", err)
	}
	return nil
}

func (s *linkStore) Link(ctx context.Context, id storage.LinkID) (storage.Link, error) {
	var l storage.Link
	err := s.pool.QueryRow(ctx,
		`SELECT id, query, provider, url, created_at FROM search_results WHERE id = $1`, int64(id),
	).Scan(&l.ID, &l.Query, &l.Provider, &l.URL, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.Link{}, fmt.Errorf("postgres: link %d: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return storage.Link{}, fmt.Errorf("postgres: link %d: %w", id, err)
	}
	return l, nil
}

func (s *linkStore) Links(ctx context.Context, filter storage.Filter) ([]storage.Link, error) {
	b := newQuery(`SELECT id, query, provider, url, created_at FROM search_results WHERE 1=1`)
	b.filter(filter, "")
	b.sql += ` ORDER BY id`
	b.paginate(filter)

	rows, err := s.pool.Query(ctx, b.sql, b.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: links: %w", err)
	}
	defer rows.Close()

	var links []storage.Link
	for rows.Next() {
		var l storage.Link
		if err := rows.Scan(&l.ID, &l.Query, &l.Provider, &l.URL, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan link: %w", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: links: %w", err)
	}
	return links, nil
}

func (s *linkStore) Details(ctx context.Context, id storage.LinkID) ([]storage.Detail, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, link_id, kind, value, created_at FROM link_details WHERE link_id = $1 ORDER BY id`, int64(id),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: details: %w", err)
	}
	defer rows.Close()

	var details []storage.Detail
	for rows.Next() {
		var d storage.Detail
		if err := rows.Scan(&d.ID, &d.LinkID, &d.Kind, &d.Value, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan detail: %w", err)
		}
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: details: %w", err)
	}
	return details, nil
}

func (s *linkStore) Browse(ctx context.Context, filter storage.Filter) ([]storage.BrowseRow, error) {
	b := newQuery(`
	SELECT l.id, l.query, l.provider, l.url, l.created_at, d.id, d.kind, d.value, d.created_at
	FROM search_results l
	LEFT JOIN link_details d ON d.link_id = l.id
	WHERE 1=1`)
	b.filter(filter, "l.")
	b.sql += ` ORDER BY l.query, l.provider, l.id, d.id`
	b.paginate(filter)

	rows, err := s.pool.Query(ctx, b.sql, b.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: browse: %w", err)
	}
	defer rows.Close()

	var out []storage.BrowseRow
	for rows.Next() {
		var (
			r        storage.BrowseRow
			detailID pgtype.Int8
			kind     pgtype.Text
			value    pgtype.Text
			created  pgtype.Timestamptz
		)
		if err := rows.Scan(
			&r.Link.ID, &r.Link.Query, &r.Link.Provider, &r.Link.URL, &r.Link.CreatedAt,
			&detailID, &kind, &value, &created,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan browse row: %w", err)
		}
		if detailID.Valid {
			r.HasDetail = true
			r.Detail = storage.Detail{
				ID:        detailID.Int64,
				LinkID:    r.Link.ID,
				Kind:      kind.String,
				Value:     value.String,
				CreatedAt: created.Time,
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: browse: %w", err)
	}
	return out, nil
}

func (s *linkStore) Close() error {
	s.pool.Close()
	return nil
}

// query accumulates SQL text and positional arguments.
type query struct {
	sql  string
	args []any
}

func newQuery(base string) *query { return &query{sql: base} }

func (q *query) add(clause string, arg any) {
	q.args = append(q.args, arg)
	q.sql += fmt.Sprintf(clause, len(q.args))
}

func (q *query) filter(f storage.Filter, prefix string) {
	if f.Query != "" {
		q.add(" AND "+prefix+"query = $%d", f.Query)
	}
	if f.Provider != "" {
		q.add(" AND "+prefix+"provider = $%d", f.Provider)
	}
	if f.URL != "" {
		q.add(" AND "+prefix+"url = $%d", f.URL)
	}
}

func (q *query) paginate(f storage.Filter) {
	if f.Limit > 0 {
		q.add(" LIMIT $%d", f.Limit)
	}
	if f.Offset > 0 {
		q.add(" OFFSET $%d", f.Offset)
	}
	q.sql = strings.TrimSpace(q.sql)
}
