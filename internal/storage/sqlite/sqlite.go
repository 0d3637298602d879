package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/FranksOps/harvest/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure linkStore implements storage.LinkStore
var _ storage.LinkStore = (*linkStore)(nil)

type linkStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS search_results (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	query TEXT NOT NULL,
	provider TEXT NOT NULL,
	url TEXT NOT NULL UNIQUE,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS link_details (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	link_id INTEGER NOT NULL REFERENCES search_results(id),
	kind TEXT NOT NULL,
	value TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_link_details_link_id ON link_details(link_id);
`

// New opens (creating if needed) a SQLite database at dsn.
func New(dsn string) (storage.LinkStore, error) {
	db, err := sql.Open("sqlite", withPragmas(dsn))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// A single connection serialises writers, which SQLite requires anyway,
	// and keeps per-connection pragmas in force.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: schema: %w", err)
	}

	return &linkStore{db: db}, nil
}

func withPragmas(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func (s *linkStore) InsertLink(ctx context.Context, query, provider, url string) (storage.LinkID, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
	INSERT INTO search_results (query, provider, url, created_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(url) DO NOTHING
	RETURNING id`,
		query, provider, url, time.Now().UTC(),
	).Scan(&id)
	if err == nil {
		return storage.LinkID(id), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("sqlite: insert link: %w", err)
	}

	// URL already present: hand back the identifier of the first insertion.
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM search_results WHERE url = ?`, url).Scan(&id); err != nil {
		return 0, fmt.Errorf("sqlite: lookup link: %w", err)
	}
	return storage.LinkID(id), nil
}

func (s *linkStore) RecordDetail(ctx context.Context, id storage.LinkID, kind, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO link_details (link_id, kind, value, created_at) VALUES (?, ?, ?, ?)`,
		int64(id), kind, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: record detail: %w", err)
	}
	return nil
}

func (s *linkStore) Link(ctx context.Context, id storage.LinkID) (storage.Link, error) {
	var l storage.Link
	err := s.db.QueryRowContext(ctx,
		`SELECT id, query, provider, url, created_at FROM search_results WHERE id = ?`, int64(id),
	).Scan(&l.ID, &l.Query, &l.Provider, &l.URL, &l.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Link{}, fmt.Errorf("sqlite: link %d: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return storage.Link{}, fmt.Errorf("sqlite: link %d: %w", id, err)
	}
	return l, nil
}

func (s *linkStore) Links(ctx context.Context, filter storage.Filter) ([]storage.Link, error) {
	where, args := whereClause(filter, "")
	query := `SELECT id, query, provider, url, created_at FROM search_results WHERE 1=1` + where + ` ORDER BY id`
	query, args = paginate(query, args, filter)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: links: %w", err)
	}
	defer rows.Close()

	var links []storage.Link
	for rows.Next() {
		var l storage.Link
		if err := rows.Scan(&l.ID, &l.Query, &l.Provider, &l.URL, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan link: %w", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: links: %w", err)
	}
	return links, nil
}

func (s *linkStore) Details(ctx context.Context, id storage.LinkID) ([]storage.Detail, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, link_id, kind, value, created_at FROM link_details WHERE link_id = ? ORDER BY id`, int64(id),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: details: %w", err)
	}
	defer rows.Close()

	var details []storage.Detail
	for rows.Next() {
		var d storage.Detail
		if err := rows.Scan(&d.ID, &d.LinkID, &d.Kind, &d.Value, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan detail: %w", err)
		}
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: details: %w", err)
	}
	return details, nil
}

func (s *linkStore) Browse(ctx context.Context, filter storage.Filter) ([]storage.BrowseRow, error) {
	where, args := whereClause(filter, "l.")
	query := `
	SELECT l.id, l.query, l.provider, l.url, l.created_at, d.id, d.kind, d.value, d.created_at
	FROM search_results l
	LEFT JOIN link_details d ON d.link_id = l.id
	WHERE 1=1` + where + `
	ORDER BY l.query, l.provider, l.id, d.id`
	query, args = paginate(query, args, filter)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: browse: %w", err)
	}
	defer rows.Close()

	var out []storage.BrowseRow
	for rows.Next() {
		var (
			r        storage.BrowseRow
			detailID sql.NullInt64
			kind     sql.NullString
			value    sql.NullString
			created  sql.NullTime
		)
		if err := rows.Scan(
			&r.Link.ID, &r.Link.Query, &r.Link.Provider, &r.Link.URL, &r.Link.CreatedAt,
			&detailID, &kind, &value, &created,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scan browse row: %w", err)
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
		return nil, fmt.Errorf("sqlite: browse: %w", err)
	}
	return out, nil
}

func (s *linkStore) Close() error {
	return s.db.Close()
}

func whereClause(filter storage.Filter, prefix string) (string, []any) {
	var b strings.Builder
	var args []any
	if filter.Query != "" {
		b.WriteString(" AND " + prefix + "query = ?")
		args = append(args, filter.Query)
	}
	if filter.Provider != "" {
		b.WriteString(" AND " + prefix + "provider = ?")
		args = append(args, filter.Provider)
	}
	if filter.URL != "" {
		b.WriteString(" AND " + prefix + "url = ?")
		args = append(args, filter.URL)
	}
	return b.String(), args
}

func paginate(query string, args []any, filter storage.Filter) (string, []any) {
	switch {
	case filter.Limit > 0:
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	case filter.Offset > 0:
		// SQLite only accepts OFFSET after a LIMIT.
		query += ` LIMIT -1`
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}
	return query, args
}
