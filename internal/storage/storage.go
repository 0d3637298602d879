package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("storage: not found")

// LinkID is the stable identifier assigned to a URL on first insertion.
type LinkID int64

// Link is one persisted search result. URL is unique across the store;
// Query and Provider belong to whichever insertion came first.
type Link struct {
	ID        LinkID    `json:"id"`
	Query     string    `json:"query"`
	Provider  string    `json:"provider"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// Detail is one extracted feature value recorded against a link. Details
// form an append-only log; repeated runs add rows rather than replacing them.
type Detail struct {
	ID        int64     `json:"id"`
	LinkID    LinkID    `json:"link_id"`
	Kind      string    `json:"kind"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

// BrowseRow is one row of the links LEFT JOIN link_details view. Links
// without details appear once with HasDetail false.
type BrowseRow struct {
	Link      Link
	HasDetail bool
	Detail    Detail
}

// Filter narrows Links and Browse. Zero values match everything.
type Filter struct {
	Query    string
	Provider string
	URL      string
	Limit    int
	Offset   int
}

// LinkStore persists links and their extracted details.
//
// InsertLink is idempotent on URL: inserting a URL that already exists
// returns the existing identifier and adds no row. Every write is a single
// self-contained statement, so implementations are safe for concurrent use.
type LinkStore interface {
	InsertLink(ctx context.Context, query, provider, url string) (LinkID, error)
	RecordDetail(ctx context.Context, id LinkID, kind, value string) error
	Link(ctx context.Context, id LinkID) (Link, error)
	Links(ctx context.Context, filter Filter) ([]Link, error)
	Details(ctx context.Context, id LinkID) ([]Detail, error)
	Browse(ctx context.Context, filter Filter) ([]BrowseRow, error)
	Close() error
}
