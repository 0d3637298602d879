// Package boltdb emulates the two relational tables on a bbolt key-value
// file. Link and detail identifiers come from bucket sequences, and a
// url index bucket enforces URL uniqueness.
package boltdb

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/FranksOps/harvest/internal/storage"
	bolt "go.etcd.io/bbolt"
)

// ensure linkStore implements storage.LinkStore
var _ storage.LinkStore = (*linkStore)(nil)

var (
	linksBucket   = []byte("search_results")
	urlIndex      = []byte("search_results_url")
	detailsBucket = []byte("link_details")
)

type linkStore struct {
	db *bolt.DB
}

// New opens (creating if needed) a bbolt file at path.
func New(path string) (storage.LinkStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("boltdb: open: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{linksBucket, urlIndex, detailsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("boltdb: create buckets: %w", err)
	}

	return &linkStore{db: db}, nil
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// detailKey orders details by link, then by insertion.
func detailKey(link storage.LinkID, seq uint64) []byte {
	return append(itob(uint64(link)), itob(seq)...)
}

func (s *linkStore) InsertLink(ctx context.Context, query, provider, url string) (storage.LinkID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var id storage.LinkID
	err := s.db.Update(func(tx *bolt.Tx) error {
		idx := tx.Bucket(urlIndex)
		if existing := idx.Get([]byte(url)); existing != nil {
			id = storage.LinkID(binary.BigEndian.Uint64(existing))
			return nil
		}

		links := tx.Bucket(linksBucket)
		seq, err := links.NextSequence()
		if err != nil {
			return err
		}
		id = storage.LinkID(seq)

		data, err := json.Marshal(storage.Link{
			ID:        id,
			Query:     query,
			Provider:  provider,
			URL:       url,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		if err := links.Put(itob(seq), data); err != nil {
			return err
		}
		return idx.Put([]byte(url), itob(seq))
	})
	if err != nil {
		return 0, fmt.Errorf("boltdb: insert link: %w", err)
	}
	return id, nil
}

func (s *linkStore) RecordDetail(ctx context.Context, id storage.LinkID, kind, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(linksBucket).Get(itob(uint64(id))) == nil {
			return fmt.Errorf("link %d: %w", id, storage.ErrNotFound)
		}

		details := tx.Bucket(detailsBucket)
		seq, err := details.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(storage.Detail{
			ID:        int64(seq),
			LinkID:    id,
			Kind:      kind,
			Value:     value,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		return details.Put(detailKey(id, seq), data)
	})
	if err != nil {
		return fmt.Errorf("boltdb: record detail: %w", err)
	}
	return nil
}

func (s *linkStore) Link(ctx context.Context, id storage.LinkID) (storage.Link, error) {
	var l storage.Link
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(linksBucket).Get(itob(uint64(id)))
		if data == nil {
			return storage.ErrNotFound
		}
		return json.Unmarshal(data, &l)
	})
	if err != nil {
		return storage.Link{}, fmt.Errorf("boltdb: link %d: %w", id, err)
	}
	return l, nil
}

func (s *linkStore) Links(ctx context.Context, filter storage.Filter) ([]storage.Link, error) {
	var links []storage.Link
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		links, err = matchingLinks(tx, filter)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("boltdb: links: %w", err)
	}
	return paginate(links, filter), nil
}

func (s *linkStore) Details(ctx context.Context, id storage.LinkID) ([]storage.Detail, error) {
	var details []storage.Detail
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		details, err = linkDetails(tx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("boltdb: details: %w", err)
	}
	return details, nil
}

func (s *linkStore) Browse(ctx context.Context, filter storage.Filter) ([]storage.BrowseRow, error) {
	var rows []storage.BrowseRow
	err := s.db.View(func(tx *bolt.Tx) error {
		links, err := matchingLinks(tx, filter)
		if err != nil {
			return err
		}
		sort.SliceStable(links, func(i, j int) bool {
			a, b := links[i], links[j]
			if a.Query != b.Query {
				return a.Query < b.Query
			}
			if a.Provider != b.Provider {
				return a.Provider < b.Provider
			}
			return a.ID < b.ID
		})

		for _, l := range links {
			details, err := linkDetails(tx, l.ID)
			if err != nil {
				return err
			}
			if len(details) == 0 {
				rows = append(rows, storage.BrowseRow{Link: l})
				continue
			}
			for _, d := range details {
				rows = append(rows, storage.BrowseRow{Link: l, HasDetail: true, Detail: d})
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("boltdb: browse: %w", err)
	}
	return paginate(rows, filter), nil
}

func (s *linkStore) Close() error {
	return s.db.Close()
}

func matchingLinks(tx *bolt.Tx, f storage.Filter) ([]storage.Link, error) {
	var links []storage.Link
	err := tx.Bucket(linksBucket).ForEach(func(_, v []byte) error {
		var l storage.Link
		if err := json.Unmarshal(v, &l); err != nil {
			return err
		}
		if (f.Query != "" && l.Query != f.Query) ||
			(f.Provider != "" && l.Provider != f.Provider) ||
			(f.URL != "" && l.URL != f.URL) {
			return nil
		}
		links = append(links, l)
		return nil
	})
	return links, err
}

func linkDetails(tx *bolt.Tx, id storage.LinkID) ([]storage.Detail, error) {
	var details []storage.Detail
	prefix := itob(uint64(id))
	c := tx.Bucket(detailsBucket).Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		var d storage.Detail
		if err := json.Unmarshal(v, &d); err != nil {
			return nil, err
		}
		details = append(details, d)
	}
	return details, nil
}

func paginate[T any](items []T, f storage.Filter) []T {
	if f.Offset > 0 {
		if f.Offset >= len(items) {
			return nil
		}
		items = items[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(items) {
		items = items[:f.Limit]
	}
	return items
}
