package ndjson

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Entry is one archived page record.
type Entry struct {
	RunID     string              `json:"run_id"`
	LinkID    int64               `json:"link_id"`
	Query     string              `json:"query,omitempty"`
	URL       string              `json:"url"`
	Features  map[string][]string `json:"features,omitempty"`
	Error     string              `json:"error,omitempty"`
	ScrapedAt time.Time           `json:"scraped_at"`
}

// Archive appends entries to a newline-delimited JSON file. It is safe for
// concurrent use.
type Archive struct {
	mu   sync.Mutex
	file *os.File
}

// Open opens filePath for appending, creating it if needed.
func Open(filePath string) (*Archive, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("ndjson: open: %w", err)
	}
	return &Archive{file: f}, nil
}

// Append writes e as a single line.
func (a *Archive) Append(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("ndjson: marshal: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := a.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("ndjson: write: %w", err)
	}
	return nil
}

// Entries reads back every archived entry, optionally restricted to one
// run. Entries come back in write order.
func (a *Archive) Entries(runID string) ([]Entry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := a.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("ndjson: seek: %w", err)
	}
	defer func() {
		_, _ = a.file.Seek(0, io.SeekEnd)
	}()

	scanner := bufio.NewScanner(a.file)
	// Text features can make for long lines.
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var entries []Entry
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("ndjson: decode: %w", err)
		}
		if runID != "" && e.RunID != runID {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ndjson: scan: %w", err)
	}
	return entries, nil
}

func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}
