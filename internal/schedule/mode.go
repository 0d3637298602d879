// Package schedule defines how independent units of work are scheduled
// within one run: one after another, or concurrently with an explicit join.
package schedule

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Mode selects sequential or concurrent execution. It is passed explicitly
// to every component that fans out work.
type Mode int

const (
	Sync Mode = iota
	Async
)

func (m Mode) String() string {
	switch m {
	case Sync:
		return "sync"
	case Async:
		return "async"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Parse accepts "sync" or "async" (case-insensitive). An empty string is Sync.
func Parse(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sync":
		return Sync, nil
	case "async":
		return Async, nil
	}
	return Sync, fmt.Errorf("schedule: unknown mode %q (want sync or async)", s)
}

// Each calls fn for every index in [0, n). In Sync mode the calls happen in
// order on the calling goroutine; in Async mode each call runs on its own
// goroutine and Each returns once all of them have. Work is never
// cancelled early: fn is expected to contain its own failures.
func Each(ctx context.Context, m Mode, n int, fn func(ctx context.Context, i int)) {
	if m != Async {
		for i := 0; i < n; i++ {
			fn(ctx, i)
		}
		return
	}

	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			fn(ctx, i)
			return nil
		})
	}
	_ = g.Wait()
}
