package serp

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"
)

func static(tag string, urls ...string) Func {
	return Func{Tag: tag, Fn: func(context.Context, string, int) ([]string, error) {
		return urls, nil
	}}
}

func TestAggregateKeepsEmptyProviders(t *testing.T) {
	agg := &Aggregator{Backoff: -1}
	got := agg.Aggregate(context.Background(), "cats", 2, []Provider{
		static("p1", "u1", "u2"),
		static("p2"),
	})

	want := map[string][]string{"p1": {"u1", "u2"}, "p2": {}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Aggregate() = %#v, want %#v", got, want)
	}
	if got["p2"] == nil {
		t.Error("empty provider mapped to nil slice")
	}
}

func TestAggregateRetriesThenGivesUp(t *testing.T) {
	var calls atomic.Int32
	failing := Func{Tag: "flaky", Fn: func(context.Context, string, int) ([]string, error) {
		calls.Add(1)
		return nil, errors.New("quota exceeded")
	}}

	agg := &Aggregator{Retries: 3, Backoff: time.Millisecond}
	got := agg.Aggregate(context.Background(), "cats", 5, []Provider{failing, static("ok", "u1")})

	if n := calls.Load(); n != 3 {
		t.Errorf("expected 3 attempts, got %d", n)
	}
	if res, ok := got["flaky"]; !ok || len(res) != 0 {
		t.Errorf("expected empty entry for failing provider, got %v (present=%v)", res, ok)
	}
	if !reflect.DeepEqual(got["ok"], []string{"u1"}) {
		t.Errorf("sibling provider affected: %v", got["ok"])
	}
}

func TestAggregateRecoversAfterTransientFailure(t *testing.T) {
	var calls atomic.Int32
	p := Func{Tag: "p", Fn: func(context.Context, string, int) ([]string, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("timeout")
		}
		return []string{"u1", "u2", "u3"}, nil
	}}

	agg := &Aggregator{Backoff: time.Millisecond}
	got := agg.Aggregate(context.Background(), "q", 2, []Provider{p})
	if !reflect.DeepEqual(got["p"], []string{"u1", "u2"}) {
		t.Fatalf("expected capped second-attempt result, got %v", got["p"])
	}
}

func TestAggregateIsolatesPanics(t *testing.T) {
	boom := Func{Tag: "boom", Fn: func(context.Context, string, int) ([]string, error) {
		panic("parser exploded")
	}}

	agg := &Aggregator{Retries: 1}
	got := agg.Aggregate(context.Background(), "q", 3, []Provider{boom, static("fine", "u")})
	if len(got) != 2 {
		t.Fatalf("expected both providers present, got %v", got)
	}
	if len(got["boom"]) != 0 {
		t.Errorf("expected empty result for panicking provider, got %v", got["boom"])
	}
}

func TestAggregateAppliesAttemptTimeout(t *testing.T) {
	slow := Func{Tag: "slow", Fn: func(ctx context.Context, _ string, _ int) ([]string, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return []string{"late"}, nil
		}
	}}

	agg := &Aggregator{Retries: 1, Timeout: 20 * time.Millisecond}
	start := time.Now()
	got := agg.Aggregate(context.Background(), "q", 1, []Provider{slow})
	if time.Since(start) > 2*time.Second {
		t.Fatal("attempt timeout not applied")
	}
	if len(got["slow"]) != 0 {
		t.Errorf("expected empty result, got %v", got["slow"])
	}
}
