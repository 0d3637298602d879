package extract

import (
	"errors"
	"fmt"
)

// ErrAllStrategiesFailed is returned when no strategy of an extractor could
// run to completion.
var ErrAllStrategiesFailed = errors.New("extract: all strategies failed")

// Result is the outcome of one strategy: values, empty, or failed.
type Result struct {
	Values []string
	Err    error
}

// Found is a result carrying values. With no values it is Empty.
func Found(values ...string) Result { return Result{Values: values} }

// Failed is a result for a strategy that could not run to completion.
func Failed(err error) Result { return Result{Err: err} }

// Empty reports a strategy that ran but found nothing.
func (r Result) Empty() bool { return r.Err == nil && len(r.Values) == 0 }

// OK reports a strategy that found at least one value.
func (r Result) OK() bool { return r.Err == nil && len(r.Values) > 0 }

// Strategy is one concrete algorithm for extracting a feature from a page.
type Strategy struct {
	Name string
	Run  func(p *Page) Result
}

// run invokes the strategy, converting a panic into a failed result.
func (s Strategy) run(p *Page) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Failed(fmt.Errorf("strategy %s panicked: %v", s.Name, r))
		}
	}()
	return s.Run(p)
}

// dedupe removes blank and repeated values, keeping first-seen order.
func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
