// Package fanout runs one operation against many servers at once.
//
// Results come back in input order regardless of completion order, and a
// failing server never hides the others: its slot carries the error while
// every other slot carries its value.
package fanout

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds the pool when the caller passes no limit.
const DefaultConcurrency = 5

// Result is one server's outcome. When Err is set, Value holds the zero
// value and must not be consumed.
type Result[T any] struct {
	Server string
	Value  T
	Err    error
}

// Run executes fetch against every server with at most limit calls in
// flight. The returned slice has one slot per input server, in input
// order, and Run returns only after every worker has drained.
func Run[T any](ctx context.Context, servers []string, limit int, fetch func(ctx context.Context, server string) (T, error)) []Result[T] {
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	results := make([]Result[T], len(servers))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, server := range servers {
		results[i].Server = server
		g.Go(func() error {
			value, err := fetch(ctx, server)
			if err != nil {
				// The slot keeps the failure; the group must not see it,
				// or one bad server would cancel all the rest.
				results[i].Err = err
				return nil
			}
			results[i].Value = value
			return nil
		})
	}
	_ = g.Wait()
	return results
}
