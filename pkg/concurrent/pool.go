// Package concurrent holds small bounded-parallelism helpers.
package concurrent

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is used when a non-positive limit is given.
const DefaultConcurrency = 4

// ParallelMap applies fn to every item with at most limit calls in flight.
// Results keep input order. The first error cancels the remaining calls.
func ParallelMap[T, R any](ctx context.Context, items []T, limit int, fn func(context.Context, T) (R, error)) ([]R, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	results := make([]R, len(items))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, item := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := fn(ctx, item)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Settle applies fn to every item like ParallelMap but never stops early:
// each item gets its own result or error.
func Settle[T, R any](ctx context.Context, items []T, limit int, fn func(context.Context, T) (R, error)) ([]R, []error) {
	results := make([]R, len(items))
	errs := make([]error, len(items))
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for i, item := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			results[i], errs[i] = fn(ctx, item)
			return nil
		})
	}
	_ = g.Wait()
	return results, errs
}
