package concurrent

import (
	"context"
	"errors"
	"sync"
)

// DefaultWidth bounds fan-out when callers pass a non-positive width.
const DefaultWidth = 5

// ParallelMap applies fn to every item with at most width calls in flight.
// Results keep the order of items. All errors are joined; a cancelled
// context stops scheduling new calls and records ctx.Err() for the skipped items.
func ParallelMap[T, R any](ctx context.Context, items []T, width int, fn func(context.Context, T) (R, error)) ([]R, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if width <= 0 {
		width = DefaultWidth
	}

	results := make([]R, len(items))
	errs := make([]error, len(items))

	var wg sync.WaitGroup
	sem := make(chan struct{}, width)

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			continue
		}
		select {
		case <-ctx.Done():
			errs[i] = ctx.Err()
			continue
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(idx int, val T) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx], errs[idx] = fn(ctx, val)
		}(i, item)
	}

	wg.Wait()
	return results, errors.Join(errs...)
}
