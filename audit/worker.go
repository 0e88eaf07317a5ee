package audit

import (
	"context"
	"sync"
	"time"
)

// PoolOptions bounds a fan-out of external calls.
type PoolOptions struct {
	Concurrency int

	// Timeout caps each item's call. Zero means no per-item deadline beyond the parent context.
	Timeout time.Duration
}

// RunPool applies fn to every item with at most opts.Concurrency calls in flight and returns results in input
// order. Each result has its own slot, so fn needs no locking. Once ctx is done, items still waiting for a slot
// are handed to fn with the cancelled context so they are recorded as failures rather than skipped.
func RunPool[T, R any](ctx context.Context, items []T, opts PoolOptions, fn func(context.Context, T) R) []R {
	out := make([]R, len(items))
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	sem := make(chan struct{}, concurrency)
	wg := sync.WaitGroup{}
	for i, item := range items {
		wg.Add(1)
		go func(i int, item T) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			callCtx := ctx
			if opts.Timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
				defer cancel()
			}
			out[i] = fn(callCtx, item)
		}(i, item)
	}
	wg.Wait()
	return out
}
