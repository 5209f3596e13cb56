package resilience

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// BatchResult holds the outcome of one batch task. Exactly one of Value and
// Err is meaningful.
type BatchResult[R any] struct {
	Index int
	Value R
	Err   error
}

// ProcessBatch runs fn over every item with at most maxConcurrent executions
// in flight. Results come back indexed by submission order regardless of
// completion order. A failing or panicking task only poisons its own slot;
// sibling tasks run to completion.
func ProcessBatch[T, R any](ctx context.Context, maxConcurrent int, items []T, fn func(ctx context.Context, index int, item T) (R, error)) []BatchResult[R] {
	return ProcessBatchWithProgress(ctx, maxConcurrent, items, fn, nil)
}

// ProcessBatchWithProgress is ProcessBatch with a completion callback invoked
// once per task, as each task finishes. Callback invocations are serialized,
// so the callback needs no locking of its own; completion order is not
// submission order.
func ProcessBatchWithProgress[T, R any](ctx context.Context, maxConcurrent int, items []T, fn func(ctx context.Context, index int, item T) (R, error), progress func(index int, result BatchResult[R])) []BatchResult[R] {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	results := make([]BatchResult[R], len(items))
	sem := semaphore.NewWeighted(int64(maxConcurrent))

	var wg sync.WaitGroup
	var progressMu sync.Mutex

	for i, item := range items {
		wg.Add(1)
		go func(index int, item T) {
			defer wg.Done()

			res := BatchResult[R]{Index: index}
			if err := sem.Acquire(ctx, 1); err != nil {
				res.Err = err
			} else {
				res.Value, res.Err = runTask(ctx, index, item, fn)
				sem.Release(1)
			}
			results[index] = res

			if progress != nil {
				progressMu.Lock()
				progress(index, res)
				progressMu.Unlock()
			}
		}(i, item)
	}

	wg.Wait()
	return results
}

// runTask executes fn and converts a panic into an error so one bad task
// cannot take down the batch.
func runTask[T, R any](ctx context.Context, index int, item T, fn func(ctx context.Context, index int, item T) (R, error)) (result R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("resilience: batch task %d panicked: %v", index, r)
		}
	}()
	return fn(ctx, index, item)
}
