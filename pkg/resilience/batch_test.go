package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessBatchPreservesSubmissionOrder(t *testing.T) {
	t.Parallel()

	items := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	results := ProcessBatch(context.Background(), 3, items, func(ctx context.Context, index int, item int) (string, error) {
		// Earlier tasks finish later so completion order differs from
		// submission order.
		time.Sleep(time.Duration(10-index) * time.Millisecond)
		return fmt.Sprintf("item-%d", item), nil
	})

	require.Len(t, results, 10)
	for i, r := range results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, fmt.Sprintf("item-%d", i), r.Value)
		assert.NoError(t, r.Err)
	}
}

func TestProcessBatchBoundsConcurrency(t *testing.T) {
	t.Parallel()

	var inFlight, peak int64
	items := make([]int, 20)

	ProcessBatch(context.Background(), 3, items, func(ctx context.Context, index int, item int) (int, error) {
		n := atomic.AddInt64(&inFlight, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		return 0, nil
	})

	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(3))
	assert.Greater(t, atomic.LoadInt64(&peak), int64(0))
}

func TestProcessBatchIsolatesFailures(t *testing.T) {
	t.Parallel()

	boom := errors.New("task blew up")
	items := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	results := ProcessBatch(context.Background(), 3, items, func(ctx context.Context, index int, item int) (int, error) {
		if index == 4 {
			return 0, boom
		}
		return item * 2, nil
	})

	for i, r := range results {
		if i == 4 {
			assert.ErrorIs(t, r.Err, boom)
			continue
		}
		assert.NoError(t, r.Err, "task %d must be unaffected by the failure at index 4", i)
		assert.Equal(t, i*2, r.Value)
	}
}

func TestProcessBatchIsolatesPanics(t *testing.T) {
	t.Parallel()

	items := []int{0, 1, 2}
	results := ProcessBatch(context.Background(), 2, items, func(ctx context.Context, index int, item int) (int, error) {
		if index == 1 {
			panic("unexpected state")
		}
		return item, nil
	})

	assert.NoError(t, results[0].Err)
	require.Error(t, results[1].Err)
	assert.Contains(t, results[1].Err.Error(), "panicked")
	assert.NoError(t, results[2].Err)
}

func TestProcessBatchWithProgressReportsEveryTask(t *testing.T) {
	t.Parallel()

	var reported []int
	items := []int{0, 1, 2, 3, 4}

	ProcessBatchWithProgress(context.Background(), 2, items,
		func(ctx context.Context, index int, item int) (int, error) {
			return item, nil
		},
		func(index int, result BatchResult[int]) {
			// The callback is serialized, so no locking is needed here.
			reported = append(reported, index)
		})

	assert.Len(t, reported, 5)
	seen := map[int]bool{}
	for _, idx := range reported {
		seen[idx] = true
	}
	assert.Len(t, seen, 5, "every index must be reported exactly once")
}

func TestProcessBatchEmptyInput(t *testing.T) {
	t.Parallel()

	results := ProcessBatch(context.Background(), 3, []int{}, func(ctx context.Context, index int, item int) (int, error) {
		return 0, nil
	})
	assert.Empty(t, results)
}

func TestProcessBatchCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := ProcessBatch(ctx, 1, []int{0, 1}, func(ctx context.Context, index int, item int) (int, error) {
		return item, nil
	})

	// Semaphore acquisition fails on a dead context, each slot gets the error.
	for _, r := range results {
		assert.Error(t, r.Err)
	}
}

func TestProcessBatchNonPositiveConcurrency(t *testing.T) {
	t.Parallel()

	results := ProcessBatch(context.Background(), 0, []int{1, 2}, func(ctx context.Context, index int, item int) (int, error) {
		return item, nil
	})
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.NoError(t, results[1].Err)
}
