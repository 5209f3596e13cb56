// Bounded-concurrency batch execution over any chat completer
package llm

import (
	"context"

	"github.com/quorale/go-llm/pkg/resilience"
)

// BatchResult holds the outcome of one request in a batch. Exactly one of
// Response and Err is set.
type BatchResult struct {
	Index    int
	Response *ChatResponse
	Err      error
}

// ProcessBatch executes every request against client with at most
// maxConcurrent requests in flight, returning results in submission order.
// One failing request only marks its own slot; the rest of the batch runs to
// completion.
func ProcessBatch(ctx context.Context, client ChatCompleter, requests []ChatRequest, maxConcurrent int) []BatchResult {
	return ProcessBatchWithProgress(ctx, client, requests, maxConcurrent, nil)
}

// ProcessBatchWithProgress is ProcessBatch with a callback invoked as each
// request completes, in completion order. The callback runs serialized.
func ProcessBatchWithProgress(ctx context.Context, client ChatCompleter, requests []ChatRequest, maxConcurrent int, progress func(index int, result BatchResult)) []BatchResult {
	var inner func(index int, r resilience.BatchResult[*ChatResponse])
	if progress != nil {
		inner = func(index int, r resilience.BatchResult[*ChatResponse]) {
			progress(index, BatchResult{Index: index, Response: r.Value, Err: r.Err})
		}
	}

	raw := resilience.ProcessBatchWithProgress(ctx, maxConcurrent, requests,
		func(ctx context.Context, _ int, req ChatRequest) (*ChatResponse, error) {
			return client.ChatCompletion(ctx, req)
		}, inner)

	results := make([]BatchResult, len(raw))
	for i, r := range raw {
		results[i] = BatchResult{Index: r.Index, Response: r.Value, Err: r.Err}
	}
	return results
}
