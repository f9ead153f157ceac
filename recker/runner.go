package recker

import (
	"context"
	"sync"
	"time"
)

// ItemResult is one element of a RequestRunner/Batch outcome. Exactly one of
// Value or Err is set; ordering matches the input slice (spec §4.5: "results[i]
// is either the mapped value or an error; ordering preserved").
type ItemResult struct {
	Value *Response
	Err   error
}

// RunStats reports aggregate batch-run counters (spec §4.5, §8 S6).
type RunStats struct {
	Total      int
	Successful int
	Failed     int
	Duration   time.Duration
}

// BatchItem is one unit of work submitted to Client.Batch/Multi: a path and
// the per-request options to apply.
type BatchItem struct {
	Path string
	Opts []ReqOption
}

// BatchOptions configures a Batch/Multi call.
type BatchOptions struct {
	// Concurrency bounds how many items run at once, independent of the
	// client's global RequestPool (spec §4.5: "bounded by concurrency —
	// independent from the global limiter — both apply").
	Concurrency int

	// Retries is the per-item retry count on failure (fixed-delay policy
	// unless RetryDelay is overridden).
	Retries int

	// RetryDelay is the fixed delay between per-item retry attempts.
	RetryDelay time.Duration

	// Method is the HTTP method applied to every item (default GET).
	Method string
}

// BatchResult is the outcome of a Batch/Multi call.
type BatchResult struct {
	Results []ItemResult
	Stats   RunStats
}

// runWorker is the function a RequestRunner drives per item. It receives the
// item's index so callers can correlate results back to their own input.
type runWorker func(ctx context.Context, index int, item BatchItem) (*Response, error)

// requestRunner is a bounded-concurrency executor for a batch of items
// (spec §4.5). It never bypasses the client's RequestPool: each worker call
// still dispatches through the full middleware chain, so nesting a runner
// inside the global limiter is cooperative, not competing.
type requestRunner struct {
	concurrency int
	retries     int
	retryDelay  time.Duration
}

func newRequestRunner(opts BatchOptions, defaults RunnerConfig) *requestRunner {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaults.Concurrency
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	retries := opts.Retries
	if retries <= 0 {
		retries = defaults.Retries
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = defaults.RetryDelay
	}
	return &requestRunner{concurrency: concurrency, retries: retries, retryDelay: delay}
}

// run executes worker(items[i]) for every item, bounded by r.concurrency,
// retrying each item up to r.retries times on failure with a fixed delay.
func (r *requestRunner) run(ctx context.Context, items []BatchItem, worker runWorker) ([]ItemResult, RunStats) {
	start := time.Now()
	results := make([]ItemResult, len(items))

	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup

	for i, item := range items {
		wg.Add(1)
		go func(i int, item BatchItem) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i] = ItemResult{Err: &CancellationError{Method: item.Path, URL: item.Path, Err: ctx.Err()}}
				return
			}

			var resp *Response
			var err error
			for attempt := 0; attempt <= r.retries; attempt++ {
				resp, err = worker(ctx, i, item)
				if err == nil {
					break
				}
				if attempt < r.retries {
					select {
					case <-time.After(r.retryDelay):
					case <-ctx.Done():
						err = &CancellationError{Method: item.Path, URL: item.Path, Err: ctx.Err()}
						break
					}
				}
			}
			results[i] = ItemResult{Value: resp, Err: err}
		}(i, item)
	}

	wg.Wait()

	stats := RunStats{Total: len(items), Duration: time.Since(start)}
	for _, res := range results {
		if res.Err != nil {
			stats.Failed++
		} else {
			stats.Successful++
		}
	}
	return results, stats
}
