// Package runner executes batches of solver invocations with bounded
// concurrency. Output order always matches input order regardless of
// completion order, one slot's failure never aborts its siblings, and a
// cancelled batch starts no new invocations while returning everything
// gathered so far.
package runner

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/chromaflow/calibration-core/internal/paramspace"
	"github.com/chromaflow/calibration-core/internal/solver"
	"github.com/chromaflow/calibration-core/pkg/chrom"
	"github.com/chromaflow/calibration-core/pkg/logger"
)

// ErrNotStarted marks a batch slot whose invocation was never started
// because the batch was cancelled first.
var ErrNotStarted = errors.New("invocation cancelled before start")

// Request is one solver invocation within a batch
type Request struct {
	Params  *paramspace.Set
	Column  *chrom.ColumnConfig
	Options solver.Options
}

// BatchResult holds per-slot results in request order. Cancelled is set
// when the batch was interrupted; unstarted slots carry ErrNotStarted.
type BatchResult struct {
	Results   []solver.Result
	Cancelled bool
}

// Runner schedules solver invocations onto a bounded worker pool. The
// runner itself is a single-threaded controller: it owns the pool for the
// duration of a batch and releases every resource on all exit paths.
type Runner struct {
	adapter        solver.Adapter
	maxConcurrency int
}

// DefaultConcurrency returns the default worker bound: one less than the
// machine's CPU count, floor 1.
func DefaultConcurrency() int {
	n := runtime.NumCPU() - 1
	if n < 1 {
		n = 1
	}
	return n
}

// New creates a runner. maxConcurrency <= 0 selects DefaultConcurrency.
func New(adapter solver.Adapter, maxConcurrency int) *Runner {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultConcurrency()
	}
	return &Runner{
		adapter:        adapter,
		maxConcurrency: maxConcurrency,
	}
}

// RunBatch executes all requests and blocks until every started
// invocation has resolved. Cancelling ctx stops new invocations from
// starting; in-flight ones observe the cancellation through their own
// context and resolve promptly.
func (r *Runner) RunBatch(ctx context.Context, requests []Request) *BatchResult {
	batch := &BatchResult{
		Results: make([]solver.Result, len(requests)),
	}
	if len(requests) == 0 {
		return batch
	}

	semaphore := make(chan struct{}, r.maxConcurrency)
	var wg sync.WaitGroup

	for i := range requests {
		// Stop launching once the batch is cancelled; remaining slots
		// are marked rather than dropped so output length is stable.
		if ctx.Err() != nil {
			batch.Results[i] = solver.Result{Err: ErrNotStarted}
			batch.Cancelled = true
			continue
		}

		wg.Add(1)
		go func(idx int, req Request) {
			defer wg.Done()

			select {
			case semaphore <- struct{}{}:
			case <-ctx.Done():
				batch.Results[idx] = solver.Result{Err: ErrNotStarted}
				return
			}
			defer func() { <-semaphore }()

			batch.Results[idx] = r.adapter.Simulate(ctx, req.Params, req.Column, req.Options)
		}(i, requests[i])
	}

	wg.Wait()

	if ctx.Err() != nil {
		batch.Cancelled = true
	}
	for _, res := range batch.Results {
		if errors.Is(res.Err, ErrNotStarted) {
			batch.Cancelled = true
			break
		}
	}

	if batch.Cancelled {
		logger.Debug("batch cancelled", "requests", len(requests))
	}
	return batch
}
