// Package calibration drives the search loop that fits solver parameters
// to an experimental chromatogram. Each iteration a pluggable strategy
// proposes candidate parameter sets, the runner simulates them with
// bounded concurrency, the comparator scores the resulting profiles, and
// the engine folds the scores back into the strategy until the search
// converges, exhausts its iteration budget, fails, or is cancelled.
package calibration

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/chromaflow/calibration-core/internal/compare"
	"github.com/chromaflow/calibration-core/internal/paramspace"
	"github.com/chromaflow/calibration-core/internal/runner"
	"github.com/chromaflow/calibration-core/internal/solver"
	"github.com/chromaflow/calibration-core/pkg/chrom"
	"github.com/chromaflow/calibration-core/pkg/logger"
	"github.com/chromaflow/calibration-core/pkg/utils"
)

const defaultMaxIterations = 100

// ProgressFunc observes the run after every iteration and on terminal
// transitions. The snapshot passed in is a private copy.
type ProgressFunc func(run *Run)

// Engine owns one calibration run. The search loop itself is
// single-threaded; parallelism lives inside the runner's batches.
// Snapshot may be called concurrently with Calibrate.
type Engine struct {
	runner       *runner.Runner
	experimental *chrom.Profile
	column       *chrom.ColumnConfig
	initial      *paramspace.Set

	strategy      Strategy
	detector      *Detector
	retry         *RetryPolicy
	compareOpts   compare.Options
	solverOpts    solver.Options
	maxIterations int
	budget        time.Duration
	progress      ProgressFunc

	mu      sync.RWMutex
	run     *Run
	started bool
}

// NewEngine creates an engine over a runner, the experimental reference
// profile, the column configuration, and the initial parameter set. The
// default setup uses compass search, the default convergence detector,
// and a 100-iteration limit.
func NewEngine(r *runner.Runner, experimental *chrom.Profile, column *chrom.ColumnConfig, initial *paramspace.Set) (*Engine, error) {
	if r == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if experimental == nil {
		return nil, fmt.Errorf("experimental profile cannot be nil")
	}
	if err := experimental.Validate(); err != nil {
		return nil, fmt.Errorf("invalid experimental profile: %w", err)
	}
	if initial == nil || len(initial.FreeDimensions()) == 0 {
		return nil, ErrNoFreeParameters
	}
	return &Engine{
		runner:        r,
		experimental:  experimental,
		column:        column,
		initial:       initial.Clone(),
		strategy:      NewCompassSearch(0, 0),
		detector:      NewDetector(0, 0, 0),
		maxIterations: defaultMaxIterations,
		run: &Run{
			ID:    utils.GenerateRunID(),
			State: StateInitialized,
		},
	}, nil
}

// WithStrategy replaces the search strategy
func (e *Engine) WithStrategy(s Strategy) *Engine {
	e.strategy = s
	return e
}

// WithDetector replaces the convergence detector
func (e *Engine) WithDetector(d *Detector) *Engine {
	e.detector = d
	return e
}

// WithRetryPolicy enables one perturbed retry for solver-failed candidates
func (e *Engine) WithRetryPolicy(p *RetryPolicy) *Engine {
	e.retry = p
	return e
}

// WithCompareOptions sets the comparator options used for scoring
func (e *Engine) WithCompareOptions(opts compare.Options) *Engine {
	e.compareOpts = opts
	return e
}

// WithSolverOptions sets the per-invocation solver options
func (e *Engine) WithSolverOptions(opts solver.Options) *Engine {
	e.solverOpts = opts
	return e
}

// WithMaxIterations caps the number of search iterations. Values below 1
// keep the default.
func (e *Engine) WithMaxIterations(n int) *Engine {
	if n >= 1 {
		e.maxIterations = n
	}
	return e
}

// WithBudget caps the run's wall-clock duration. Zero disables the cap.
func (e *Engine) WithBudget(d time.Duration) *Engine {
	e.budget = d
	return e
}

// WithProgress registers a per-iteration observer
func (e *Engine) WithProgress(fn ProgressFunc) *Engine {
	e.progress = fn
	return e
}

// WithID overrides the generated run ID
func (e *Engine) WithID(id string) *Engine {
	e.run.ID = id
	return e
}

// ID returns the run's identifier
func (e *Engine) ID() string {
	return e.run.ID
}

// Snapshot returns a copy of the run's current state, safe to read while
// the calibration is in flight.
func (e *Engine) Snapshot() *Run {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.run.clone()
}

// Calibrate executes the search to a terminal state and returns the final
// run. It may be called at most once per engine. The returned run is
// non-nil whenever err is nil; its best result is reported regardless of
// which terminal state ended the search.
func (e *Engine) Calibrate(ctx context.Context) (*Run, error) {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	e.started = true
	e.run.State = StateRunning
	e.run.StartedAt = time.Now()
	e.mu.Unlock()

	logger.Info("calibration started",
		"run_id", e.run.ID,
		"strategy", e.strategy.Name(),
		"max_iterations", e.maxIterations,
		"free_dimensions", len(e.initial.FreeDimensions()))

	best := e.initial.Clone()
	bestCost := math.Inf(1)
	trajectory := make([]float64, 0, e.maxIterations)
	started := time.Now()

	for iteration := 1; iteration <= e.maxIterations; iteration++ {
		if ctx.Err() != nil {
			return e.finish(StateCancelled, fmt.Sprintf("cancelled before iteration %d", iteration)), nil
		}
		if e.budget > 0 && time.Since(started) >= e.budget {
			return e.finish(StateMaxIterations, fmt.Sprintf("wall-clock budget %s exhausted", e.budget)), nil
		}

		candidates, err := e.strategy.Propose(e.run.Records, best)
		if err != nil {
			e.finish(StateFailed, fmt.Sprintf("strategy %s: %v", e.strategy.Name(), err))
			return nil, fmt.Errorf("propose iteration %d: %w", iteration, err)
		}
		if len(candidates) == 0 {
			return e.finish(StateConverged, fmt.Sprintf("strategy %s exhausted its search space", e.strategy.Name())), nil
		}

		batch, candidates, cancelled := e.evaluate(ctx, candidates)
		if cancelled {
			return e.finish(StateCancelled, fmt.Sprintf("cancelled during iteration %d", iteration)), nil
		}

		evals, solverFailures := e.score(iteration, candidates, batch)
		e.strategy.Update(evals)

		if solverFailures == len(candidates) {
			return e.finish(StateFailed, fmt.Sprintf("all %d candidates failed at the solver in iteration %d", len(candidates), iteration)), nil
		}

		for _, ev := range evals {
			if ev.Cost < bestCost {
				bestCost = ev.Cost
				best = ev.Params.Clone()
				e.mu.Lock()
				e.run.Best = &Best{
					Params:    best.Parameters(),
					Cost:      bestCost,
					Iteration: iteration,
				}
				e.mu.Unlock()
			}
		}
		trajectory = append(trajectory, bestCost)

		logger.Debug("iteration complete",
			"run_id", e.run.ID,
			"iteration", iteration,
			"candidates", len(candidates),
			"solver_failures", solverFailures,
			"best_cost", bestCost)
		e.notify()

		if converged, reason := e.detector.Check(trajectory); converged {
			return e.finish(StateConverged, reason), nil
		}
	}

	return e.finish(StateMaxIterations, fmt.Sprintf("iteration limit %d reached", e.maxIterations)), nil
}

// evaluate runs one iteration's candidates through the solver, giving
// failed slots a single perturbed retry when a retry policy is set. It
// returns the per-slot results, the candidates actually scored (retried
// slots carry the perturbed set), and whether the batch was cancelled.
func (e *Engine) evaluate(ctx context.Context, candidates []*paramspace.Set) ([]solver.Result, []*paramspace.Set, bool) {
	requests := make([]runner.Request, len(candidates))
	for i, candidate := range candidates {
		requests[i] = runner.Request{
			Params:  candidate,
			Column:  e.column,
			Options: e.solverOpts,
		}
	}
	batch := e.runner.RunBatch(ctx, requests)
	if batch.Cancelled {
		return nil, nil, true
	}
	if e.retry == nil {
		return batch.Results, candidates, false
	}

	var retryIdx []int
	var retryReqs []runner.Request
	retried := make([]*paramspace.Set, len(candidates))
	for i, res := range batch.Results {
		if res.Err == nil {
			continue
		}
		perturbed, err := e.retry.Perturb(candidates[i])
		if err != nil {
			continue
		}
		retried[i] = perturbed
		retryIdx = append(retryIdx, i)
		retryReqs = append(retryReqs, runner.Request{
			Params:  perturbed,
			Column:  e.column,
			Options: e.solverOpts,
		})
	}
	if len(retryReqs) == 0 {
		return batch.Results, candidates, false
	}

	logger.Debug("retrying failed candidates", "run_id", e.run.ID, "count", len(retryReqs))
	retryBatch := e.runner.RunBatch(ctx, retryReqs)
	if retryBatch.Cancelled {
		return nil, nil, true
	}
	scored := append([]*paramspace.Set(nil), candidates...)
	for n, i := range retryIdx {
		if retryBatch.Results[n].Err == nil {
			batch.Results[i] = retryBatch.Results[n]
			scored[i] = retried[i]
		}
	}
	return batch.Results, scored, false
}

// score turns solver results into evaluations and appends one cost record
// per candidate. Failed slots score +Inf and keep the failure detail.
func (e *Engine) score(iteration int, candidates []*paramspace.Set, results []solver.Result) ([]Evaluation, int) {
	evals := make([]Evaluation, len(candidates))
	records := make([]CostRecord, len(candidates))
	solverFailures := 0

	for i, res := range results {
		ev := Evaluation{Params: candidates[i], Cost: math.Inf(1)}
		if res.Err != nil {
			ev.Err = res.Err
			solverFailures++
		} else {
			cost, breakdown, err := compare.Compare(res.Profile, e.experimental, e.compareOpts)
			if err != nil {
				ev.Err = err
			} else {
				ev.Cost = cost
				ev.Breakdown = breakdown.PerSpecies
			}
		}
		evals[i] = ev

		record := CostRecord{
			Iteration: iteration,
			Params:    candidates[i].Parameters(),
			Cost:      ev.Cost,
			Breakdown: ev.Breakdown,
			Timestamp: time.Now(),
		}
		if ev.Err != nil {
			record.Failure = ev.Err.Error()
		}
		records[i] = record
	}

	e.mu.Lock()
	e.run.Records = append(e.run.Records, records...)
	e.run.Iterations = iteration
	e.mu.Unlock()
	return evals, solverFailures
}

// finish moves the run to a terminal state and returns the final snapshot
func (e *Engine) finish(state State, reason string) *Run {
	e.mu.Lock()
	e.run.State = state
	e.run.Reason = reason
	e.run.EndedAt = time.Now()
	e.mu.Unlock()

	logger.Info("calibration finished",
		"run_id", e.run.ID,
		"state", string(state),
		"reason", reason,
		"iterations", e.run.Iterations)
	e.notify()
	return e.Snapshot()
}

func (e *Engine) notify() {
	if e.progress != nil {
		e.progress(e.Snapshot())
	}
}
