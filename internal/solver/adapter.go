// Package solver invokes the column transport solver for one fully
// resolved parameter set and column configuration. Adapters are
// side-effect-free from the caller's perspective and safe for concurrent
// invocation; every failure mode is reported as a typed failure result,
// never as a panic or an indefinite block.
package solver

import (
	"context"
	"errors"
	"time"

	"github.com/chromaflow/calibration-core/internal/paramspace"
	"github.com/chromaflow/calibration-core/pkg/chrom"
)

// DefaultTimeout bounds an invocation when the caller supplies none.
const DefaultTimeout = 5 * time.Minute

// Options holds per-invocation settings
type Options struct {
	// Timeout bounds the invocation wall-clock time. Zero selects
	// DefaultTimeout.
	Timeout time.Duration
	// ScratchDir is the base directory for per-invocation scratch space.
	// Empty selects the system temp directory.
	ScratchDir string
}

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return DefaultTimeout
	}
	return o.Timeout
}

// Diagnostics carries solver-side information about a completed invocation
type Diagnostics struct {
	Duration time.Duration `json:"duration"`
	Output   string        `json:"output,omitempty"`
}

// Result is the outcome of one invocation: a profile with diagnostics on
// success, or a typed failure in Err (TimeoutError, DivergenceError,
// UnavailableError, InvalidConfigError, or a context cancellation).
type Result struct {
	Profile     *chrom.Profile
	Diagnostics Diagnostics
	Err         error
}

// Failed reports whether the invocation produced no usable profile
func (r Result) Failed() bool {
	return r.Err != nil
}

// Adapter executes the solver for one parameter set and column config.
// Identical inputs yield identical profiles modulo floating-point noise.
type Adapter interface {
	Simulate(ctx context.Context, params *paramspace.Set, column *chrom.ColumnConfig, opts Options) Result
}

// Func adapts an in-process solver function into an Adapter, enforcing
// input validation and the timeout contract. It is used for synthetic
// models and tests.
type Func func(ctx context.Context, params *paramspace.Set, column *chrom.ColumnConfig) (*chrom.Profile, error)

// Simulate implements Adapter
func (f Func) Simulate(ctx context.Context, params *paramspace.Set, column *chrom.ColumnConfig, opts Options) Result {
	start := time.Now()
	if column != nil {
		if err := column.Validate(); err != nil {
			return Result{Err: &InvalidConfigError{Reason: err.Error()}}
		}
	}

	timeout := opts.timeout()
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		profile *chrom.Profile
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		profile, err := f(callCtx, params, column)
		done <- outcome{profile: profile, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			// The function may surface its context's cancellation itself;
			// classify that the same as the select branch below.
			if errors.Is(out.err, context.Canceled) || errors.Is(out.err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return Result{Err: ctx.Err()}
				}
				return Result{Err: &TimeoutError{Timeout: timeout}}
			}
			return Result{Err: &DivergenceError{Detail: out.err.Error()}}
		}
		if out.profile == nil {
			return Result{Err: &DivergenceError{Detail: "solver returned no profile"}}
		}
		if err := out.profile.Validate(); err != nil {
			return Result{Err: &DivergenceError{Detail: "solver produced invalid profile: " + err.Error()}}
		}
		return Result{
			Profile:     out.profile,
			Diagnostics: Diagnostics{Duration: time.Since(start)},
		}
	case <-callCtx.Done():
		if ctx.Err() != nil {
			// Caller cancelled; not a solver defect.
			return Result{Err: ctx.Err()}
		}
		return Result{Err: &TimeoutError{Timeout: timeout}}
	}
}
