package solver

import (
	"fmt"
	"time"
)

// TimeoutError indicates the invocation exceeded its caller-supplied
// timeout. It is a failure result, never a panic past the boundary.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("solver timed out after %s", e.Timeout)
}

// DivergenceError indicates the solver ran but reported a numerical
// failure (non-convergence, invalid discretization).
type DivergenceError struct {
	Detail string
}

func (e *DivergenceError) Error() string {
	return "solver diverged: " + e.Detail
}

// UnavailableError indicates a process-level failure: the solver binary is
// missing, cannot be started, or crashed.
type UnavailableError struct {
	Binary string
	Reason string
}

func (e *UnavailableError) Error() string {
	if e.Binary != "" {
		return fmt.Sprintf("solver unavailable (%s): %s", e.Binary, e.Reason)
	}
	return "solver unavailable: " + e.Reason
}

// InvalidConfigError indicates contradictory or unusable input (e.g.
// impossible column geometry) detected before the solver runs.
type InvalidConfigError struct {
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return "invalid solver configuration: " + e.Reason
}
