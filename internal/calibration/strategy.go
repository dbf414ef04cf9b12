package calibration

import (
	"github.com/chromaflow/calibration-core/internal/paramspace"
)

// Evaluation is the scored outcome of one proposed candidate, handed back
// to the strategy after each iteration's batch resolves.
type Evaluation struct {
	Params    *paramspace.Set
	Cost      float64 // +Inf for rejected candidates
	Breakdown map[string]float64
	Err       error // solver or comparator failure, nil on success
}

// Strategy proposes candidate parameter sets and digests their scores.
// The engine guarantees Propose for iteration N+1 is not called until
// every candidate of iteration N has been scored and passed to Update, so
// strategies may keep internal state keyed on that ordering.
type Strategy interface {
	// Propose returns the next candidates to evaluate given the cost
	// history and the incumbent best set. Returning no candidates ends
	// the search (the space is exhausted at the strategy's resolution).
	Propose(history []CostRecord, best *paramspace.Set) ([]*paramspace.Set, error)

	// Update feeds the scored candidates of the iteration back into the
	// strategy's internal state.
	Update(evals []Evaluation)

	// Name returns the name of the strategy
	Name() string
}
