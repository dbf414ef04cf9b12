package calibration

import (
	"encoding/json"
	"math"
	"time"

	"github.com/chromaflow/calibration-core/internal/paramspace"
)

// State is the lifecycle state of a calibration run
type State string

const (
	StateInitialized   State = "initialized"
	StateRunning       State = "running"
	StateConverged     State = "converged"
	StateMaxIterations State = "max_iterations"
	StateFailed        State = "failed"
	StateCancelled     State = "cancelled"
)

// Terminal reports whether the state is final
func (s State) Terminal() bool {
	switch s {
	case StateConverged, StateMaxIterations, StateFailed, StateCancelled:
		return true
	}
	return false
}

// CostRecord is one scored candidate: a parameter snapshot, its scalar
// cost and per-species breakdown, and the failure detail when the cost is
// infinite. Records are append-only and never mutated after insertion.
type CostRecord struct {
	Iteration int                    `json:"iteration"`
	Params    []paramspace.Parameter `json:"params"`
	Cost      float64                `json:"cost"`
	Breakdown map[string]float64     `json:"breakdown,omitempty"`
	Failure   string                 `json:"failure,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// MarshalJSON renders an infinite cost (a rejected candidate) as null so
// the record stays serializable.
func (r CostRecord) MarshalJSON() ([]byte, error) {
	type alias CostRecord
	out := struct {
		alias
		Cost any `json:"cost"`
	}{alias: alias(r)}
	if math.IsInf(r.Cost, 0) || math.IsNaN(r.Cost) {
		out.Cost = nil
	} else {
		out.Cost = r.Cost
	}
	return json.Marshal(out)
}

// Best is the lowest-cost parameter set seen across a run
type Best struct {
	Params    []paramspace.Parameter `json:"params"`
	Cost      float64                `json:"cost"`
	Iteration int                    `json:"iteration"`
}

// Run is the calibration aggregate: the full append-only cost history,
// the best result found, and the terminal outcome. It is mutated only by
// the engine's controlling goroutine and is immutable once terminal.
type Run struct {
	ID         string       `json:"id"`
	State      State        `json:"state"`
	Reason     string       `json:"reason,omitempty"`
	Iterations int          `json:"iterations"`
	Records    []CostRecord `json:"records"`
	Best       *Best        `json:"best,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	EndedAt    time.Time    `json:"ended_at,omitzero"`
}

// clone returns a copy safe for concurrent readers while the engine is
// still appending.
func (r *Run) clone() *Run {
	if r == nil {
		return nil
	}
	cloned := *r
	cloned.Records = make([]CostRecord, len(r.Records))
	copy(cloned.Records, r.Records)
	if r.Best != nil {
		best := *r.Best
		best.Params = append([]paramspace.Parameter(nil), r.Best.Params...)
		cloned.Best = &best
	}
	return &cloned
}
