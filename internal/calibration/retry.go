package calibration

import (
	"github.com/chromaflow/calibration-core/internal/paramspace"
	"github.com/chromaflow/calibration-core/pkg/utils"
)

const defaultPerturbFraction = 0.01

// RetryPolicy resubmits solver-failed candidates once with a small random
// perturbation. A slot whose retry also fails keeps its original failure.
type RetryPolicy struct {
	// PerturbFraction scales the normal perturbation sigma per dimension
	// as a fraction of the dimension's range.
	PerturbFraction float64

	rng *utils.RandSource
}

// NewRetryPolicy creates a retry policy. Non-positive fraction selects
// the default; a seed of 0 selects a time-based seed.
func NewRetryPolicy(perturbFraction float64, seed int64) *RetryPolicy {
	if perturbFraction <= 0 {
		perturbFraction = defaultPerturbFraction
	}
	return &RetryPolicy{
		PerturbFraction: perturbFraction,
		rng:             utils.NewRandSource(seed),
	}
}

// Perturb returns a copy of the candidate with every free dimension
// nudged by a bounded normal perturbation.
func (p *RetryPolicy) Perturb(candidate *paramspace.Set) (*paramspace.Set, error) {
	perturbed := candidate.Clone()
	for _, id := range perturbed.FreeDimensions() {
		param, _ := perturbed.Get(id)
		sigma := p.PerturbFraction * (param.Max - param.Min)
		value := utils.ClampFloat64(p.rng.NormFloat64(param.Value, sigma), param.Min, param.Max)
		if err := perturbed.Set(id, value); err != nil {
			return nil, err
		}
	}
	return perturbed, nil
}
