package calibration

import (
	"math"

	"github.com/chromaflow/calibration-core/internal/paramspace"
	"github.com/chromaflow/calibration-core/pkg/utils"
)

const (
	defaultStepFraction = 0.25
	defaultMinStep      = 1e-6
	defaultContraction  = 0.5
)

// CompassSearch is a pattern search: each iteration probes the incumbent
// best in both directions along every free dimension, stepping a fraction
// of the dimension's range. Iterations without improvement contract the
// step; the search is exhausted once the step falls below its floor.
type CompassSearch struct {
	stepFraction float64
	minStep      float64
	contraction  float64

	step     float64
	lastBest float64
}

// NewCompassSearch creates a compass search starting at the given step
// fraction of each dimension's range. Non-positive arguments select the
// defaults.
func NewCompassSearch(stepFraction, minStep float64) *CompassSearch {
	if stepFraction <= 0 {
		stepFraction = defaultStepFraction
	}
	if minStep <= 0 {
		minStep = defaultMinStep
	}
	return &CompassSearch{
		stepFraction: stepFraction,
		minStep:      minStep,
		contraction:  defaultContraction,
		step:         stepFraction,
		lastBest:     math.Inf(1),
	}
}

func (c *CompassSearch) Name() string { return "compass" }

// Propose returns up to 2 candidates per free dimension around the
// incumbent. Candidates whose step lands outside the bounds are clamped
// to the bound; a clamp that collapses onto the incumbent value is
// dropped rather than re-evaluated.
func (c *CompassSearch) Propose(history []CostRecord, best *paramspace.Set) ([]*paramspace.Set, error) {
	if c.step < c.minStep {
		return nil, nil
	}

	free := best.FreeDimensions()
	candidates := make([]*paramspace.Set, 0, 2*len(free))
	for _, id := range free {
		p, _ := best.Get(id)
		delta := c.step * (p.Max - p.Min)
		for _, dir := range []float64{+1, -1} {
			value := utils.ClampFloat64(p.Value+dir*delta, p.Min, p.Max)
			if value == p.Value {
				continue
			}
			candidate := best.Clone()
			if err := candidate.Set(id, value); err != nil {
				return nil, err
			}
			candidates = append(candidates, candidate)
		}
	}
	return candidates, nil
}

// Update contracts the step when no candidate improved on the best cost
// seen so far.
func (c *CompassSearch) Update(evals []Evaluation) {
	improved := false
	for _, ev := range evals {
		if ev.Cost < c.lastBest {
			c.lastBest = ev.Cost
			improved = true
		}
	}
	if !improved {
		c.step *= c.contraction
	}
}
