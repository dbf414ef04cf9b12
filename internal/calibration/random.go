package calibration

import (
	"github.com/chromaflow/calibration-core/internal/paramspace"
	"github.com/chromaflow/calibration-core/pkg/utils"
)

const defaultRandomSamples = 20

// RandomSearch samples candidates uniformly within each free dimension's
// bounds, independently every iteration. It never exhausts; termination
// comes from the iteration limit or convergence detection.
type RandomSearch struct {
	samples int
	rng     *utils.RandSource
}

// NewRandomSearch creates a random search drawing the given number of
// samples per iteration. A seed of 0 selects a time-based seed.
func NewRandomSearch(samples int, seed int64) *RandomSearch {
	if samples <= 0 {
		samples = defaultRandomSamples
	}
	return &RandomSearch{
		samples: samples,
		rng:     utils.NewRandSource(seed),
	}
}

func (r *RandomSearch) Name() string { return "random" }

func (r *RandomSearch) Propose(history []CostRecord, best *paramspace.Set) ([]*paramspace.Set, error) {
	free := best.FreeDimensions()
	candidates := make([]*paramspace.Set, 0, r.samples)
	vector := make([]float64, len(free))
	for n := 0; n < r.samples; n++ {
		for i, id := range free {
			p, _ := best.Get(id)
			vector[i] = r.rng.UniformFloat64(p.Min, p.Max)
		}
		candidate, err := best.FromVector(vector)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

func (r *RandomSearch) Update(evals []Evaluation) {}
