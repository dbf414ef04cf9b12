package calibration

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/chromaflow/calibration-core/internal/paramspace"
	"github.com/chromaflow/calibration-core/pkg/utils"
)

const (
	defaultGridPoints    = 5
	defaultMaxCandidates = 10000
	defaultGridShrink    = 0.5
)

// GridSearch evaluates a regular cartesian grid over the free dimensions.
// With refinement enabled each iteration re-grids a shrinking window
// centered on the incumbent best; without it the search is exhausted
// after the single full-range pass.
type GridSearch struct {
	pointsPerDim  int
	refine        bool
	maxCandidates int

	span float64 // fraction of each dimension's range covered this pass
	pass int
}

// NewGridSearch creates a grid search with pointsPerDim samples per free
// dimension. Non-positive pointsPerDim selects the default. refine keeps
// the search going by halving the grid window around the best point each
// iteration.
func NewGridSearch(pointsPerDim int, refine bool) *GridSearch {
	if pointsPerDim <= 1 {
		pointsPerDim = defaultGridPoints
	}
	return &GridSearch{
		pointsPerDim:  pointsPerDim,
		refine:        refine,
		maxCandidates: defaultMaxCandidates,
		span:          1.0,
	}
}

func (g *GridSearch) Name() string { return "grid" }

func (g *GridSearch) Propose(history []CostRecord, best *paramspace.Set) ([]*paramspace.Set, error) {
	if g.pass > 0 && !g.refine {
		return nil, nil
	}
	if g.span < 1e-9 {
		return nil, nil
	}

	free := best.FreeDimensions()
	if n := math.Pow(float64(g.pointsPerDim), float64(len(free))); n > float64(g.maxCandidates) {
		return nil, &GridTooLargeError{Points: g.pointsPerDim, Dimensions: len(free), Limit: g.maxCandidates}
	}

	axes := make([][]float64, len(free))
	for i, id := range free {
		p, _ := best.Get(id)
		half := g.span * (p.Max - p.Min) / 2
		lo := utils.ClampFloat64(p.Value-half, p.Min, p.Max)
		hi := utils.ClampFloat64(p.Value+half, p.Min, p.Max)
		axes[i] = floats.Span(make([]float64, g.pointsPerDim), lo, hi)
	}

	var candidates []*paramspace.Set
	vector := make([]float64, len(free))
	var walk func(dim int) error
	walk = func(dim int) error {
		if dim == len(free) {
			candidate, err := best.FromVector(append([]float64(nil), vector...))
			if err != nil {
				return err
			}
			candidates = append(candidates, candidate)
			return nil
		}
		for _, v := range axes[dim] {
			vector[dim] = v
			if err := walk(dim + 1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(0); err != nil {
		return nil, err
	}

	g.pass++
	return candidates, nil
}

func (g *GridSearch) Update(evals []Evaluation) {
	if g.refine {
		g.span *= defaultGridShrink
	}
}
