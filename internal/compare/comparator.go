// Package compare quantifies the disagreement between a simulated and an
// experimental chromatogram: the simulated profile is resampled onto the
// experimental time grid, per-species error norms are computed over the
// aligned samples, and the per-species values are aggregated into a single
// scalar cost (lower is better, zero only for identical profiles).
package compare

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"

	"github.com/chromaflow/calibration-core/pkg/chrom"
)

// Norm selects the per-species residual norm
type Norm string

const (
	// NormRMS is the root-mean-square of per-sample residuals (default)
	NormRMS Norm = "rms"
	// NormNoiseWeightedRMS divides each residual by the experimental
	// series' noise sigma before the RMS
	NormNoiseWeightedRMS Norm = "noise_weighted_rms"
	// NormMaxAbs is the maximum absolute residual
	NormMaxAbs Norm = "max_abs"
)

// Tolerance for treating two time grids as identical.
const gridEpsilon = 1e-12

// Options configures a comparison
type Options struct {
	// Norm selects the residual norm; empty selects NormRMS.
	Norm Norm
	// SpeciesWeights scales each species' contribution to the scalar
	// cost. Species absent from the map get weight 1.
	SpeciesWeights map[string]float64
	// ClampExtrapolation evaluates the simulated profile at its boundary
	// value for experimental times outside its range instead of failing
	// with RangeError.
	ClampExtrapolation bool
	// PeakTimeWeight adds a |peak time difference| term per species when
	// positive. PeakHeightWeight does the same for peak height, and
	// PeakSlopeWeight for the slope of the peak's trailing edge.
	PeakTimeWeight   float64
	PeakHeightWeight float64
	PeakSlopeWeight  float64
}

// Breakdown retains per-species diagnostics alongside the scalar cost
type Breakdown struct {
	PerSpecies map[string]float64 `json:"per_species"`
	PeakTime   map[string]float64 `json:"peak_time,omitempty"`
	PeakHeight map[string]float64 `json:"peak_height,omitempty"`
	PeakSlope  map[string]float64 `json:"peak_slope,omitempty"`
}

// Compare computes the scalar cost and per-species breakdown between a
// simulated and an experimental profile. Every species present in the
// experimental profile must be present in the simulated one.
func Compare(simulated, experimental *chrom.Profile, opts Options) (float64, *Breakdown, error) {
	if simulated == nil || simulated.Len() == 0 || len(simulated.Series) == 0 {
		return 0, nil, &EmptyProfileError{Role: "simulated"}
	}
	if experimental == nil || experimental.Len() == 0 || len(experimental.Series) == 0 {
		return 0, nil, &EmptyProfileError{Role: "experimental"}
	}
	// Structural defects (series shorter than the grid, non-increasing
	// times) would otherwise surface as panics inside gonum.
	if err := simulated.Validate(); err != nil {
		return 0, nil, fmt.Errorf("invalid simulated profile: %w", err)
	}
	if err := experimental.Validate(); err != nil {
		return 0, nil, fmt.Errorf("invalid experimental profile: %w", err)
	}

	norm := opts.Norm
	if norm == "" {
		norm = NormRMS
	}
	switch norm {
	case NormRMS, NormNoiseWeightedRMS, NormMaxAbs:
	default:
		return 0, nil, fmt.Errorf("unknown norm: %s", norm)
	}

	breakdown := &Breakdown{PerSpecies: make(map[string]float64, len(experimental.Series))}
	if opts.PeakTimeWeight > 0 {
		breakdown.PeakTime = make(map[string]float64)
	}
	if opts.PeakHeightWeight > 0 {
		breakdown.PeakHeight = make(map[string]float64)
	}
	if opts.PeakSlopeWeight > 0 {
		breakdown.PeakSlope = make(map[string]float64)
	}

	total := 0.0
	for i := range experimental.Series {
		exp := &experimental.Series[i]
		sim, ok := simulated.Find(exp.Species)
		if !ok {
			return 0, nil, &SpeciesMismatchError{Species: exp.Species}
		}

		aligned, err := alignSeries(simulated.Times, sim.Values, experimental.Times, opts.ClampExtrapolation)
		if err != nil {
			return 0, nil, err
		}

		cost := seriesNorm(aligned, exp.Values, exp.NoiseSigma, norm)
		breakdown.PerSpecies[exp.Species] = cost

		if opts.PeakTimeWeight > 0 {
			simPeakT, _ := peak(experimental.Times, aligned)
			expPeakT, _ := peak(experimental.Times, exp.Values)
			term := opts.PeakTimeWeight * math.Abs(simPeakT-expPeakT)
			breakdown.PeakTime[exp.Species] = term
			cost += term
		}
		if opts.PeakHeightWeight > 0 {
			_, simPeakH := peak(experimental.Times, aligned)
			_, expPeakH := peak(experimental.Times, exp.Values)
			term := opts.PeakHeightWeight * math.Abs(simPeakH-expPeakH)
			breakdown.PeakHeight[exp.Species] = term
			cost += term
		}
		if opts.PeakSlopeWeight > 0 {
			simSlope := trailingSlope(experimental.Times, aligned)
			expSlope := trailingSlope(experimental.Times, exp.Values)
			term := opts.PeakSlopeWeight * math.Abs(simSlope-expSlope)
			breakdown.PeakSlope[exp.Species] = term
			cost += term
		}

		weight := 1.0
		if w, ok := opts.SpeciesWeights[exp.Species]; ok {
			weight = w
		}
		total += weight * cost
	}

	return total, breakdown, nil
}

// alignSeries resamples the simulated values onto the experimental time
// grid with linear interpolation. Identical grids pass through untouched.
func alignSeries(simTimes, simValues, expTimes []float64, clamp bool) ([]float64, error) {
	if len(simTimes) == len(expTimes) && floats.EqualApprox(simTimes, expTimes, gridEpsilon) {
		return simValues, nil
	}

	lo, hi := simTimes[0], simTimes[len(simTimes)-1]
	if !clamp {
		for _, t := range expTimes {
			if t < lo || t > hi {
				return nil, &RangeError{Time: t, Min: lo, Max: hi}
			}
		}
	}

	if len(simTimes) < 2 {
		// A single-sample simulated profile has no segments to
		// interpolate; every grid point takes its value.
		aligned := make([]float64, len(expTimes))
		for i := range aligned {
			aligned[i] = simValues[0]
		}
		return aligned, nil
	}

	var pl interp.PiecewiseLinear
	if err := pl.Fit(simTimes, simValues); err != nil {
		return nil, fmt.Errorf("failed to fit interpolant: %w", err)
	}

	aligned := make([]float64, len(expTimes))
	for i, t := range expTimes {
		switch {
		case t < lo:
			aligned[i] = simValues[0]
		case t > hi:
			aligned[i] = simValues[len(simValues)-1]
		default:
			aligned[i] = pl.Predict(t)
		}
	}
	return aligned, nil
}

// seriesNorm computes the residual norm between aligned simulated values
// and experimental values.
func seriesNorm(sim, exp []float64, noiseSigma float64, norm Norm) float64 {
	switch norm {
	case NormMaxAbs:
		maxAbs := 0.0
		for i := range sim {
			if r := math.Abs(sim[i] - exp[i]); r > maxAbs {
				maxAbs = r
			}
		}
		return maxAbs
	case NormNoiseWeightedRMS:
		sigma := noiseSigma
		if sigma <= 0 {
			sigma = 1
		}
		sumSq := 0.0
		for i := range sim {
			r := (sim[i] - exp[i]) / sigma
			sumSq += r * r
		}
		return math.Sqrt(sumSq / float64(len(sim)))
	default: // NormRMS
		return floats.Distance(sim, exp, 2) / math.Sqrt(float64(len(sim)))
	}
}

// peak returns the time and height of the maximum concentration sample
func peak(times, values []float64) (peakTime, peakHeight float64) {
	idx := 0
	for i := range values {
		if values[i] > values[idx] {
			idx = i
		}
	}
	return times[idx], values[idx]
}

// trailingSlope is the mean slope from the peak down to the first trailing
// sample at or below a tenth of the peak height, or to the last sample when
// the tail never drops that far. Zero when the peak is the last sample.
func trailingSlope(times, values []float64) float64 {
	peakIdx := 0
	for i := range values {
		if values[i] > values[peakIdx] {
			peakIdx = i
		}
	}
	if peakIdx == len(values)-1 || values[peakIdx] <= 0 {
		return 0
	}
	end := len(values) - 1
	for i := peakIdx + 1; i < len(values); i++ {
		if values[i] <= 0.1*values[peakIdx] {
			end = i
			break
		}
	}
	return (values[end] - values[peakIdx]) / (times[end] - times[peakIdx])
}
