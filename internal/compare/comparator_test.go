package compare

import (
	"errors"
	"math"
	"testing"

	"github.com/chromaflow/calibration-core/pkg/chrom"
)

func flatProfile(species string, times []float64, values []float64) *chrom.Profile {
	return &chrom.Profile{
		Times:  times,
		Series: []chrom.Series{{Species: species, Values: values}},
	}
}

func TestCompareIdenticalProfilesIsZero(t *testing.T) {
	p := flatProfile("protein_a", []float64{0, 1, 2, 3}, []float64{0, 0.5, 1.0, 0.2})
	cost, breakdown, err := Compare(p, p.Clone(), Options{})
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if cost != 0 {
		t.Errorf("Expected zero cost for identical profiles, got %g", cost)
	}
	if breakdown.PerSpecies["protein_a"] != 0 {
		t.Errorf("Expected zero species cost, got %g", breakdown.PerSpecies["protein_a"])
	}
}

func TestCompareIsPositiveForDifferingProfiles(t *testing.T) {
	exp := flatProfile("protein_a", []float64{0, 1, 2, 3}, []float64{0, 0.5, 1.0, 0.2})
	sim := flatProfile("protein_a", []float64{0, 1, 2, 3}, []float64{0, 0.4, 1.1, 0.2})
	cost, _, err := Compare(sim, exp, Options{})
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if cost <= 0 {
		t.Errorf("Expected positive cost, got %g", cost)
	}
	// RMS over residuals (0, 0.1, 0.1, 0): sqrt(0.02/4)
	want := math.Sqrt(0.02 / 4)
	if math.Abs(cost-want) > 1e-12 {
		t.Errorf("Expected cost %g, got %g", want, cost)
	}
}

func TestCompareAlignsDifferentGrids(t *testing.T) {
	// Simulated on a finer grid; both profiles sample the same line
	// y = 2t, so interpolation onto the coarse grid must be exact.
	simTimes := []float64{0, 0.5, 1, 1.5, 2, 2.5, 3}
	simValues := make([]float64, len(simTimes))
	for i, ts := range simTimes {
		simValues[i] = 2 * ts
	}
	sim := flatProfile("protein_a", simTimes, simValues)
	exp := flatProfile("protein_a", []float64{0.25, 1.25, 2.75}, []float64{0.5, 2.5, 5.5})

	cost, _, err := Compare(sim, exp, Options{})
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if cost > 1e-12 {
		t.Errorf("Expected near-zero cost after alignment, got %g", cost)
	}
}

func TestCompareRangeError(t *testing.T) {
	sim := flatProfile("protein_a", []float64{1, 2, 3}, []float64{0, 1, 0})
	exp := flatProfile("protein_a", []float64{0, 2, 3}, []float64{0.5, 1, 0})

	var rangeErr *RangeError
	if _, _, err := Compare(sim, exp, Options{}); !errors.As(err, &rangeErr) {
		t.Fatalf("Expected RangeError, got %v", err)
	}
	if rangeErr.Time != 0 {
		t.Errorf("Expected offending time 0, got %g", rangeErr.Time)
	}

	// With explicit clamping the comparison succeeds using boundary values.
	cost, _, err := Compare(sim, exp, Options{ClampExtrapolation: true})
	if err != nil {
		t.Fatalf("Compare with clamp failed: %v", err)
	}
	if cost <= 0 {
		t.Errorf("Expected positive cost, got %g", cost)
	}
}

func TestCompareSpeciesMismatch(t *testing.T) {
	sim := flatProfile("protein_a", []float64{0, 1}, []float64{0, 1})
	exp := &chrom.Profile{
		Times: []float64{0, 1},
		Series: []chrom.Series{
			{Species: "protein_a", Values: []float64{0, 1}},
			{Species: "impurity_x", Values: []float64{0, 0.1}},
		},
	}

	var mismatch *SpeciesMismatchError
	if _, _, err := Compare(sim, exp, Options{}); !errors.As(err, &mismatch) {
		t.Fatalf("Expected SpeciesMismatchError, got %v", err)
	}
	if mismatch.Species != "impurity_x" {
		t.Errorf("Expected species impurity_x, got %s", mismatch.Species)
	}
}

func TestCompareEmptyProfiles(t *testing.T) {
	ok := flatProfile("protein_a", []float64{0, 1}, []float64{0, 1})
	empty := &chrom.Profile{}

	var emptyErr *EmptyProfileError
	if _, _, err := Compare(empty, ok, Options{}); !errors.As(err, &emptyErr) {
		t.Fatalf("Expected EmptyProfileError, got %v", err)
	}
	if emptyErr.Role != "simulated" {
		t.Errorf("Expected role simulated, got %s", emptyErr.Role)
	}
	if _, _, err := Compare(ok, empty, Options{}); !errors.As(err, &emptyErr) {
		t.Fatalf("Expected EmptyProfileError, got %v", err)
	}
	if emptyErr.Role != "experimental" {
		t.Errorf("Expected role experimental, got %s", emptyErr.Role)
	}
	if _, _, err := Compare(nil, ok, Options{}); !errors.As(err, &emptyErr) {
		t.Fatalf("Expected EmptyProfileError for nil profile, got %v", err)
	}
}

func TestCompareRejectsMalformedProfiles(t *testing.T) {
	ok := flatProfile("protein_a", []float64{0, 1, 2}, []float64{0, 1, 0})
	short := flatProfile("protein_a", []float64{0, 1, 2}, []float64{0.5})
	unsorted := flatProfile("protein_a", []float64{0, 2, 1}, []float64{0, 1, 0})

	if _, _, err := Compare(short, ok, Options{}); err == nil {
		t.Error("Expected error for simulated series shorter than its grid, got nil")
	}
	if _, _, err := Compare(ok, short, Options{}); err == nil {
		t.Error("Expected error for experimental series shorter than its grid, got nil")
	}
	if _, _, err := Compare(unsorted, ok, Options{}); err == nil {
		t.Error("Expected error for non-increasing simulated times, got nil")
	}
}

func TestCompareNoiseWeighting(t *testing.T) {
	times := []float64{0, 1, 2, 3}
	sim := flatProfile("protein_a", times, []float64{0, 0.6, 1.0, 0.2})
	exp := &chrom.Profile{
		Times: times,
		Series: []chrom.Series{
			{Species: "protein_a", Values: []float64{0, 0.5, 1.0, 0.2}, NoiseSigma: 0.5},
		},
	}

	plain, _, err := Compare(sim, exp, Options{Norm: NormRMS})
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	weighted, _, err := Compare(sim, exp, Options{Norm: NormNoiseWeightedRMS})
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}

	// Dividing residuals by sigma=0.5 doubles the RMS.
	if math.Abs(weighted-2*plain) > 1e-12 {
		t.Errorf("Expected weighted cost %g, got %g", 2*plain, weighted)
	}
}

func TestCompareMaxAbsNorm(t *testing.T) {
	times := []float64{0, 1, 2}
	sim := flatProfile("protein_a", times, []float64{0, 0.7, 1.0})
	exp := flatProfile("protein_a", times, []float64{0, 0.5, 0.9})

	cost, _, err := Compare(sim, exp, Options{Norm: NormMaxAbs})
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if math.Abs(cost-0.2) > 1e-12 {
		t.Errorf("Expected max abs residual 0.2, got %g", cost)
	}
}

func TestCompareUnknownNorm(t *testing.T) {
	p := flatProfile("protein_a", []float64{0, 1}, []float64{0, 1})
	if _, _, err := Compare(p, p.Clone(), Options{Norm: "chebyshev"}); err == nil {
		t.Error("Expected error for unknown norm, got nil")
	}
}

func TestCompareSpeciesWeights(t *testing.T) {
	times := []float64{0, 1, 2}
	sim := flatProfile("protein_a", times, []float64{0, 0.6, 1.0})
	exp := flatProfile("protein_a", times, []float64{0, 0.5, 1.0})

	unweighted, _, err := Compare(sim, exp, Options{})
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	weighted, _, err := Compare(sim, exp, Options{SpeciesWeights: map[string]float64{"protein_a": 3}})
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if math.Abs(weighted-3*unweighted) > 1e-12 {
		t.Errorf("Expected weighted cost %g, got %g", 3*unweighted, weighted)
	}
}

func TestComparePeakTerms(t *testing.T) {
	times := []float64{0, 1, 2, 3, 4}
	// Experimental peak at t=2 height 1.0; simulated peak at t=3 height 0.8.
	exp := flatProfile("protein_a", times, []float64{0, 0.5, 1.0, 0.5, 0})
	sim := flatProfile("protein_a", times, []float64{0, 0.2, 0.5, 0.8, 0.1})

	base, _, err := Compare(sim, exp, Options{})
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	cost, breakdown, err := Compare(sim, exp, Options{PeakTimeWeight: 10, PeakHeightWeight: 5})
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}

	wantPeakTime := 10.0 * 1.0  // |3 - 2|
	wantPeakHeight := 5.0 * 0.2 // |0.8 - 1.0|
	if math.Abs(breakdown.PeakTime["protein_a"]-wantPeakTime) > 1e-12 {
		t.Errorf("Expected peak time term %g, got %g", wantPeakTime, breakdown.PeakTime["protein_a"])
	}
	if math.Abs(breakdown.PeakHeight["protein_a"]-wantPeakHeight) > 1e-12 {
		t.Errorf("Expected peak height term %g, got %g", wantPeakHeight, breakdown.PeakHeight["protein_a"])
	}
	if math.Abs(cost-(base+wantPeakTime+wantPeakHeight)) > 1e-12 {
		t.Errorf("Expected total %g, got %g", base+wantPeakTime+wantPeakHeight, cost)
	}
}

func TestComparePeakSlopeTerm(t *testing.T) {
	times := []float64{0, 1, 2, 3}
	// Both peak at t=1 height 1.0. The experimental tail reaches a tenth of
	// the peak at t=2, slope (0.05-1)/1; the simulated tail only gets there
	// at t=3, slope (0.05-1)/2.
	exp := flatProfile("protein_a", times, []float64{0, 1, 0.05, 0})
	sim := flatProfile("protein_a", times, []float64{0, 1, 0.5, 0.05})

	base, _, err := Compare(sim, exp, Options{})
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	cost, breakdown, err := Compare(sim, exp, Options{PeakSlopeWeight: 2})
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}

	want := 2.0 * 0.475 // |(-0.475) - (-0.95)|
	if math.Abs(breakdown.PeakSlope["protein_a"]-want) > 1e-12 {
		t.Errorf("Expected peak slope term %g, got %g", want, breakdown.PeakSlope["protein_a"])
	}
	if math.Abs(cost-(base+want)) > 1e-12 {
		t.Errorf("Expected total %g, got %g", base+want, cost)
	}
}

func TestTrailingSlope(t *testing.T) {
	tests := []struct {
		name   string
		times  []float64
		values []float64
		want   float64
	}{
		{"drops below tenth", []float64{0, 1, 2, 3}, []float64{0, 1, 0.05, 0}, -0.95},
		{"never drops below tenth", []float64{0, 1, 2, 3}, []float64{0, 1, 0.8, 0.6}, -0.2},
		{"peak at last sample", []float64{0, 1, 2}, []float64{0, 0.5, 1}, 0},
		{"all zero", []float64{0, 1, 2}, []float64{0, 0, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := trailingSlope(tt.times, tt.values)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Expected slope %g, got %g", tt.want, got)
			}
		})
	}
}

func TestCompareSingleSampleSimulated(t *testing.T) {
	sim := flatProfile("protein_a", []float64{1}, []float64{0.5})
	exp := flatProfile("protein_a", []float64{0, 1, 2}, []float64{0.5, 0.5, 0.5})

	cost, _, err := Compare(sim, exp, Options{ClampExtrapolation: true})
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if cost != 0 {
		t.Errorf("Expected zero cost, got %g", cost)
	}
}
