package calibration

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

const (
	defaultWindow       = 5
	defaultRelTolerance = 1e-6
)

// Detector decides when the search has converged by watching the
// best-cost trajectory. Convergence is declared when the improvement over
// the trailing window falls below the relative tolerance, or when the
// best cost drops below the absolute tolerance.
type Detector struct {
	// Window is the number of trailing iterations the improvement is
	// measured over.
	Window int
	// RelTolerance bounds the relative best-cost improvement across the
	// window below which the search is considered stalled.
	RelTolerance float64
	// AbsTolerance, when positive, declares convergence as soon as the
	// best cost falls below it.
	AbsTolerance float64
}

// NewDetector creates a detector; non-positive window or tolerance
// selects the defaults. AbsTolerance defaults to disabled.
func NewDetector(window int, relTolerance, absTolerance float64) *Detector {
	if window <= 0 {
		window = defaultWindow
	}
	if relTolerance <= 0 {
		relTolerance = defaultRelTolerance
	}
	return &Detector{
		Window:       window,
		RelTolerance: relTolerance,
		AbsTolerance: absTolerance,
	}
}

// Check inspects the per-iteration best-cost trajectory. bestCosts[i] is
// the best cost known after iteration i+1. It returns whether the search
// has converged and a human-readable reason.
func (d *Detector) Check(bestCosts []float64) (bool, string) {
	if len(bestCosts) == 0 {
		return false, ""
	}

	current := bestCosts[len(bestCosts)-1]
	if math.IsInf(current, 1) {
		return false, ""
	}
	if d.AbsTolerance > 0 && current <= d.AbsTolerance {
		return true, fmt.Sprintf("best cost %g at or below absolute tolerance %g", current, d.AbsTolerance)
	}

	if len(bestCosts) <= d.Window {
		return false, ""
	}
	previous := bestCosts[len(bestCosts)-1-d.Window]
	if math.IsInf(previous, 1) {
		return false, ""
	}

	improvement := previous - current
	scale := math.Max(math.Abs(previous), 1)
	if improvement/scale < d.RelTolerance {
		return true, fmt.Sprintf("improvement %g over last %d iterations below tolerance %g", improvement, d.Window, d.RelTolerance)
	}

	// A flat trajectory with tiny oscillation is also a stall even when
	// the endpoint difference alone does not show it.
	window := bestCosts[len(bestCosts)-1-d.Window:]
	if stat.Variance(window, nil) < d.RelTolerance*d.RelTolerance {
		return true, fmt.Sprintf("best cost variance over last %d iterations below tolerance", d.Window)
	}
	return false, ""
}
