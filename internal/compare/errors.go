package compare

import "fmt"

// RangeError indicates the experimental grid requires evaluating the
// simulated profile outside its time range and clamping was not requested.
type RangeError struct {
	Time float64
	Min  float64
	Max  float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("time %g outside simulated range [%g, %g]; extrapolation requires the clamp option", e.Time, e.Min, e.Max)
}

// SpeciesMismatchError indicates a species present in the experimental
// profile has no counterpart in the simulated one.
type SpeciesMismatchError struct {
	Species string
}

func (e *SpeciesMismatchError) Error() string {
	return "species missing from simulated profile: " + e.Species
}

// EmptyProfileError indicates a profile with zero samples or no series.
type EmptyProfileError struct {
	Role string // "simulated" or "experimental"
}

func (e *EmptyProfileError) Error() string {
	return "empty " + e.Role + " profile"
}
