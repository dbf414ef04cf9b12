package paramspace

import "fmt"

// OutOfBoundsError indicates an attempt to assign a value outside a
// parameter's inclusive [min, max] bounds.
type OutOfBoundsError struct {
	ID    string
	Value float64
	Min   float64
	Max   float64
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("parameter %s: value %g outside bounds [%g, %g]", e.ID, e.Value, e.Min, e.Max)
}

// UnknownParameterError indicates a reference to a parameter ID that is
// not part of the set.
type UnknownParameterError struct {
	ID string
}

func (e *UnknownParameterError) Error() string {
	return "unknown parameter: " + e.ID
}

// FixedParameterError indicates an attempt to mutate a fixed parameter.
type FixedParameterError struct {
	ID string
}

func (e *FixedParameterError) Error() string {
	return "parameter is fixed: " + e.ID
}

// DimensionMismatchError indicates a vector whose length does not match
// the set's free dimensions.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: set has %d free dimensions, vector has %d", e.Want, e.Got)
}
