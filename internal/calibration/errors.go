package calibration

import (
	"errors"
	"fmt"
)

// ErrAlreadyStarted is returned when Calibrate is invoked on an engine
// whose run has left the initialized state.
var ErrAlreadyStarted = errors.New("calibration already started")

// ErrNoFreeParameters is returned when the initial parameter set has no
// free dimension to search over.
var ErrNoFreeParameters = errors.New("parameter set has no free parameters")

// GridTooLargeError indicates a grid whose cartesian product exceeds the
// candidate limit.
type GridTooLargeError struct {
	Points     int
	Dimensions int
	Limit      int
}

func (e *GridTooLargeError) Error() string {
	return fmt.Sprintf("grid of %d points over %d dimensions exceeds candidate limit %d", e.Points, e.Dimensions, e.Limit)
}
