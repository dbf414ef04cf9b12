package utils

import (
	"math"
	"time"
)

// Backoff computes the delay before retrying a failed delivery attempt.
// Kind selects the growth curve; an empty or unrecognized kind falls back
// to exponential.
type Backoff struct {
	Kind string // "constant", "linear", or "exponential"
	Base time.Duration
	Max  time.Duration
}

// NewBackoff builds a Backoff from millisecond-level settings as they
// appear in a webhook config. A non-positive max selects 30 seconds.
func NewBackoff(kind string, baseMs, maxMs int) Backoff {
	b := Backoff{
		Kind: kind,
		Base: time.Duration(baseMs) * time.Millisecond,
		Max:  time.Duration(maxMs) * time.Millisecond,
	}
	if b.Max <= 0 {
		b.Max = 30 * time.Second
	}
	return b
}

// Delay returns the wait before retry attempt (0-indexed), never exceeding
// Max. Exponential delays carry jitter so concurrent deliveries retrying
// against the same endpoint spread out.
func (b Backoff) Delay(attempt int) time.Duration {
	d := float64(b.Base)
	switch b.Kind {
	case "constant":
	case "linear":
		d *= float64(attempt + 1)
	default:
		d *= math.Pow(2, float64(attempt))
		d *= 0.5 + Float64()
	}
	if d > float64(b.Max) {
		d = float64(b.Max)
	}
	return time.Duration(d)
}
