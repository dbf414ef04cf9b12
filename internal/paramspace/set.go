// Package paramspace models the named, bounded numeric parameters a
// calibration searches over. Free (non-fixed) parameters map one-to-one
// onto the dimensions of an optimizer's flat vector, in insertion order.
package paramspace

import (
	"fmt"

	"github.com/chromaflow/calibration-core/pkg/utils"
)

// Parameter is a single named solver input with inclusive bounds. Fixed
// parameters are excluded from the search space and never mutated.
type Parameter struct {
	ID    string  `yaml:"id" json:"id"`
	Value float64 `yaml:"value" json:"value"`
	Unit  string  `yaml:"unit,omitempty" json:"unit,omitempty"`
	Min   float64 `yaml:"min" json:"min"`
	Max   float64 `yaml:"max" json:"max"`
	Fixed bool    `yaml:"fixed,omitempty" json:"fixed,omitempty"`
}

// Set is an ordered collection of parameters keyed by ID. Insertion order
// is the presentation and search order; it is stable for the lifetime of
// the set and preserved by Clone and FromVector.
type Set struct {
	order  []string
	params map[string]*Parameter
}

// NewSet creates a parameter set from the given parameters, preserving
// their order. IDs must be unique, bounds well-formed, and every value
// within its bounds.
func NewSet(params ...Parameter) (*Set, error) {
	s := &Set{
		order:  make([]string, 0, len(params)),
		params: make(map[string]*Parameter, len(params)),
	}
	for _, p := range params {
		if p.ID == "" {
			return nil, fmt.Errorf("parameter id cannot be empty")
		}
		if _, exists := s.params[p.ID]; exists {
			return nil, fmt.Errorf("duplicate parameter id: %s", p.ID)
		}
		if p.Min > p.Max {
			return nil, fmt.Errorf("parameter %s: min %g exceeds max %g", p.ID, p.Min, p.Max)
		}
		if p.Value < p.Min || p.Value > p.Max {
			return nil, &OutOfBoundsError{ID: p.ID, Value: p.Value, Min: p.Min, Max: p.Max}
		}
		stored := p
		s.order = append(s.order, p.ID)
		s.params[p.ID] = &stored
	}
	return s, nil
}

// Len returns the number of parameters in the set
func (s *Set) Len() int {
	return len(s.order)
}

// Get returns a copy of the named parameter
func (s *Set) Get(id string) (Parameter, bool) {
	p, ok := s.params[id]
	if !ok {
		return Parameter{}, false
	}
	return *p, true
}

// Value returns the current value of the named parameter
func (s *Set) Value(id string) (float64, error) {
	p, ok := s.params[id]
	if !ok {
		return 0, &UnknownParameterError{ID: id}
	}
	return p.Value, nil
}

// Set assigns a new value to the named parameter. The set is left
// unchanged when the assignment is rejected.
func (s *Set) Set(id string, value float64) error {
	p, ok := s.params[id]
	if !ok {
		return &UnknownParameterError{ID: id}
	}
	if p.Fixed {
		return &FixedParameterError{ID: id}
	}
	if value < p.Min || value > p.Max {
		return &OutOfBoundsError{ID: id, Value: value, Min: p.Min, Max: p.Max}
	}
	p.Value = value
	return nil
}

// FreeDimensions returns the IDs of the free parameters in insertion
// order. This ordering is the contract mapping an optimizer's flat vector
// onto named parameters.
func (s *Set) FreeDimensions() []string {
	free := make([]string, 0, len(s.order))
	for _, id := range s.order {
		if !s.params[id].Fixed {
			free = append(free, id)
		}
	}
	return free
}

// AsVector returns the free parameter values in FreeDimensions order
func (s *Set) AsVector() []float64 {
	v := make([]float64, 0, len(s.order))
	for _, id := range s.order {
		if !s.params[id].Fixed {
			v = append(v, s.params[id].Value)
		}
	}
	return v
}

// VectorOptions controls FromVector behavior
type VectorOptions struct {
	// Clamp snaps out-of-bounds components to the nearest bound instead
	// of rejecting them.
	Clamp bool
}

// FromVector returns a clone of the set with the free parameter values
// replaced by v, in FreeDimensions order. Out-of-bounds components are an
// error; clamping must be requested explicitly via FromVectorWith.
func (s *Set) FromVector(v []float64) (*Set, error) {
	return s.FromVectorWith(v, VectorOptions{})
}

// FromVectorWith is FromVector with explicit options
func (s *Set) FromVectorWith(v []float64, opts VectorOptions) (*Set, error) {
	free := s.FreeDimensions()
	if len(v) != len(free) {
		return nil, &DimensionMismatchError{Want: len(free), Got: len(v)}
	}
	cloned := s.Clone()
	for i, id := range free {
		value := v[i]
		p := cloned.params[id]
		if value < p.Min || value > p.Max {
			if !opts.Clamp {
				return nil, &OutOfBoundsError{ID: id, Value: value, Min: p.Min, Max: p.Max}
			}
			value = utils.ClampFloat64(value, p.Min, p.Max)
		}
		p.Value = value
	}
	return cloned, nil
}

// Parameters returns an ordered snapshot of all parameters
func (s *Set) Parameters() []Parameter {
	out := make([]Parameter, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.params[id])
	}
	return out
}

// Clone returns a deep copy of the set
func (s *Set) Clone() *Set {
	if s == nil {
		return nil
	}
	cloned := &Set{
		order:  make([]string, len(s.order)),
		params: make(map[string]*Parameter, len(s.params)),
	}
	copy(cloned.order, s.order)
	for id, p := range s.params {
		stored := *p
		cloned.params[id] = &stored
	}
	return cloned
}
