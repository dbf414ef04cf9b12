// Package chrom holds the shared chromatography data model: elution
// profiles produced by the solver or imported from lab instruments, and
// the column/process configuration consumed by the solver adapter.
package chrom

import "fmt"

// Series is the concentration trace of a single chemical species over a
// profile's time grid. NoiseSigma carries the measurement noise standard
// deviation for experimental data; it is zero for simulated series.
type Series struct {
	Species    string    `yaml:"species" json:"species"`
	Values     []float64 `yaml:"values" json:"values"`
	NoiseSigma float64   `yaml:"noise_sigma,omitempty" json:"noise_sigma,omitempty"`
}

// Profile is an ordered sequence of concentration samples for one or more
// species sharing a common, strictly increasing time grid (in seconds).
type Profile struct {
	Times  []float64 `yaml:"times" json:"times"`
	Series []Series  `yaml:"series" json:"series"`
}

// Len returns the number of time samples
func (p *Profile) Len() int {
	return len(p.Times)
}

// SpeciesNames returns the species names in series order
func (p *Profile) SpeciesNames() []string {
	names := make([]string, 0, len(p.Series))
	for _, s := range p.Series {
		names = append(names, s.Species)
	}
	return names
}

// Find returns the series for the named species, if present
func (p *Profile) Find(species string) (*Series, bool) {
	for i := range p.Series {
		if p.Series[i].Species == species {
			return &p.Series[i], true
		}
	}
	return nil, false
}

// Validate checks the profile's structural invariants: at least one series,
// a strictly increasing time grid, and value slices matching the grid.
func (p *Profile) Validate() error {
	if len(p.Series) == 0 {
		return fmt.Errorf("profile has no series")
	}
	for i := 1; i < len(p.Times); i++ {
		if p.Times[i] <= p.Times[i-1] {
			return fmt.Errorf("times must be strictly increasing: times[%d]=%g, times[%d]=%g",
				i-1, p.Times[i-1], i, p.Times[i])
		}
	}
	seen := make(map[string]bool, len(p.Series))
	for _, s := range p.Series {
		if s.Species == "" {
			return fmt.Errorf("series species name cannot be empty")
		}
		if seen[s.Species] {
			return fmt.Errorf("duplicate species: %s", s.Species)
		}
		seen[s.Species] = true
		if len(s.Values) != len(p.Times) {
			return fmt.Errorf("species %s: %d values for %d time samples",
				s.Species, len(s.Values), len(p.Times))
		}
		if s.NoiseSigma < 0 {
			return fmt.Errorf("species %s: noise_sigma cannot be negative", s.Species)
		}
	}
	return nil
}

// Clone returns a deep copy of the profile
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	cloned := &Profile{
		Times:  make([]float64, len(p.Times)),
		Series: make([]Series, len(p.Series)),
	}
	copy(cloned.Times, p.Times)
	for i, s := range p.Series {
		values := make([]float64, len(s.Values))
		copy(values, s.Values)
		cloned.Series[i] = Series{
			Species:    s.Species,
			Values:     values,
			NoiseSigma: s.NoiseSigma,
		}
	}
	return cloned
}
