package chrom

import "fmt"

// ColumnConfig is the immutable physical and process context for a solver
// invocation: column geometry, the inlet program driving the separation,
// and the spatial discretization handed to the transport solver. The
// calibration core treats it as opaque input owned by the caller.
type ColumnConfig struct {
	Geometry       Geometry       `yaml:"geometry" json:"geometry"`
	Inlet          Inlet          `yaml:"inlet" json:"inlet"`
	Discretization Discretization `yaml:"discretization" json:"discretization"`
}

// Geometry describes the packed column
type Geometry struct {
	BedHeightCm      float64 `yaml:"bed_height_cm" json:"bed_height_cm"`
	DiameterCm       float64 `yaml:"diameter_cm" json:"diameter_cm"`
	BedPorosity      float64 `yaml:"bed_porosity" json:"bed_porosity"`
	ParticlePorosity float64 `yaml:"particle_porosity,omitempty" json:"particle_porosity,omitempty"`
}

// Inlet describes the inlet program as a sequence of constant-flow steps
type Inlet struct {
	FlowRateCmH float64     `yaml:"flow_rate_cm_h" json:"flow_rate_cm_h"`
	Steps       []InletStep `yaml:"steps" json:"steps"`
}

// InletStep is one section of the inlet program (load, wash, elution, ...)
type InletStep struct {
	Name            string  `yaml:"name" json:"name"`
	DurationSec     float64 `yaml:"duration_sec" json:"duration_sec"`
	ConcentrationMM float64 `yaml:"concentration_mm" json:"concentration_mm"`
}

// Discretization holds the spatial/particle grid resolution
type Discretization struct {
	ColumnCells   int `yaml:"column_cells" json:"column_cells"`
	ParticleCells int `yaml:"particle_cells,omitempty" json:"particle_cells,omitempty"`
}

// Validate checks for contradictory or physically impossible settings
func (c *ColumnConfig) Validate() error {
	g := c.Geometry
	if g.BedHeightCm <= 0 {
		return fmt.Errorf("bed_height_cm must be positive, got %g", g.BedHeightCm)
	}
	if g.DiameterCm <= 0 {
		return fmt.Errorf("diameter_cm must be positive, got %g", g.DiameterCm)
	}
	if g.BedPorosity <= 0 || g.BedPorosity >= 1 {
		return fmt.Errorf("bed_porosity must be in (0, 1), got %g", g.BedPorosity)
	}
	if g.ParticlePorosity < 0 || g.ParticlePorosity >= 1 {
		return fmt.Errorf("particle_porosity must be in [0, 1), got %g", g.ParticlePorosity)
	}
	if c.Inlet.FlowRateCmH <= 0 {
		return fmt.Errorf("flow_rate_cm_h must be positive, got %g", c.Inlet.FlowRateCmH)
	}
	for i, step := range c.Inlet.Steps {
		if step.DurationSec <= 0 {
			return fmt.Errorf("inlet step %d (%s): duration_sec must be positive", i, step.Name)
		}
		if step.ConcentrationMM < 0 {
			return fmt.Errorf("inlet step %d (%s): concentration_mm cannot be negative", i, step.Name)
		}
	}
	if c.Discretization.ColumnCells <= 0 {
		return fmt.Errorf("column_cells must be positive, got %d", c.Discretization.ColumnCells)
	}
	if c.Discretization.ParticleCells < 0 {
		return fmt.Errorf("particle_cells cannot be negative, got %d", c.Discretization.ParticleCells)
	}
	return nil
}
