package config

import (
	"time"

	"github.com/chromaflow/calibration-core/internal/paramspace"
	"github.com/chromaflow/calibration-core/pkg/chrom"
)

// Calibration is the top-level calibration job configuration
type Calibration struct {
	LogLevel   string                 `yaml:"log_level,omitempty"`
	Solver     Solver                 `yaml:"solver"`
	Column     chrom.ColumnConfig     `yaml:"column"`
	Parameters []paramspace.Parameter `yaml:"parameters"`
	Experiment Experiment             `yaml:"experiment"`
	Comparison *Comparison            `yaml:"comparison,omitempty"`
	Search     *Search                `yaml:"search,omitempty"`
	Webhook    *Webhook               `yaml:"webhook,omitempty"`
}

// Solver configures the external column solver
type Solver struct {
	Binary         string `yaml:"binary"`
	Timeout        string `yaml:"timeout,omitempty"` // e.g., "5m"
	MaxConcurrency int    `yaml:"max_concurrency,omitempty"`
	ScratchDir     string `yaml:"scratch_dir,omitempty"`
}

// GetTimeout parses the per-invocation solver timeout. Zero duration is
// returned for an empty field, letting the adapter pick its default.
func (s *Solver) GetTimeout() (time.Duration, error) {
	if s.Timeout == "" {
		return 0, nil
	}
	return time.ParseDuration(s.Timeout)
}

// Experiment locates the experimental reference profile, either inline or
// as a file next to the config.
type Experiment struct {
	ProfilePath string         `yaml:"profile_path,omitempty"`
	Profile     *chrom.Profile `yaml:"profile,omitempty"`
}

// Comparison configures profile scoring
type Comparison struct {
	Norm               string             `yaml:"norm,omitempty"` // rms, noise_weighted_rms, max_abs
	SpeciesWeights     map[string]float64 `yaml:"species_weights,omitempty"`
	ClampExtrapolation bool               `yaml:"clamp_extrapolation,omitempty"`
	PeakTimeWeight     float64            `yaml:"peak_time_weight,omitempty"`
	PeakHeightWeight   float64            `yaml:"peak_height_weight,omitempty"`
	PeakSlopeWeight    float64            `yaml:"peak_slope_weight,omitempty"`
}

// Search configures the parameter search
type Search struct {
	Strategy      string  `yaml:"strategy,omitempty"` // compass, grid, random
	MaxIterations int     `yaml:"max_iterations,omitempty"`
	Tolerance     float64 `yaml:"tolerance,omitempty"`
	AbsTolerance  float64 `yaml:"abs_tolerance,omitempty"`
	Window        int     `yaml:"window,omitempty"`
	StepFraction  float64 `yaml:"step_fraction,omitempty"`
	MinStep       float64 `yaml:"min_step,omitempty"`
	GridPoints    int     `yaml:"grid_points,omitempty"`
	Refine        bool    `yaml:"refine,omitempty"`
	Samples       int     `yaml:"samples,omitempty"`
	Seed          int64   `yaml:"seed,omitempty"`
	Budget        string  `yaml:"budget,omitempty"` // e.g., "10m"
	Retry         *Retry  `yaml:"retry,omitempty"`
}

// GetBudget parses the wall-clock budget. Zero means unlimited.
func (s *Search) GetBudget() (time.Duration, error) {
	if s.Budget == "" {
		return 0, nil
	}
	return time.ParseDuration(s.Budget)
}

// Retry configures the perturbed retry of solver-failed candidates
type Retry struct {
	PerturbFraction float64 `yaml:"perturb_fraction,omitempty"`
}

// Webhook configures terminal-state notification delivery
type Webhook struct {
	URL           string `yaml:"url"`
	MaxAttempts   int    `yaml:"max_attempts,omitempty"`
	Backoff       string `yaml:"backoff,omitempty"` // constant, linear, exponential
	BackoffBaseMs int    `yaml:"backoff_base_ms,omitempty"`
	BackoffMaxMs  int    `yaml:"backoff_max_ms,omitempty"`
}
