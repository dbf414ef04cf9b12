package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chromaflow/calibration-core/pkg/chrom"
)

// LoadCalibration loads and parses a calibration job file
func LoadCalibration(path string) (*Calibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read calibration file %s: %w", path, err)
	}
	cfg, err := ParseCalibrationYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse calibration file %s: %w", path, err)
	}
	return cfg, nil
}

// LoadProfile resolves the experimental profile, reading profile_path
// relative to baseDir when the profile is not inline. JSON and YAML files
// are both accepted, selected by extension.
func (e *Experiment) LoadProfile(baseDir string) (*chrom.Profile, error) {
	if e.Profile != nil {
		return e.Profile.Clone(), nil
	}

	path := e.ProfilePath
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile file %s: %w", path, err)
	}

	var profile chrom.Profile
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &profile)
	} else {
		err = yaml.Unmarshal(data, &profile)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse profile file %s: %w", path, err)
	}
	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile file %s: %w", path, err)
	}
	return &profile, nil
}

// validateCalibration performs validation on the calibration job
func validateCalibration(cfg *Calibration) error {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", cfg.LogLevel)
	}

	if cfg.Solver.Binary == "" {
		return fmt.Errorf("solver binary cannot be empty")
	}
	if _, err := cfg.Solver.GetTimeout(); err != nil {
		return fmt.Errorf("invalid solver timeout: %w", err)
	}
	if cfg.Solver.MaxConcurrency < 0 {
		return fmt.Errorf("solver max_concurrency cannot be negative")
	}

	if err := cfg.Column.Validate(); err != nil {
		return fmt.Errorf("column validation failed: %w", err)
	}

	if len(cfg.Parameters) == 0 {
		return fmt.Errorf("at least one parameter must be defined")
	}
	set, err := cfg.ParameterSet()
	if err != nil {
		return fmt.Errorf("parameter validation failed: %w", err)
	}
	if len(set.FreeDimensions()) == 0 {
		return fmt.Errorf("at least one parameter must be free (not fixed)")
	}

	if (cfg.Experiment.Profile == nil) == (cfg.Experiment.ProfilePath == "") {
		return fmt.Errorf("experiment requires exactly one of profile or profile_path")
	}
	if cfg.Experiment.Profile != nil {
		if err := cfg.Experiment.Profile.Validate(); err != nil {
			return fmt.Errorf("experiment profile validation failed: %w", err)
		}
	}

	if cfg.Comparison != nil {
		if err := validateComparison(cfg.Comparison); err != nil {
			return fmt.Errorf("comparison validation failed: %w", err)
		}
	}
	if cfg.Search != nil {
		if err := validateSearch(cfg.Search); err != nil {
			return fmt.Errorf("search validation failed: %w", err)
		}
	}
	if cfg.Webhook != nil && cfg.Webhook.URL == "" {
		return fmt.Errorf("webhook url cannot be empty")
	}

	return nil
}

func validateComparison(c *Comparison) error {
	switch c.Norm {
	case "", "rms", "noise_weighted_rms", "max_abs":
	default:
		return fmt.Errorf("unknown norm: %s (must be rms, noise_weighted_rms, or max_abs)", c.Norm)
	}
	for species, w := range c.SpeciesWeights {
		if w < 0 {
			return fmt.Errorf("species %s: weight cannot be negative", species)
		}
	}
	if c.PeakTimeWeight < 0 || c.PeakHeightWeight < 0 || c.PeakSlopeWeight < 0 {
		return fmt.Errorf("peak weights cannot be negative")
	}
	return nil
}

func validateSearch(s *Search) error {
	switch s.Strategy {
	case "", "compass", "grid", "random":
	default:
		return fmt.Errorf("unknown strategy: %s (must be compass, grid, or random)", s.Strategy)
	}
	if s.MaxIterations < 0 {
		return fmt.Errorf("max_iterations cannot be negative")
	}
	if s.Tolerance < 0 || s.AbsTolerance < 0 {
		return fmt.Errorf("tolerances cannot be negative")
	}
	if s.Window < 0 {
		return fmt.Errorf("window cannot be negative")
	}
	if s.StepFraction < 0 || s.StepFraction > 1 {
		return fmt.Errorf("step_fraction must be in [0, 1]")
	}
	if s.GridPoints < 0 {
		return fmt.Errorf("grid_points cannot be negative")
	}
	if s.Samples < 0 {
		return fmt.Errorf("samples cannot be negative")
	}
	if _, err := s.GetBudget(); err != nil {
		return fmt.Errorf("invalid budget: %w", err)
	}
	if s.Retry != nil && (s.Retry.PerturbFraction < 0 || s.Retry.PerturbFraction > 1) {
		return fmt.Errorf("retry perturb_fraction must be in [0, 1]")
	}
	return nil
}
