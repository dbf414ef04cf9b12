package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/chromaflow/calibration-core/internal/paramspace"
)

// ParseCalibrationYAML parses a Calibration from YAML bytes and validates it.
// This is used for APIs where the job is provided as payload (not via filesystem).
func ParseCalibrationYAML(data []byte) (*Calibration, error) {
	var cfg Calibration
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse calibration yaml: %w", err)
	}

	if err := validateCalibration(&cfg); err != nil {
		return nil, fmt.Errorf("invalid calibration: %w", err)
	}

	return &cfg, nil
}

// ParseCalibrationYAMLString parses a Calibration from a YAML string and validates it.
func ParseCalibrationYAMLString(yamlText string) (*Calibration, error) {
	return ParseCalibrationYAML([]byte(yamlText))
}

// ParameterSet builds the ordered parameter set declared by the config
func (c *Calibration) ParameterSet() (*paramspace.Set, error) {
	return paramspace.NewSet(c.Parameters...)
}
