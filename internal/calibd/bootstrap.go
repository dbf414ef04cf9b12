package calibd

import (
	"fmt"
	"os"

	"github.com/chromaflow/calibration-core/pkg/config"
)

// BootstrapJob loads a calibration job file, registers it in the store, and
// starts it. The returned record carries the parsed config so the caller
// can apply job-file settings such as the log level.
func BootstrapJob(store *JobStore, service *Service, path string) (*JobRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read calibration file %s: %w", path, err)
	}
	cfg, err := config.ParseCalibrationYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse calibration file %s: %w", path, err)
	}
	rec, err := store.Create("", string(data), cfg)
	if err != nil {
		return nil, err
	}
	return service.Start(rec.ID)
}
