package solver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chromaflow/calibration-core/internal/paramspace"
	"github.com/chromaflow/calibration-core/pkg/chrom"
)

// Strings searched for in solver output to detect a failed run that
// still exited zero.
var defaultErrorMarkers = []string{"exception", "did not converge", "nan encountered"}

// Number of trailing output bytes retained in diagnostics.
const outputTailBytes = 2048

// commandInput is the serialized invocation handed to the solver binary.
type commandInput struct {
	Parameters []paramspace.Parameter `yaml:"parameters"`
	Column     *chrom.ColumnConfig    `yaml:"column"`
}

// CommandAdapter runs an external solver binary. Each invocation gets a
// private scratch directory holding the serialized input and the profile
// the solver writes back, so concurrent invocations never share state.
//
// Call contract with the binary: it receives the input file path as its
// only argument, runs in the scratch directory, and writes profile.json
// (a chrom.Profile) there on success.
type CommandAdapter struct {
	binary       string
	errorMarkers []string
}

// NewCommandAdapter resolves and validates the solver binary. A missing
// binary is reported immediately as UnavailableError rather than at the
// first invocation.
func NewCommandAdapter(binary string) (*CommandAdapter, error) {
	if binary == "" {
		return nil, &UnavailableError{Reason: "no solver binary provided"}
	}
	resolved, err := exec.LookPath(binary)
	if err != nil {
		return nil, &UnavailableError{Binary: binary, Reason: "command not found"}
	}
	return &CommandAdapter{
		binary:       resolved,
		errorMarkers: defaultErrorMarkers,
	}, nil
}

// WithErrorMarkers overrides the output strings treated as solver failure
func (c *CommandAdapter) WithErrorMarkers(markers []string) *CommandAdapter {
	c.errorMarkers = markers
	return c
}

// Simulate implements Adapter
func (c *CommandAdapter) Simulate(ctx context.Context, params *paramspace.Set, column *chrom.ColumnConfig, opts Options) Result {
	start := time.Now()
	if column != nil {
		if err := column.Validate(); err != nil {
			return Result{Err: &InvalidConfigError{Reason: err.Error()}}
		}
	}

	scratch, err := os.MkdirTemp(opts.ScratchDir, "chromacal-*")
	if err != nil {
		return Result{Err: &UnavailableError{Binary: c.binary, Reason: "cannot create scratch dir: " + err.Error()}}
	}
	defer os.RemoveAll(scratch)

	inputPath := filepath.Join(scratch, "input.yaml")
	if err := writeInput(inputPath, params, column); err != nil {
		return Result{Err: &InvalidConfigError{Reason: err.Error()}}
	}

	timeout := opts.timeout()
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.binary, inputPath)
	cmd.Dir = scratch
	output, runErr := cmd.CombinedOutput()
	diag := Diagnostics{
		Duration: time.Since(start),
		Output:   tail(string(output), outputTailBytes),
	}

	if runCtx.Err() != nil {
		if ctx.Err() != nil {
			return Result{Diagnostics: diag, Err: ctx.Err()}
		}
		return Result{Diagnostics: diag, Err: &TimeoutError{Timeout: timeout}}
	}

	if marker := findMarker(string(output), c.errorMarkers); marker != "" {
		return Result{Diagnostics: diag, Err: &DivergenceError{
			Detail: fmt.Sprintf("output contains %q", marker),
		}}
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			if exitErr.ExitCode() == -1 {
				// Killed by signal: the process crashed.
				return Result{Diagnostics: diag, Err: &UnavailableError{Binary: c.binary, Reason: exitErr.Error()}}
			}
			return Result{Diagnostics: diag, Err: &DivergenceError{
				Detail: fmt.Sprintf("exit code %d", exitErr.ExitCode()),
			}}
		}
		return Result{Diagnostics: diag, Err: &UnavailableError{Binary: c.binary, Reason: runErr.Error()}}
	}

	profile, err := readProfile(filepath.Join(scratch, "profile.json"))
	if err != nil {
		return Result{Diagnostics: diag, Err: &DivergenceError{Detail: err.Error()}}
	}
	return Result{Profile: profile, Diagnostics: diag}
}

func writeInput(path string, params *paramspace.Set, column *chrom.ColumnConfig) error {
	in := commandInput{Column: column}
	if params != nil {
		in.Parameters = params.Parameters()
	}
	data, err := yaml.Marshal(&in)
	if err != nil {
		return fmt.Errorf("failed to marshal solver input: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write solver input: %w", err)
	}
	return nil
}

func readProfile(path string) (*chrom.Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("solver produced no profile: %w", err)
	}
	var profile chrom.Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse solver profile: %w", err)
	}
	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("solver profile invalid: %w", err)
	}
	return &profile, nil
}

func findMarker(output string, markers []string) string {
	lowered := strings.ToLower(output)
	for _, m := range markers {
		if strings.Contains(lowered, m) {
			return m
		}
	}
	return ""
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
