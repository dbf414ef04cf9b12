package calibd

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chromaflow/calibration-core/internal/calibration"
	"github.com/chromaflow/calibration-core/internal/compare"
	"github.com/chromaflow/calibration-core/internal/runner"
	"github.com/chromaflow/calibration-core/internal/solver"
	"github.com/chromaflow/calibration-core/pkg/config"
	"github.com/chromaflow/calibration-core/pkg/logger"
)

var (
	ErrJobNotFound  = errors.New("calibration not found")
	ErrJobTerminal  = errors.New("calibration is terminal")
	ErrJobIDMissing = errors.New("job_id is required")
)

// AdapterFactory builds the solver adapter for a job. The default factory
// resolves the configured external binary; tests substitute an in-process
// adapter.
type AdapterFactory func(cfg *config.Solver) (solver.Adapter, error)

// Service manages asynchronous calibration execution and per-job
// cancellation.
type Service struct {
	store    *JobStore
	notifier *Notifier
	baseDir  string
	factory  AdapterFactory

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func NewService(store *JobStore) *Service {
	return &Service{
		store:   store,
		baseDir: ".",
		factory: func(cfg *config.Solver) (solver.Adapter, error) {
			return solver.NewCommandAdapter(cfg.Binary)
		},
		cancels: make(map[string]context.CancelFunc),
	}
}

// WithAdapterFactory replaces how solver adapters are built
func (s *Service) WithAdapterFactory(f AdapterFactory) *Service {
	s.factory = f
	return s
}

// WithNotifier enables webhook notifications on terminal states
func (s *Service) WithNotifier(n *Notifier) *Service {
	s.notifier = n
	return s
}

// WithBaseDir sets the directory experiment profile paths resolve against
func (s *Service) WithBaseDir(dir string) *Service {
	s.baseDir = dir
	return s
}

// Start begins executing a job asynchronously.
// Returns the updated job state (running) or an error.
func (s *Service) Start(jobID string) (*JobRecord, error) {
	if jobID == "" {
		return nil, ErrJobIDMissing
	}

	rec, ok := s.store.Get(jobID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	switch {
	case rec.Status == StatusRunning:
		return rec, nil
	case rec.Status.Terminal():
		return nil, fmt.Errorf("%w: %s", ErrJobTerminal, jobID)
	}

	updated, err := s.store.SetStatus(jobID, StatusRunning, "")
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if old, exists := s.cancels[jobID]; exists {
		old()
	}
	s.cancels[jobID] = cancel
	s.mu.Unlock()

	go s.runCalibration(ctx, jobID)
	return updated, nil
}

// Stop requests cancellation for a running job and marks it cancelled.
func (s *Service) Stop(jobID string) (*JobRecord, error) {
	if jobID == "" {
		return nil, ErrJobIDMissing
	}

	rec, ok := s.store.Get(jobID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if rec.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s", ErrJobTerminal, jobID)
	}

	s.mu.Lock()
	cancel, ok := s.cancels[jobID]
	s.mu.Unlock()
	if ok {
		cancel()
	}

	return s.store.SetStatus(jobID, StatusCancelled, "")
}

func (s *Service) cleanup(jobID string) {
	s.mu.Lock()
	if cancel, ok := s.cancels[jobID]; ok {
		cancel()
		delete(s.cancels, jobID)
	}
	s.mu.Unlock()
}

func (s *Service) runCalibration(ctx context.Context, jobID string) {
	defer s.cleanup(jobID)

	rec, ok := s.store.Get(jobID)
	if !ok {
		logger.Error("calibration not found", "job_id", jobID)
		return
	}
	cfg := rec.Config

	eng, err := s.buildEngine(jobID, cfg)
	if err != nil {
		s.fail(jobID, err)
		return
	}
	eng.WithProgress(func(run *calibration.Run) {
		if err := s.store.SetSnapshot(jobID, run); err != nil {
			logger.Error("failed to store snapshot", "job_id", jobID, "error", err)
		}
	})

	logger.Info("starting calibration", "job_id", jobID, "binary", cfg.Solver.Binary)
	run, err := eng.Calibrate(ctx)
	if err != nil {
		if ctx.Err() != nil {
			logger.Info("calibration cancelled", "job_id", jobID)
			s.notify(jobID)
			return
		}
		s.fail(jobID, err)
		return
	}

	errMsg := ""
	if run.State == calibration.StateFailed {
		errMsg = run.Reason
	}
	if _, err := s.store.SetStatus(jobID, statusFromState(run.State), errMsg); err != nil {
		logger.Error("failed to set terminal status", "job_id", jobID, "error", err)
	}
	logger.Info("calibration done", "job_id", jobID, "state", string(run.State), "iterations", run.Iterations)
	s.notify(jobID)
}

func (s *Service) buildEngine(jobID string, cfg *config.Calibration) (*calibration.Engine, error) {
	adapter, err := s.factory(&cfg.Solver)
	if err != nil {
		return nil, fmt.Errorf("solver setup failed: %w", err)
	}

	profile, err := cfg.Experiment.LoadProfile(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("experiment profile: %w", err)
	}
	set, err := cfg.ParameterSet()
	if err != nil {
		return nil, fmt.Errorf("parameters: %w", err)
	}
	timeout, err := cfg.Solver.GetTimeout()
	if err != nil {
		return nil, fmt.Errorf("solver timeout: %w", err)
	}

	r := runner.New(adapter, cfg.Solver.MaxConcurrency)
	eng, err := calibration.NewEngine(r, profile, &cfg.Column, set)
	if err != nil {
		return nil, err
	}
	eng.WithID(jobID).
		WithSolverOptions(solver.Options{
			Timeout:    timeout,
			ScratchDir: cfg.Solver.ScratchDir,
		}).
		WithCompareOptions(compareOptions(cfg.Comparison))

	if search := cfg.Search; search != nil {
		eng.WithStrategy(buildStrategy(search)).
			WithDetector(calibration.NewDetector(search.Window, search.Tolerance, search.AbsTolerance)).
			WithMaxIterations(search.MaxIterations)
		budget, err := search.GetBudget()
		if err != nil {
			return nil, fmt.Errorf("search budget: %w", err)
		}
		eng.WithBudget(budget)
		if search.Retry != nil {
			eng.WithRetryPolicy(calibration.NewRetryPolicy(search.Retry.PerturbFraction, search.Seed))
		}
	}
	return eng, nil
}

func buildStrategy(search *config.Search) calibration.Strategy {
	switch search.Strategy {
	case "grid":
		return calibration.NewGridSearch(search.GridPoints, search.Refine)
	case "random":
		return calibration.NewRandomSearch(search.Samples, search.Seed)
	default:
		return calibration.NewCompassSearch(search.StepFraction, search.MinStep)
	}
}

func compareOptions(c *config.Comparison) compare.Options {
	if c == nil {
		return compare.Options{}
	}
	return compare.Options{
		Norm:               compare.Norm(c.Norm),
		SpeciesWeights:     c.SpeciesWeights,
		ClampExtrapolation: c.ClampExtrapolation,
		PeakTimeWeight:     c.PeakTimeWeight,
		PeakHeightWeight:   c.PeakHeightWeight,
		PeakSlopeWeight:    c.PeakSlopeWeight,
	}
}

func (s *Service) fail(jobID string, err error) {
	logger.Error("calibration failed", "job_id", jobID, "error", err)
	if _, setErr := s.store.SetStatus(jobID, StatusFailed, err.Error()); setErr != nil {
		logger.Error("failed to set failed status", "job_id", jobID, "error", setErr)
	}
	s.notify(jobID)
}

func (s *Service) notify(jobID string) {
	if s.notifier == nil {
		return
	}
	rec, ok := s.store.Get(jobID)
	if !ok || rec.Config == nil || rec.Config.Webhook == nil {
		return
	}
	s.notifier.Notify(rec.Config.Webhook, rec)
}
