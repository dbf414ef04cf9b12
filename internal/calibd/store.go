package calibd

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/chromaflow/calibration-core/internal/calibration"
	"github.com/chromaflow/calibration-core/pkg/config"
	"github.com/chromaflow/calibration-core/pkg/utils"
)

// Status is the store-level lifecycle of a calibration job. Pending covers
// the gap between creation and the first engine iteration; the remaining
// values mirror the engine's terminal and running states.
type Status string

const (
	StatusPending       Status = "pending"
	StatusRunning       Status = "running"
	StatusConverged     Status = "converged"
	StatusMaxIterations Status = "max_iterations"
	StatusFailed        Status = "failed"
	StatusCancelled     Status = "cancelled"
)

// Terminal reports whether the status is final
func (s Status) Terminal() bool {
	switch s {
	case StatusConverged, StatusMaxIterations, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

func statusFromState(state calibration.State) Status {
	switch state {
	case calibration.StateConverged:
		return StatusConverged
	case calibration.StateMaxIterations:
		return StatusMaxIterations
	case calibration.StateFailed:
		return StatusFailed
	case calibration.StateCancelled:
		return StatusCancelled
	case calibration.StateRunning:
		return StatusRunning
	default:
		return StatusPending
	}
}

// JobRecord is one calibration job: its config as submitted, its
// store-level status, and the engine's latest run snapshot.
type JobRecord struct {
	ID              string
	Status          Status
	Error           string
	ConfigYAML      string
	Config          *config.Calibration
	Snapshot        *calibration.Run
	CreatedAtUnixMs int64
	StartedAtUnixMs int64
	EndedAtUnixMs   int64
}

// JobStore is the in-memory job registry
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*JobRecord
}

func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]*JobRecord),
	}
}

func nowUnixMs() int64 {
	return time.Now().UTC().UnixMilli()
}

func (s *JobStore) Create(jobID, configYAML string, cfg *config.Calibration) (*JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if jobID == "" {
		jobID = utils.GenerateRunID()
	}
	if _, exists := s.jobs[jobID]; exists {
		return nil, fmt.Errorf("calibration already exists: %s", jobID)
	}

	rec := &JobRecord{
		ID:              jobID,
		Status:          StatusPending,
		ConfigYAML:      configYAML,
		Config:          cfg,
		CreatedAtUnixMs: nowUnixMs(),
	}
	s.jobs[jobID] = rec
	return copyRecord(rec), nil
}

func (s *JobStore) Get(jobID string) (*JobRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.jobs[jobID]
	if !ok {
		return nil, false
	}
	return copyRecord(rec), true
}

// ListFiltered returns jobs newest-first, optionally filtered by status
func (s *JobStore) ListFiltered(limit, offset int, status Status) []*JobRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	all := make([]*JobRecord, 0, len(s.jobs))
	for _, rec := range s.jobs {
		if status != "" && rec.Status != status {
			continue
		}
		all = append(all, rec)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAtUnixMs != all[j].CreatedAtUnixMs {
			return all[i].CreatedAtUnixMs > all[j].CreatedAtUnixMs
		}
		return all[i].ID < all[j].ID
	})

	if offset >= len(all) {
		return nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	out := make([]*JobRecord, 0, len(all))
	for _, rec := range all {
		out = append(out, copyRecord(rec))
	}
	return out
}

func (s *JobStore) SetStatus(jobID string, status Status, errMsg string) (*JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("calibration not found: %s", jobID)
	}
	// The first terminal status wins; a concurrent cancel must not
	// overwrite a run that already converged (or vice versa).
	if rec.Status.Terminal() && status != rec.Status {
		return nil, fmt.Errorf("%w: %s is already %s", ErrJobTerminal, jobID, rec.Status)
	}

	rec.Status = status
	if errMsg != "" {
		rec.Error = errMsg
	}

	switch status {
	case StatusRunning:
		if rec.StartedAtUnixMs == 0 {
			rec.StartedAtUnixMs = nowUnixMs()
		}
	case StatusConverged, StatusMaxIterations, StatusFailed, StatusCancelled:
		if rec.EndedAtUnixMs == 0 {
			rec.EndedAtUnixMs = nowUnixMs()
		}
	}

	return copyRecord(rec), nil
}

// SetSnapshot stores the engine's latest run snapshot. The snapshot is a
// private copy produced by the engine and is never mutated afterwards.
func (s *JobStore) SetSnapshot(jobID string, run *calibration.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("calibration not found: %s", jobID)
	}
	rec.Snapshot = run
	return nil
}

func copyRecord(rec *JobRecord) *JobRecord {
	cloned := *rec
	return &cloned
}
