package runner

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chromaflow/calibration-core/internal/paramspace"
	"github.com/chromaflow/calibration-core/internal/solver"
	"github.com/chromaflow/calibration-core/pkg/chrom"
)

func paramsWithValue(t *testing.T, v float64) *paramspace.Set {
	t.Helper()
	s, err := paramspace.NewSet(
		paramspace.Parameter{ID: "binding_k_eq", Value: v, Min: 0, Max: 100},
	)
	if err != nil {
		t.Fatalf("Failed to create params: %v", err)
	}
	return s
}

// echoAdapter returns a one-sample profile whose value is the input
// parameter, so tests can verify slot ordering.
func echoAdapter(delay func(v float64) time.Duration) solver.Func {
	return func(ctx context.Context, params *paramspace.Set, column *chrom.ColumnConfig) (*chrom.Profile, error) {
		v, err := params.Value("binding_k_eq")
		if err != nil {
			return nil, err
		}
		if delay != nil {
			select {
			case <-time.After(delay(v)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return &chrom.Profile{
			Times:  []float64{0},
			Series: []chrom.Series{{Species: "protein_a", Values: []float64{v}}},
		}, nil
	}
}

func TestRunBatchPreservesOrder(t *testing.T) {
	// Later slots finish first; results must still land by request index.
	adapter := echoAdapter(func(v float64) time.Duration {
		return time.Duration(50-v) * time.Millisecond
	})
	r := New(adapter, 8)

	requests := make([]Request, 8)
	for i := range requests {
		requests[i] = Request{Params: paramsWithValue(t, float64(i))}
	}

	batch := r.RunBatch(context.Background(), requests)
	if batch.Cancelled {
		t.Fatal("Batch should not be cancelled")
	}
	if len(batch.Results) != len(requests) {
		t.Fatalf("Expected %d results, got %d", len(requests), len(batch.Results))
	}
	for i, res := range batch.Results {
		if res.Err != nil {
			t.Fatalf("Slot %d failed: %v", i, res.Err)
		}
		if got := res.Profile.Series[0].Values[0]; got != float64(i) {
			t.Errorf("Slot %d: expected value %d, got %g", i, i, got)
		}
	}
}

func TestRunBatchIsolatesFailures(t *testing.T) {
	adapter := solver.Func(func(ctx context.Context, params *paramspace.Set, column *chrom.ColumnConfig) (*chrom.Profile, error) {
		v, _ := params.Value("binding_k_eq")
		if v == 2 {
			return nil, fmt.Errorf("diverged")
		}
		return &chrom.Profile{
			Times:  []float64{0},
			Series: []chrom.Series{{Species: "protein_a", Values: []float64{v}}},
		}, nil
	})
	r := New(adapter, 2)

	requests := []Request{
		{Params: paramsWithValue(t, 1)},
		{Params: paramsWithValue(t, 2)},
		{Params: paramsWithValue(t, 3)},
	}
	batch := r.RunBatch(context.Background(), requests)

	if batch.Cancelled {
		t.Fatal("Batch should not be cancelled")
	}
	if batch.Results[0].Err != nil || batch.Results[2].Err != nil {
		t.Errorf("Healthy slots failed: %v, %v", batch.Results[0].Err, batch.Results[2].Err)
	}
	var divergence *solver.DivergenceError
	if !errors.As(batch.Results[1].Err, &divergence) {
		t.Errorf("Expected DivergenceError in slot 1, got %v", batch.Results[1].Err)
	}
}

func TestRunBatchIsolatesTimeouts(t *testing.T) {
	// Slot 1 sleeps past its timeout; its siblings must resolve normally.
	adapter := echoAdapter(func(v float64) time.Duration {
		if v == 1 {
			return time.Second
		}
		return 0
	})
	r := New(adapter, 3)

	requests := []Request{
		{Params: paramsWithValue(t, 0)},
		{Params: paramsWithValue(t, 1), Options: solver.Options{Timeout: 50 * time.Millisecond}},
		{Params: paramsWithValue(t, 2)},
	}
	batch := r.RunBatch(context.Background(), requests)

	if batch.Cancelled {
		t.Fatal("Batch should not be cancelled")
	}
	if len(batch.Results) != 3 {
		t.Fatalf("Expected 3 slots, got %d", len(batch.Results))
	}
	var timeout *solver.TimeoutError
	if !errors.As(batch.Results[1].Err, &timeout) {
		t.Errorf("Expected TimeoutError in slot 1, got %v", batch.Results[1].Err)
	}
	for _, i := range []int{0, 2} {
		if batch.Results[i].Err != nil {
			t.Errorf("Slot %d failed: %v", i, batch.Results[i].Err)
		}
		if got := batch.Results[i].Profile.Series[0].Values[0]; got != float64(i) {
			t.Errorf("Slot %d: expected value %d, got %g", i, i, got)
		}
	}
}

func TestRunBatchBoundsConcurrency(t *testing.T) {
	var active, peak atomic.Int64
	adapter := solver.Func(func(ctx context.Context, params *paramspace.Set, column *chrom.ColumnConfig) (*chrom.Profile, error) {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return &chrom.Profile{
			Times:  []float64{0},
			Series: []chrom.Series{{Species: "protein_a", Values: []float64{0}}},
		}, nil
	})

	r := New(adapter, 3)
	requests := make([]Request, 12)
	for i := range requests {
		requests[i] = Request{Params: paramsWithValue(t, float64(i))}
	}
	batch := r.RunBatch(context.Background(), requests)

	for i, res := range batch.Results {
		if res.Err != nil {
			t.Fatalf("Slot %d failed: %v", i, res.Err)
		}
	}
	if got := peak.Load(); got > 3 {
		t.Errorf("Expected at most 3 concurrent invocations, saw %d", got)
	}
}

func TestRunBatchCancellation(t *testing.T) {
	release := make(chan struct{})
	adapter := solver.Func(func(ctx context.Context, params *paramspace.Set, column *chrom.ColumnConfig) (*chrom.Profile, error) {
		select {
		case <-release:
			return &chrom.Profile{
				Times:  []float64{0},
				Series: []chrom.Series{{Species: "protein_a", Values: []float64{1}}},
			}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	r := New(adapter, 1)
	requests := make([]Request, 4)
	for i := range requests {
		requests[i] = Request{Params: paramsWithValue(t, float64(i))}
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
		close(release)
	}()

	batch := r.RunBatch(ctx, requests)
	if !batch.Cancelled {
		t.Fatal("Expected batch marked cancelled")
	}
	if len(batch.Results) != 4 {
		t.Fatalf("Expected 4 slots, got %d", len(batch.Results))
	}

	notStarted := 0
	for _, res := range batch.Results {
		if errors.Is(res.Err, ErrNotStarted) {
			notStarted++
		}
	}
	if notStarted == 0 {
		t.Error("Expected at least one slot marked ErrNotStarted")
	}
}

func TestDefaultConcurrency(t *testing.T) {
	if got := DefaultConcurrency(); got < 1 {
		t.Errorf("Expected at least 1, got %d", got)
	}
	r := New(echoAdapter(nil), 0)
	if r.maxConcurrency < 1 {
		t.Errorf("Expected default concurrency applied, got %d", r.maxConcurrency)
	}
}

func TestRunBatchEmpty(t *testing.T) {
	r := New(echoAdapter(nil), 2)
	batch := r.RunBatch(context.Background(), nil)
	if batch.Cancelled || len(batch.Results) != 0 {
		t.Errorf("Expected empty uncancelled batch, got %+v", batch)
	}
}
