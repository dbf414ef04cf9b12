package paramspace

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func testSet(t *testing.T) *Set {
	t.Helper()
	s, err := NewSet(
		Parameter{ID: "binding_k_eq", Value: 1.0, Min: 0.1, Max: 10.0},
		Parameter{ID: "axial_dispersion", Value: 6e-6, Min: 1e-7, Max: 1e-4, Fixed: true},
		Parameter{ID: "binding_k_d", Value: 0.5, Min: 0.01, Max: 5.0},
	)
	if err != nil {
		t.Fatalf("Failed to create set: %v", err)
	}
	return s
}

func TestNewSetValidation(t *testing.T) {
	tests := []struct {
		name   string
		params []Parameter
	}{
		{"empty id", []Parameter{{ID: "", Value: 1, Min: 0, Max: 2}}},
		{"duplicate id", []Parameter{
			{ID: "k", Value: 1, Min: 0, Max: 2},
			{ID: "k", Value: 1, Min: 0, Max: 2},
		}},
		{"min above max", []Parameter{{ID: "k", Value: 1, Min: 3, Max: 2}}},
		{"value below min", []Parameter{{ID: "k", Value: -1, Min: 0, Max: 2}}},
		{"value above max", []Parameter{{ID: "k", Value: 3, Min: 0, Max: 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSet(tt.params...); err == nil {
				t.Errorf("Expected error for %s, got nil", tt.name)
			}
		})
	}
}

func TestSetRejectsInvalidAssignments(t *testing.T) {
	s := testSet(t)

	var unknown *UnknownParameterError
	if err := s.Set("no_such_param", 1.0); !errors.As(err, &unknown) {
		t.Errorf("Expected UnknownParameterError, got %v", err)
	}

	var fixed *FixedParameterError
	if err := s.Set("axial_dispersion", 2e-6); !errors.As(err, &fixed) {
		t.Errorf("Expected FixedParameterError, got %v", err)
	}

	var oob *OutOfBoundsError
	if err := s.Set("binding_k_eq", 11.0); !errors.As(err, &oob) {
		t.Errorf("Expected OutOfBoundsError, got %v", err)
	}

	// Rejected assignments must leave the set unchanged.
	if v, _ := s.Value("binding_k_eq"); v != 1.0 {
		t.Errorf("Expected binding_k_eq unchanged at 1.0, got %g", v)
	}
	if v, _ := s.Value("axial_dispersion"); v != 6e-6 {
		t.Errorf("Expected axial_dispersion unchanged at 6e-6, got %g", v)
	}
}

func TestFreeDimensionsOrder(t *testing.T) {
	s := testSet(t)
	want := []string{"binding_k_eq", "binding_k_d"}
	if diff := cmp.Diff(want, s.FreeDimensions()); diff != "" {
		t.Errorf("FreeDimensions mismatch (-want +got):\n%s", diff)
	}
}

func TestVectorRoundTrip(t *testing.T) {
	s := testSet(t)
	v := s.AsVector()
	if diff := cmp.Diff([]float64{1.0, 0.5}, v); diff != "" {
		t.Fatalf("AsVector mismatch (-want +got):\n%s", diff)
	}

	// as_vector(from_vector(v)) == v for any in-bounds v
	v2 := []float64{2.5, 0.25}
	got, err := s.FromVector(v2)
	if err != nil {
		t.Fatalf("FromVector failed: %v", err)
	}
	if diff := cmp.Diff(v2, got.AsVector()); diff != "" {
		t.Errorf("Round-trip mismatch (-want +got):\n%s", diff)
	}

	// The source set is untouched and fixed parameters survive.
	if diff := cmp.Diff(v, s.AsVector()); diff != "" {
		t.Errorf("Source set mutated (-want +got):\n%s", diff)
	}
	if fixed, _ := got.Value("axial_dispersion"); fixed != 6e-6 {
		t.Errorf("Expected fixed parameter preserved at 6e-6, got %g", fixed)
	}
}

func TestFromVectorDimensionMismatch(t *testing.T) {
	s := testSet(t)
	var mismatch *DimensionMismatchError
	if _, err := s.FromVector([]float64{1.0}); !errors.As(err, &mismatch) {
		t.Fatalf("Expected DimensionMismatchError, got %v", err)
	}
	if mismatch.Want != 2 || mismatch.Got != 1 {
		t.Errorf("Expected want=2 got=1, got want=%d got=%d", mismatch.Want, mismatch.Got)
	}
}

func TestFromVectorBounds(t *testing.T) {
	s := testSet(t)

	var oob *OutOfBoundsError
	if _, err := s.FromVector([]float64{20.0, 0.5}); !errors.As(err, &oob) {
		t.Fatalf("Expected OutOfBoundsError, got %v", err)
	}

	// Clamping must be requested explicitly.
	got, err := s.FromVectorWith([]float64{20.0, -1.0}, VectorOptions{Clamp: true})
	if err != nil {
		t.Fatalf("FromVectorWith(clamp) failed: %v", err)
	}
	if diff := cmp.Diff([]float64{10.0, 0.01}, got.AsVector()); diff != "" {
		t.Errorf("Clamped vector mismatch (-want +got):\n%s", diff)
	}
}

func TestCloneIndependence(t *testing.T) {
	s := testSet(t)
	c := s.Clone()
	if err := c.Set("binding_k_eq", 9.0); err != nil {
		t.Fatalf("Set on clone failed: %v", err)
	}
	if v, _ := s.Value("binding_k_eq"); v != 1.0 {
		t.Errorf("Clone mutation leaked into source: got %g", v)
	}
}

func TestParametersSnapshot(t *testing.T) {
	s := testSet(t)
	params := s.Parameters()
	if len(params) != 3 {
		t.Fatalf("Expected 3 parameters, got %d", len(params))
	}
	if params[0].ID != "binding_k_eq" || params[1].ID != "axial_dispersion" || params[2].ID != "binding_k_d" {
		t.Errorf("Parameters out of insertion order: %v", params)
	}

	params[0].Value = 99
	if v, _ := s.Value("binding_k_eq"); v != 1.0 {
		t.Errorf("Snapshot mutation leaked into set: got %g", v)
	}
}
