package utils

import (
	"strings"
	"testing"
)

func TestRandSourceDeterministic(t *testing.T) {
	a := NewRandSource(42)
	b := NewRandSource(42)
	for i := 0; i < 10; i++ {
		if a.Float64() != b.Float64() {
			t.Fatal("Same seed must produce the same sequence")
		}
	}
}

func TestUniformFloat64Bounds(t *testing.T) {
	r := NewRandSource(1)
	for i := 0; i < 100; i++ {
		v := r.UniformFloat64(2.0, 5.0)
		if v < 2.0 || v >= 5.0 {
			t.Fatalf("Expected value in [2, 5), got %g", v)
		}
	}
}

func TestNormFloat64Centered(t *testing.T) {
	r := NewRandSource(7)
	sum := 0.0
	const n = 10000
	for i := 0; i < n; i++ {
		sum += r.NormFloat64(3.0, 0.5)
	}
	mean := sum / n
	if mean < 2.9 || mean > 3.1 {
		t.Errorf("Expected sample mean near 3.0, got %g", mean)
	}
}

func TestClampFloat64(t *testing.T) {
	tests := []struct {
		value, min, max, want float64
	}{
		{5, 0, 10, 5},
		{-1, 0, 10, 0},
		{11, 0, 10, 10},
		{0, 0, 10, 0},
		{10, 0, 10, 10},
	}
	for _, tt := range tests {
		if got := ClampFloat64(tt.value, tt.min, tt.max); got != tt.want {
			t.Errorf("ClampFloat64(%g, %g, %g): expected %g, got %g",
				tt.value, tt.min, tt.max, tt.want, got)
		}
	}
}

func TestGenerateRunID(t *testing.T) {
	a := GenerateRunID()
	b := GenerateRunID()
	if !strings.HasPrefix(a, "cal-") {
		t.Errorf("Expected cal- prefix, got %s", a)
	}
	if a == b {
		t.Error("Expected distinct IDs")
	}
}
