package model

import (
	"math"
	"testing"
)

func TestClassifyLatencyBoundaries(t *testing.T) {
	tests := []struct {
		name      string
		elapsed   float64
		threshold float64
		want      Severity
		found     bool
	}{
		{"well below", 10, 1000, "", false},
		{"just below T", 999.999, 1000, "", false},
		{"exactly T", 1000, 1000, SeverityWarning, true},
		{"between T and 2T", 1500, 1000, SeverityWarning, true},
		{"just below 2T", 1999.999, 1000, SeverityWarning, true},
		{"exactly 2T", 2000, 1000, SeverityCritical, true},
		{"far above", 60000, 1000, SeverityCritical, true},
		{"small threshold", 2, 1, SeverityCritical, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ClassifyLatency(tt.elapsed, tt.threshold)
			if ok != tt.found {
				t.Fatalf("ClassifyLatency(%v, %v) found = %v, want %v", tt.elapsed, tt.threshold, ok, tt.found)
			}
			if got != tt.want {
				t.Errorf("ClassifyLatency(%v, %v) = %q, want %q", tt.elapsed, tt.threshold, got, tt.want)
			}
		})
	}
}

func TestClassifyLatencyMonotonic(t *testing.T) {
	for _, threshold := range []float64{1, 50, 500, 1000, 2500} {
		prev := 0
		for l := 0.0; l <= 3*threshold; l += threshold / 8 {
			sev, _ := ClassifyLatency(l, threshold)
			if sev.Rank() < prev {
				t.Fatalf("severity decreased at L=%v T=%v", l, threshold)
			}
			prev = sev.Rank()
		}
	}
}

func TestThresholdBelowExclusive(t *testing.T) {
	th := Threshold{Warning: -100, Critical: -1000, Direction: Below}

	if _, _, ok := th.Classify(-100); ok {
		t.Error("-100 must not cross an exclusive -100 bound")
	}
	sev, bound, ok := th.Classify(-350.5)
	if !ok || sev != SeverityWarning || bound != -100 {
		t.Errorf("Classify(-350.5) = %q, %v, %v; want warning, -100, true", sev, bound, ok)
	}
	sev, bound, ok = th.Classify(-1000)
	if !ok || sev != SeverityWarning {
		t.Errorf("Classify(-1000) = %q, %v; want warning (critical bound is exclusive)", sev, ok)
	}
	sev, bound, ok = th.Classify(-1000.01)
	if !ok || sev != SeverityCritical || bound != -1000 {
		t.Errorf("Classify(-1000.01) = %q, %v, %v; want critical, -1000, true", sev, bound, ok)
	}
}

func TestThresholdInfiniteCritical(t *testing.T) {
	th := Threshold{Warning: 1, Critical: math.Inf(1), Direction: Above, Inclusive: true}
	sev, _, ok := th.Classify(1)
	if !ok || sev != SeverityWarning {
		t.Errorf("Classify(1) = %q, %v; want warning", sev, ok)
	}
	if sev, _, _ := th.Classify(math.Inf(1)); sev != SeverityWarning {
		t.Errorf("Classify(+Inf) = %q, want warning", sev)
	}
}

func TestThresholdNaN(t *testing.T) {
	if _, _, ok := LatencyThreshold(100).Classify(math.NaN()); ok {
		t.Error("NaN must never produce a finding")
	}
}

func TestNewFinding(t *testing.T) {
	f, ok := NewFinding(CategorySlowQuery, "SELECT 1", 2500, UnitMilliseconds, LatencyThreshold(1000), "slow")
	if !ok {
		t.Fatal("expected a finding")
	}
	if f.Severity != SeverityCritical {
		t.Errorf("severity = %q, want critical", f.Severity)
	}
	if f.Threshold != 2000 {
		t.Errorf("threshold = %v, want the crossed bound 2000", f.Threshold)
	}

	if _, ok := NewFinding(CategorySlowQuery, "SELECT 1", 10, UnitMilliseconds, LatencyThreshold(1000), "fast"); ok {
		t.Error("expected no finding below threshold")
	}
}
