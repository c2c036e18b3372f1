package model

import "math"

// Direction tells the classifier which side of a bound is bad.
type Direction int

const (
	// Above flags values at or over the bound.
	Above Direction = iota
	// Below flags values under the bound.
	Below
)

// Threshold defines a two-level classification rule.
// For Above rules Critical must be >= Warning, for Below rules <= Warning.
// Inclusive controls whether hitting a bound exactly counts as crossing it.
type Threshold struct {
	Warning   float64
	Critical  float64
	Direction Direction
	Inclusive bool
}

// Classify grades value against t. It returns the severity and the bound that
// was crossed; ok is false when value is within bounds.
func (t Threshold) Classify(value float64) (sev Severity, bound float64, ok bool) {
	if math.IsNaN(value) {
		return "", 0, false
	}
	switch {
	case t.crosses(value, t.Critical):
		return SeverityCritical, t.Critical, true
	case t.crosses(value, t.Warning):
		return SeverityWarning, t.Warning, true
	default:
		return "", 0, false
	}
}

func (t Threshold) crosses(value, bound float64) bool {
	if math.IsInf(bound, 0) && math.IsInf(value, 0) {
		return false
	}
	if t.Direction == Below {
		if t.Inclusive {
			return value <= bound
		}
		return value < bound
	}
	if t.Inclusive {
		return value >= bound
	}
	return value > bound
}

// LatencyThreshold is the slow-query rule: warning at T, critical at 2T,
// both inclusive.
func LatencyThreshold(thresholdMs float64) Threshold {
	return Threshold{
		Warning:   thresholdMs,
		Critical:  2 * thresholdMs,
		Direction: Above,
		Inclusive: true,
	}
}

// ClassifyLatency grades an elapsed time against a slow-query threshold.
func ClassifyLatency(elapsedMs, thresholdMs float64) (Severity, bool) {
	sev, _, ok := LatencyThreshold(thresholdMs).Classify(elapsedMs)
	return sev, ok
}

// NewFinding classifies metric against t and builds a finding when the
// threshold is crossed. The finding's Threshold is the bound that was hit.
func NewFinding(cat Category, subject string, metric float64, unit string, t Threshold, message string) (Finding, bool) {
	sev, bound, ok := t.Classify(metric)
	if !ok {
		return Finding{}, false
	}
	return Finding{
		Category:  cat,
		Severity:  sev,
		Subject:   subject,
		Metric:    metric,
		Unit:      unit,
		Threshold: bound,
		Message:   message,
	}, true
}
