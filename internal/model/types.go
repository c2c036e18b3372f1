// Package model defines the data types produced by dbprobe probes.
// These types are serialized to JSON and consumed by agents and operators.
// Schema version: 1.0.0
package model

import "time"

// SchemaVersion is the version of the report JSON layout.
const SchemaVersion = "1.0.0"

// Severity grades a finding.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rank orders severities: critical > warning > info. Unknown values rank lowest.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// Category identifies which probe domain a finding belongs to.
type Category string

const (
	CategorySlowQuery     Category = "slow_query"
	CategoryDeadlock      Category = "deadlock"
	CategoryStorageGrowth Category = "storage_growth"
	CategoryDataAnomaly   Category = "data_anomaly"
	CategoryBatchFailure  Category = "batch_failure"
)

// --- Report: top-level output ---

// Report is the DiagnosticReport returned by a single probe or by the
// combined check.
type Report struct {
	Probe         string         `json:"probe"`
	SchemaVersion string         `json:"schema_version"`
	ExecutedAt    time.Time      `json:"executed_at"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	Findings      []Finding      `json:"findings"`
	Summary       Summary        `json:"summary"`
	Probes        []ProbeStatus  `json:"probes,omitempty"`
}

// Finding is one reported issue with the measurement that justifies it.
type Finding struct {
	Category       Category          `json:"category"`
	Severity       Severity          `json:"severity"`
	Subject        string            `json:"subject"`
	Metric         float64           `json:"metric"`
	Unit           string            `json:"unit"`
	Threshold      float64           `json:"threshold"`
	Message        string            `json:"message"`
	Recommendation string            `json:"recommendation,omitempty"`
	Details        map[string]string `json:"details,omitempty"`
}

// Summary counts findings per severity.
type Summary struct {
	Total       int `json:"total"`
	Critical    int `json:"critical"`
	Warning     int `json:"warning"`
	Info        int `json:"info"`
	HealthScore int `json:"health_score"`
}

// ProbeStatus records how one probe fared inside a combined check.
type ProbeStatus struct {
	Probe      string    `json:"probe"`
	OK         bool      `json:"ok"`
	ErrorKind  ErrorKind `json:"error_kind,omitempty"`
	Error      string    `json:"error,omitempty"`
	Findings   int       `json:"findings"`
	DurationMs float64   `json:"duration_ms"`
}

// Units used in findings.
const (
	UnitMilliseconds = "ms"
	UnitBytes        = "bytes"
	UnitRatio        = "ratio"
	UnitCount        = "count"
	UnitAmount       = "amount"
)
