package model

import (
	"sort"
	"time"
)

// NewReport assembles a report from findings in the standard order:
// severity descending, metric descending, subject ascending.
// A nil findings slice becomes an empty one.
func NewReport(probe string, executedAt time.Time, params map[string]any, findings []Finding) *Report {
	out := make([]Finding, len(findings))
	copy(out, findings)
	SortFindings(out)
	return newReport(probe, executedAt, params, out)
}

// NewOrderedReport assembles a report keeping findings in the given order.
// Used by probes whose natural order is not severity (batch recency).
func NewOrderedReport(probe string, executedAt time.Time, params map[string]any, findings []Finding) *Report {
	out := make([]Finding, len(findings))
	copy(out, findings)
	return newReport(probe, executedAt, params, out)
}

func newReport(probe string, executedAt time.Time, params map[string]any, findings []Finding) *Report {
	return &Report{
		Probe:         probe,
		SchemaVersion: SchemaVersion,
		ExecutedAt:    executedAt.UTC(),
		Parameters:    params,
		Findings:      findings,
		Summary:       Summarize(findings),
	}
}

// SortFindings orders findings in place by severity descending, then metric
// descending, then subject and message ascending for stable output.
func SortFindings(findings []Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if ra, rb := a.Severity.Rank(), b.Severity.Rank(); ra != rb {
			return ra > rb
		}
		if a.Metric != b.Metric {
			return a.Metric > b.Metric
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Subject != b.Subject {
			return a.Subject < b.Subject
		}
		return a.Message < b.Message
	})
}

// Summarize counts findings per severity and derives the health score.
func Summarize(findings []Finding) Summary {
	s := Summary{Total: len(findings)}
	for _, f := range findings {
		switch f.Severity {
		case SeverityCritical:
			s.Critical++
		case SeverityWarning:
			s.Warning++
		case SeverityInfo:
			s.Info++
		}
	}
	s.HealthScore = ComputeHealthScore(findings)
	return s
}

// Merge combines several probe reports into one combined report. Findings
// from all reports are re-sorted across categories; statuses are kept in the
// order given.
func Merge(probe string, executedAt time.Time, reports []*Report, statuses []ProbeStatus) *Report {
	var all []Finding
	for _, r := range reports {
		if r == nil {
			continue
		}
		all = append(all, r.Findings...)
	}
	merged := NewReport(probe, executedAt, nil, all)
	merged.Probes = append([]ProbeStatus{}, statuses...)
	return merged
}
