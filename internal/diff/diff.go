// Package diff compares two dbprobe reports and highlights regressions and
// improvements.
package diff

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/dmitriimaksimovdevelop/dbprobe/internal/model"
)

// Change directions.
const (
	Regression  = "regression"
	Improvement = "improvement"
	Unchanged   = "unchanged"
)

// DiffReport contains the comparison between two reports.
type DiffReport struct {
	Baseline     string          `json:"baseline"`
	Current      string          `json:"current"`
	TimeDelta    string          `json:"time_delta"`
	Changes      []FindingChange `json:"changes"`
	Probes       []ProbeChange   `json:"probes,omitempty"`
	Regressions  int             `json:"regressions"`
	Improvements int             `json:"improvements"`
	HealthDelta  int             `json:"health_delta"` // positive = improved
}

// FindingChange describes one finding that appeared, disappeared or moved
// between reports. Findings are matched by category and subject.
type FindingChange struct {
	Category     model.Category `json:"category"`
	Subject      string         `json:"subject"`
	Status       string         `json:"status"` // "new", "resolved", "changed"
	OldSeverity  model.Severity `json:"old_severity,omitempty"`
	NewSeverity  model.Severity `json:"new_severity,omitempty"`
	OldValue     float64        `json:"old_value"`
	NewValue     float64        `json:"new_value"`
	DeltaPct     float64        `json:"delta_pct"`
	Direction    string         `json:"direction"`
	Significance string         `json:"significance"` // "high", "medium", "low"
}

// ProbeChange records a probe that started or stopped failing.
type ProbeChange struct {
	Probe     string          `json:"probe"`
	OldOK     bool            `json:"old_ok"`
	NewOK     bool            `json:"new_ok"`
	ErrorKind model.ErrorKind `json:"error_kind,omitempty"`
	Direction string          `json:"direction"`
}

// LoadReport reads and parses a JSON report file.
func LoadReport(path string) (*model.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var report model.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if report.SchemaVersion != "" && report.SchemaVersion != model.SchemaVersion {
		return nil, fmt.Errorf("parse %s: unsupported schema version %s", path, report.SchemaVersion)
	}
	return &report, nil
}

type key struct {
	category model.Category
	subject  string
}

// Compare computes differences between two reports.
func Compare(baseline, current *model.Report) *DiffReport {
	diff := &DiffReport{
		Baseline:    baseline.ExecutedAt.Format("2006-01-02T15:04:05Z07:00"),
		Current:     current.ExecutedAt.Format("2006-01-02T15:04:05Z07:00"),
		TimeDelta:   current.ExecutedAt.Sub(baseline.ExecutedAt).String(),
		Changes:     []FindingChange{},
		HealthDelta: current.Summary.HealthScore - baseline.Summary.HealthScore,
	}

	oldFindings := index(baseline.Findings)
	newFindings := index(current.Findings)

	for k, n := range newFindings {
		o, ok := oldFindings[k]
		if !ok {
			diff.Changes = append(diff.Changes, FindingChange{
				Category:     k.category,
				Subject:      k.subject,
				Status:       "new",
				NewSeverity:  n.Severity,
				NewValue:     n.Metric,
				Direction:    Regression,
				Significance: significanceOf(n.Severity),
			})
			continue
		}
		if c, changed := compareFinding(o, n); changed {
			diff.Changes = append(diff.Changes, c)
		}
	}
	for k, o := range oldFindings {
		if _, ok := newFindings[k]; ok {
			continue
		}
		diff.Changes = append(diff.Changes, FindingChange{
			Category:     k.category,
			Subject:      k.subject,
			Status:       "resolved",
			OldSeverity:  o.Severity,
			OldValue:     o.Metric,
			Direction:    Improvement,
			Significance: significanceOf(o.Severity),
		})
	}

	sort.Slice(diff.Changes, func(i, j int) bool {
		a, b := diff.Changes[i], diff.Changes[j]
		if a.Direction != b.Direction {
			return a.Direction == Regression
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.Subject < b.Subject
	})

	diff.Probes = compareProbes(baseline.Probes, current.Probes)

	for _, c := range diff.Changes {
		switch c.Direction {
		case Regression:
			diff.Regressions++
		case Improvement:
			diff.Improvements++
		}
	}
	for _, p := range diff.Probes {
		switch p.Direction {
		case Regression:
			diff.Regressions++
		case Improvement:
			diff.Improvements++
		}
	}
	return diff
}

// index keeps the most severe finding per key.
func index(findings []model.Finding) map[key]model.Finding {
	out := make(map[key]model.Finding, len(findings))
	for _, f := range findings {
		k := key{f.Category, f.Subject}
		if prev, ok := out[k]; ok && prev.Severity.Rank() >= f.Severity.Rank() {
			continue
		}
		out[k] = f
	}
	return out
}

func compareFinding(o, n model.Finding) (FindingChange, bool) {
	delta := n.Metric - o.Metric
	deltaPct := 0.0
	if o.Metric != 0 {
		deltaPct = (delta / math.Abs(o.Metric)) * 100
	}
	if o.Severity == n.Severity && math.Abs(deltaPct) < 1.0 && math.Abs(delta) < 0.1 {
		return FindingChange{}, false
	}

	direction := Unchanged
	switch {
	case n.Severity.Rank() > o.Severity.Rank():
		direction = Regression
	case n.Severity.Rank() < o.Severity.Rank():
		direction = Improvement
	case math.Abs(deltaPct) > 5:
		// Findings crossing a lower bound get worse as the metric falls.
		higherIsWorse := n.Metric >= n.Threshold
		if (delta > 0) == higherIsWorse {
			direction = Regression
		} else {
			direction = Improvement
		}
	}

	significance := "low"
	absPct := math.Abs(deltaPct)
	if absPct >= 50 || n.Severity.Rank()-o.Severity.Rank() > 1 || o.Severity.Rank()-n.Severity.Rank() > 1 {
		significance = "high"
	} else if absPct >= 20 || o.Severity != n.Severity {
		significance = "medium"
	}

	return FindingChange{
		Category:     n.Category,
		Subject:      n.Subject,
		Status:       "changed",
		OldSeverity:  o.Severity,
		NewSeverity:  n.Severity,
		OldValue:     o.Metric,
		NewValue:     n.Metric,
		DeltaPct:     deltaPct,
		Direction:    direction,
		Significance: significance,
	}, true
}

func compareProbes(oldStatuses, newStatuses []model.ProbeStatus) []ProbeChange {
	old := make(map[string]model.ProbeStatus, len(oldStatuses))
	for _, s := range oldStatuses {
		old[s.Probe] = s
	}
	var out []ProbeChange
	for _, n := range newStatuses {
		o, ok := old[n.Probe]
		if !ok || o.OK == n.OK {
			continue
		}
		c := ProbeChange{Probe: n.Probe, OldOK: o.OK, NewOK: n.OK, Direction: Improvement}
		if !n.OK {
			c.Direction = Regression
			c.ErrorKind = n.ErrorKind
		}
		out = append(out, c)
	}
	return out
}

func significanceOf(sev model.Severity) string {
	switch sev {
	case model.SeverityCritical:
		return "high"
	case model.SeverityWarning:
		return "medium"
	default:
		return "low"
	}
}

// FormatDiff returns a human-readable diff summary.
func FormatDiff(d *DiffReport) string {
	var sb strings.Builder

	sb.WriteString("=== Report Diff ===\n")
	sb.WriteString(fmt.Sprintf("Baseline: %s\n", d.Baseline))
	sb.WriteString(fmt.Sprintf("Current:  %s (%s later)\n\n", d.Current, d.TimeDelta))

	symbol := "→"
	if d.HealthDelta > 0 {
		symbol = "↑"
	} else if d.HealthDelta < 0 {
		symbol = "↓"
	}
	sb.WriteString(fmt.Sprintf("Health Score: %+d %s\n", d.HealthDelta, symbol))
	sb.WriteString(fmt.Sprintf("Regressions: %d, Improvements: %d\n\n", d.Regressions, d.Improvements))

	if d.Regressions > 0 {
		sb.WriteString("⚠ Regressions:\n")
		writeChanges(&sb, d, Regression)
		sb.WriteString("\n")
	}
	if d.Improvements > 0 {
		sb.WriteString("✓ Improvements:\n")
		writeChanges(&sb, d, Improvement)
	}
	return sb.String()
}

func writeChanges(sb *strings.Builder, d *DiffReport, direction string) {
	for _, p := range d.Probes {
		if p.Direction != direction {
			continue
		}
		if p.NewOK {
			sb.WriteString(fmt.Sprintf("  [PROBE] %s recovered\n", p.Probe))
		} else {
			sb.WriteString(fmt.Sprintf("  [PROBE] %s now failing (%s)\n", p.Probe, p.ErrorKind))
		}
	}
	for _, c := range d.Changes {
		if c.Direction != direction {
			continue
		}
		label := strings.ToUpper(c.Significance)
		switch c.Status {
		case "new":
			sb.WriteString(fmt.Sprintf("  [%s] new %s %s: %s at %.2f\n", label, c.Category, c.Subject, c.NewSeverity, c.NewValue))
		case "resolved":
			sb.WriteString(fmt.Sprintf("  [%s] resolved %s %s (was %s at %.2f)\n", label, c.Category, c.Subject, c.OldSeverity, c.OldValue))
		default:
			sb.WriteString(fmt.Sprintf("  [%s] %s %s: %s %.2f → %s %.2f (%+.1f%%)\n",
				label, c.Category, c.Subject, c.OldSeverity, c.OldValue, c.NewSeverity, c.NewValue, c.DeltaPct))
		}
	}
}
