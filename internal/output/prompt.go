package output

import (
	"fmt"
	"strings"

	"github.com/dmitriimaksimovdevelop/dbprobe/internal/model"
)

// GeneratePrompt turns a report into an analysis request for an AI agent.
func GeneratePrompt(report *model.Report) string {
	var sb strings.Builder
	sb.WriteString("You are a PostgreSQL performance and data-quality expert. ")
	sb.WriteString("Analyze the following dbprobe report and provide:\n")
	sb.WriteString("1. Root cause analysis for each finding\n")
	sb.WriteString("2. Concrete remediation steps with SQL where applicable\n")
	sb.WriteString("3. Investigation priorities ordered by impact\n\n")

	sb.WriteString(fmt.Sprintf("Probe: %s, executed at %s\n",
		report.Probe, report.ExecutedAt.Format("2006-01-02T15:04:05Z07:00")))
	if len(report.Parameters) > 0 {
		sb.WriteString(fmt.Sprintf("Parameters: %s\n", formatParams(report.Parameters)))
	}
	sb.WriteString(fmt.Sprintf("Health Score: %d/100\n", report.Summary.HealthScore))

	var failed []model.ProbeStatus
	for _, s := range report.Probes {
		if !s.OK {
			failed = append(failed, s)
		}
	}
	if len(failed) > 0 {
		sb.WriteString(fmt.Sprintf("\nProbes that could not complete (%d):\n", len(failed)))
		for _, s := range failed {
			sb.WriteString(fmt.Sprintf("  %s: %s (%s)\n", s.Probe, s.ErrorKind, s.Error))
		}
		sb.WriteString("Their domains are unobserved, not healthy.\n")
	}

	if len(report.Findings) == 0 {
		sb.WriteString("\nNo findings. Confirm whether thresholds match the workload.\n")
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("\nFindings (%d):\n", len(report.Findings)))
	categories := map[model.Category]bool{}
	for _, f := range report.Findings {
		categories[f.Category] = true
		sb.WriteString(fmt.Sprintf("  [%s] %s %s: %s (metric=%s %s, threshold=%s)\n",
			strings.ToUpper(string(f.Severity)), f.Category, f.Subject, f.Message,
			formatNumber(f.Metric), f.Unit, formatNumber(f.Threshold)))
	}

	hints := categoryHints()
	sb.WriteString("\nContext:\n")
	for _, c := range []model.Category{
		model.CategoryDeadlock,
		model.CategoryStorageGrowth,
		model.CategorySlowQuery,
		model.CategoryDataAnomaly,
		model.CategoryBatchFailure,
	} {
		if categories[c] {
			sb.WriteString("  - " + hints[c] + "\n")
		}
	}

	sb.WriteString("\nProvide actionable, specific steps. Do not suggest terminating sessions ")
	sb.WriteString("without naming the blocking transaction first.\n")
	return sb.String()
}

func categoryHints() map[model.Category]string {
	return map[model.Category]string{
		model.CategoryDeadlock:      "deadlock: subjects are blocked backend pids; a cycle detail means a true deadlock, otherwise a lock queue behind a long transaction",
		model.CategoryStorageGrowth: "storage_growth: metric is database size in bytes against the soft/hard capacity limits; top_objects lists the largest relations",
		model.CategorySlowQuery:     "slow_query: metric is execution time in ms; look for missing indexes, full scans and unbounded sorts",
		model.CategoryDataAnomaly:   "data_anomaly: subjects are row ids violating business rules (negative amounts, invalid statuses, stock bounds)",
		model.CategoryBatchFailure:  "batch_failure: metric is the failed/total ratio of a batch job; error_types and samples describe the failures",
	}
}
