package output

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/dmitriimaksimovdevelop/dbprobe/internal/model"
)

// WriteText renders a report for a terminal.
func WriteText(w io.Writer, report *model.Report) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s  %s  health %d/100\n",
		report.Probe, report.ExecutedAt.Format("2006-01-02 15:04:05Z07:00"), report.Summary.HealthScore)
	if len(report.Parameters) > 0 {
		fmt.Fprintf(&sb, "parameters: %s\n", formatParams(report.Parameters))
	}
	fmt.Fprintf(&sb, "findings: %d (critical %d, warning %d, info %d)\n",
		report.Summary.Total, report.Summary.Critical, report.Summary.Warning, report.Summary.Info)

	if len(report.Probes) > 0 {
		sb.WriteString("\n")
		tw := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PROBE\tSTATUS\tFINDINGS\tDURATION")
		for _, s := range report.Probes {
			status := "ok"
			if !s.OK {
				status = string(s.ErrorKind)
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%.1fms\n", s.Probe, status, s.Findings, s.DurationMs)
		}
		tw.Flush()
		for _, s := range report.Probes {
			if !s.OK && s.Error != "" {
				fmt.Fprintf(&sb, "  %s: %s\n", s.Probe, s.Error)
			}
		}
	}

	if len(report.Findings) == 0 {
		sb.WriteString("\nno issues found\n")
	}
	for i, f := range report.Findings {
		fmt.Fprintf(&sb, "\n%d. [%s] %s %s\n", i+1, strings.ToUpper(string(f.Severity)), f.Category, f.Subject)
		fmt.Fprintf(&sb, "   %s\n", f.Message)
		fmt.Fprintf(&sb, "   metric %s %s, threshold %s\n", formatNumber(f.Metric), f.Unit, formatNumber(f.Threshold))
		for _, k := range sortedKeys(f.Details) {
			fmt.Fprintf(&sb, "   %s: %s\n", k, f.Details[k])
		}
		if f.Recommendation != "" {
			fmt.Fprintf(&sb, "   -> %s\n", f.Recommendation)
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func formatParams(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, params[k])
	}
	return strings.Join(parts, " ")
}

func formatNumber(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
