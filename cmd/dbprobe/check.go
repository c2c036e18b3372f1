package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dmitriimaksimovdevelop/dbprobe/internal/orchestrator"
	"github.com/dmitriimaksimovdevelop/dbprobe/internal/output"
	"github.com/dmitriimaksimovdevelop/dbprobe/internal/probe"
)

// probeAliases maps short CLI names onto probe names.
var probeAliases = map[string]string{
	"query":         probe.NameQueryResponseTime,
	"deadlock":      probe.NameDeadlock,
	"file-size":     probe.NameFileSize,
	"size":          probe.NameFileSize,
	"abnormal-data": probe.NameAbnormalData,
	"anomaly":       probe.NameAbnormalData,
	"batch":         probe.NameBatchData,
	"all":           orchestrator.NameAll,
}

// flagParams maps CLI flags onto probe parameter names.
var flagParams = map[string]string{
	"query":        "query",
	"threshold-ms": "threshold_ms",
	"timeout-ms":   "timeout_ms",
	"tables":       "tables",
	"hours":        "hours",
	"limit":        "limit",
	"profile":      "profile",
}

// resolveProbe accepts a probe name or one of its aliases.
func resolveProbe(arg string) (string, error) {
	if name, ok := probeAliases[arg]; ok {
		return name, nil
	}
	for _, name := range probeAliases {
		if name == arg {
			return name, nil
		}
	}
	aliases := make([]string, 0, len(probeAliases))
	for a := range probeAliases {
		aliases = append(aliases, a)
	}
	sort.Strings(aliases)
	return "", fmt.Errorf("unknown probe %q, want one of %s", arg, strings.Join(aliases, ", "))
}

// paramsFromFlags copies only the flags the user set, so each probe sees
// exactly what was asked and rejects parameters it does not take.
func paramsFromFlags(fs *pflag.FlagSet) (probe.Params, error) {
	params := probe.Params{}
	var err error
	fs.Visit(func(f *pflag.Flag) {
		name, ok := flagParams[f.Name]
		if !ok || err != nil {
			return
		}
		switch f.Value.Type() {
		case "int":
			var v int
			v, err = fs.GetInt(f.Name)
			params[name] = v
		default:
			params[name] = f.Value.String()
		}
	})
	return params, err
}

func newCheckCmd(flags *globalFlags) *cobra.Command {
	var (
		checkOutput string
		checkFormat string
	)

	checkCmd := &cobra.Command{
		Use:   "check <probe>",
		Short: "Run one probe, or all of them",
		Long: `Run a probe and print its report.

Probe names: query, deadlock, file-size, abnormal-data, batch, all
(the full check_* names work too). Only the flags you set are passed on;
a flag the probe does not take is an error.`,
		Example: `  dbprobe check query --query "SELECT count(*) FROM orders" --threshold-ms 200
  dbprobe check abnormal-data --tables inventory
  dbprobe check batch --hours 48 --limit 10
  dbprobe check all --profile quick --format text`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := resolveProbe(args[0])
			if err != nil {
				return err
			}
			params, err := paramsFromFlags(cmd.Flags())
			if err != nil {
				return err
			}

			cfg, logger, err := loadConfig(flags)
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			orch, cleanup, err := connect(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			report, err := orch.Invoke(ctx, name, params)
			if err != nil {
				return err
			}
			return output.WriteFile(report, checkOutput, checkFormat)
		},
	}

	checkCmd.Flags().String("query", "", "SQL statement to time (check_query_response_time)")
	checkCmd.Flags().Int("threshold-ms", 0, "Latency threshold in ms (check_query_response_time)")
	checkCmd.Flags().Int("timeout-ms", 0, "Statement timeout for this run in ms")
	checkCmd.Flags().String("tables", "", "Tables to scan: orders, inventory, transactions, all (check_abnormal_data)")
	checkCmd.Flags().Int("hours", 0, "Look-back window in hours (check_batch_data)")
	checkCmd.Flags().Int("limit", 0, "Maximum jobs to report (check_batch_data)")
	checkCmd.Flags().String("profile", "", "Combined check profile: quick, standard, deep (all)")
	checkCmd.Flags().StringVarP(&checkOutput, "output", "o", "-", "Output file path (- for stdout)")
	checkCmd.Flags().StringVarP(&checkFormat, "format", "f", output.FormatJSON, "Output format: json, text, prompt")
	return checkCmd
}
