// dbprobe runs diagnostic probes against a PostgreSQL database.
//
// It runs read-only checks for slow queries, lock waits, storage growth,
// anomalous domain rows and failing batch jobs, and reports structured
// findings to an operator (CLI) or an AI agent (MCP).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dmitriimaksimovdevelop/dbprobe/internal/config"
	diffpkg "github.com/dmitriimaksimovdevelop/dbprobe/internal/diff"
	"github.com/dmitriimaksimovdevelop/dbprobe/internal/executor"
	"github.com/dmitriimaksimovdevelop/dbprobe/internal/orchestrator"
	"github.com/dmitriimaksimovdevelop/dbprobe/internal/output"
)

var (
	version = "0.1.0"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	logJSON    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags globalFlags

	rootCmd := &cobra.Command{
		Use:   "dbprobe",
		Short: "Diagnostic probes for PostgreSQL",
		Long: `dbprobe: read-only diagnostics for a PostgreSQL database.

Probes:
  check_query_response_time  slow statements (timed on demand or from the query log)
  check_deadlock             sessions blocked on locks, wait-for cycles
  check_file_size            database size against capacity limits
  check_abnormal_data        orders, inventory and transactions breaking business rules
  check_batch_data           recent failing batch jobs

Reports are JSON by default. Run 'dbprobe mcp' to expose the probes as MCP tools.`,
		Version:       version,
		SilenceUsage:  true,
	}
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Config file (YAML); defaults to $DBPROBE_CONFIG")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error, quiet")
	rootCmd.PersistentFlags().BoolVar(&flags.logJSON, "log-json", false, "Write logs as JSON")

	rootCmd.AddCommand(newCheckCmd(&flags), newMCPCmd(&flags), newDiffCmd())
	return rootCmd
}

// loadConfig reads the config and applies the logging flags.
func loadConfig(flags *globalFlags) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, nil, err
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if flags.logJSON {
		cfg.Logging.JSON = true
	}
	return cfg, output.NewLogger(cfg.Logging.Level, cfg.Logging.JSON), nil
}

// connect opens the pool and registers the probes on it. The returned
// cleanup closes the pool.
func connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*orchestrator.Orchestrator, func(), error) {
	db, err := executor.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	ex := executor.New(db, executor.Options{
		Dialect:          executor.Postgres,
		StatementTimeout: cfg.Database.StatementTimeout,
		AllowWrites:      cfg.Sandbox.AllowWrites,
	})
	logger.Debug("connected", "database", cfg.Database.Redacted())
	if cfg.Sandbox.AllowWrites {
		logger.Warn("sandbox disabled: execute-query mode accepts writes")
	}

	orch := orchestrator.New(logger, orchestrator.RegisterProbes(ex, cfg)...)
	return orch, func() { ex.Close() }, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newDiffCmd() *cobra.Command {
	var diffOutput string

	diffCmd := &cobra.Command{
		Use:   "diff <baseline.json> <current.json>",
		Short: "Compare two dbprobe reports",
		Long:  "Produce a diff report showing new, resolved and changed findings, probe failures and the health delta.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(args[0], args[1], diffOutput)
		},
	}
	diffCmd.Flags().StringVarP(&diffOutput, "output", "o", "-", "Output diff file path")
	return diffCmd
}

// runDiff handles the `diff` command.
func runDiff(baselinePath, currentPath, outputPath string) error {
	baseline, err := diffpkg.LoadReport(baselinePath)
	if err != nil {
		return fmt.Errorf("load baseline: %w", err)
	}
	current, err := diffpkg.LoadReport(currentPath)
	if err != nil {
		return fmt.Errorf("load current: %w", err)
	}

	result := diffpkg.Compare(baseline, current)

	if outputPath == "-" {
		// Print human-readable diff
		fmt.Print(diffpkg.FormatDiff(result))
	} else {
		// Write JSON diff
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		return os.WriteFile(outputPath, data, 0644)
	}
	return nil
}
