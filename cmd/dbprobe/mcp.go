package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/dmitriimaksimovdevelop/dbprobe/internal/mcp"
	"github.com/dmitriimaksimovdevelop/dbprobe/internal/metrics"
)

func newMCPCmd(flags *globalFlags) *cobra.Command {
	var (
		transport string
		addr      string
	)

	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start Model Context Protocol (MCP) server",
		Long: `Starts a JSON-RPC server implementing the Model Context Protocol (MCP).
This allows AI agents (e.g., Claude Desktop, Cursor) to run the probes
and read their findings.

Communication happens over standard input/output (stdio) by default,
or over streamable HTTP with --transport http.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("transport") {
				cfg.Server.Transport = transport
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Address = addr
			}

			ctx, stop := signalContext()
			defer stop()

			orch, cleanup, err := connect(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			if cfg.Server.MetricsAddress != "" {
				if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
					return fmt.Errorf("register metrics: %w", err)
				}
				go serveMetrics(ctx, cfg.Server.MetricsAddress, cfg.Server.GracefulTimeout, logger)
			}

			srv := mcp.NewServer(orch, version, logger)
			switch cfg.Server.Transport {
			case "", "stdio":
				logger.Info("mcp server started", "transport", "stdio", "probes", orch.Names())
				return srv.Start(ctx)
			case "http":
				return srv.StartHTTP(ctx, cfg.Server.Address)
			default:
				return fmt.Errorf("unknown transport %q, want stdio or http", cfg.Server.Transport)
			}
		},
	}
	mcpCmd.Flags().StringVar(&transport, "transport", "stdio", "Transport: stdio or http")
	mcpCmd.Flags().StringVar(&addr, "addr", ":9002", "Listen address for --transport http")
	return mcpCmd
}

// serveMetrics exposes /metrics until ctx is done.
func serveMetrics(ctx context.Context, addr string, grace time.Duration, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server stopped", "error", err)
	}
}
