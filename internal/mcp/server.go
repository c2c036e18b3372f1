// Package mcp exposes the probes as MCP tools over stdio or streamable HTTP.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dmitriimaksimovdevelop/dbprobe/internal/model"
	"github.com/dmitriimaksimovdevelop/dbprobe/internal/orchestrator"
	"github.com/dmitriimaksimovdevelop/dbprobe/internal/probe"
)

// Invoker runs a probe by name. *orchestrator.Orchestrator implements it.
type Invoker interface {
	Invoke(ctx context.Context, name string, params probe.Params) (*model.Report, error)
}

// Server wraps the MCP server instance.
type Server struct {
	mcpServer *server.MCPServer
	invoker   Invoker
	logger    *slog.Logger
}

// NewServer creates a new MCP server with registered tools.
func NewServer(invoker Invoker, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		mcpServer: server.NewMCPServer("dbprobe", version, server.WithLogging()),
		invoker:   invoker,
		logger:    logger,
	}
	s.registerTools()
	s.registerPrompts()
	return s
}

// Start runs the server in stdio mode (blocking).
func (s *Server) Start(ctx context.Context) error {
	stdioServer := server.NewStdioServer(s.mcpServer)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// StartHTTP serves streamable HTTP on addr until ctx is done.
func (s *Server) StartHTTP(ctx context.Context, addr string) error {
	httpServer := server.NewStreamableHTTPServer(s.mcpServer)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("mcp http listening", "addr", addr)
		errCh <- httpServer.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("mcp http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("mcp http shutdown: %w", err)
		}
		return nil
	}
}

// registerTools adds one tool per probe plus the combined check.
func (s *Server) registerTools() {
	timeout := mcp.WithNumber("timeout_ms",
		mcp.Description("Statement timeout for this call in milliseconds (1-300000). Defaults to the configured timeout."),
		mcp.Min(1),
		mcp.Max(300000),
	)

	queryTool := mcp.NewTool(probe.NameQueryResponseTime,
		mcp.WithDescription("Find slow queries. With 'query', runs that read-only statement and classifies its latency "+
			"(warning at >= threshold_ms, critical at >= 2x). Without it, lists recent slow queries from the query log."),
		mcp.WithString("query",
			mcp.Description("A single read-only SQL statement to time. Writes and multiple statements are refused."),
		),
		mcp.WithNumber("threshold_ms",
			mcp.Description("Latency threshold in milliseconds (default 1000)."),
			mcp.Min(1),
		),
		timeout,
	)
	s.mcpServer.AddTool(queryTool, s.toolHandler(probe.NameQueryResponseTime))

	deadlockTool := mcp.NewTool(probe.NameDeadlock,
		mcp.WithDescription("Report sessions blocked on locks right now, who blocks them, and any wait-for cycles. "+
			"Detection only; nothing is terminated."),
		timeout,
	)
	s.mcpServer.AddTool(deadlockTool, s.toolHandler(probe.NameDeadlock))

	sizeTool := mcp.NewTool(probe.NameFileSize,
		mcp.WithDescription("Report database size against the configured capacity limits, with the largest relations."),
		timeout,
	)
	s.mcpServer.AddTool(sizeTool, s.toolHandler(probe.NameFileSize))

	anomalyTool := mcp.NewTool(probe.NameAbnormalData,
		mcp.WithDescription("Scan domain tables for rows breaking business rules: negative or invalid order amounts and statuses, "+
			"stock outside its bounds, transactions below the allowed amount."),
		mcp.WithString("tables",
			mcp.Description("Which tables to scan."),
			mcp.DefaultString(probe.ScopeAll.String()),
			mcp.Enum(probe.ScopeNames()...),
		),
		timeout,
	)
	s.mcpServer.AddTool(anomalyTool, s.toolHandler(probe.NameAbnormalData))

	batchTool := mcp.NewTool(probe.NameBatchData,
		mcp.WithDescription("List recent failing batch jobs with their failure ratio, error type breakdown and sample messages, most recent first."),
		mcp.WithNumber("hours",
			mcp.Description("Look-back window in hours (default 24)."),
			mcp.Min(1),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of jobs to report (default 5)."),
			mcp.Min(1),
		),
		timeout,
	)
	s.mcpServer.AddTool(batchTool, s.toolHandler(probe.NameBatchData))

	allTool := mcp.NewTool(orchestrator.NameAll,
		mcp.WithDescription("Run every probe in parallel and return one merged report. A failing probe is listed in 'probes' "+
			"without aborting the others."),
		mcp.WithString("profile",
			mcp.Description("quick (catalog checks only), standard (all probes), deep (all probes, one-week batch window)"),
			mcp.DefaultString(orchestrator.DefaultProfile),
			mcp.Enum(orchestrator.ProfileNames()...),
		),
	)
	s.mcpServer.AddTool(allTool, s.toolHandler(orchestrator.NameAll))

	explainTool := mcp.NewTool("explain_finding",
		mcp.WithDescription("Get the meaning, usual root causes and next steps for a finding category."),
		mcp.WithString("category",
			mcp.Required(),
			mcp.Description("Finding category, as in a report's findings[].category."),
			mcp.Enum(categoryNames()...),
		),
	)
	s.mcpServer.AddTool(explainTool, handleExplainFinding)
}

func (s *Server) registerPrompts() {
	diagnose := mcp.NewPrompt("diagnose_database",
		mcp.WithPromptDescription("Run the combined check and ask for a root cause analysis of the findings."),
		mcp.WithArgument("profile",
			mcp.ArgumentDescription("quick, standard or deep. Default: standard"),
		),
	)
	s.mcpServer.AddPrompt(diagnose, s.handleDiagnosePrompt)
}
