package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dmitriimaksimovdevelop/dbprobe/internal/model"
	"github.com/dmitriimaksimovdevelop/dbprobe/internal/orchestrator"
	"github.com/dmitriimaksimovdevelop/dbprobe/internal/output"
	"github.com/dmitriimaksimovdevelop/dbprobe/internal/probe"
)

// invokeTimeout bounds one tool call, including the combined check.
const invokeTimeout = 5 * time.Minute

// toolError is the body of a failed tool call.
type toolError struct {
	Probe   string          `json:"probe"`
	Kind    model.ErrorKind `json:"kind"`
	Param   string          `json:"param,omitempty"`
	Message string          `json:"message"`
}

// toolHandler invokes the named probe with the call's arguments.
func (s *Server) toolHandler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, cancel := context.WithTimeout(ctx, invokeTimeout)
		defer cancel()

		report, err := s.invoker.Invoke(ctx, name, paramsFrom(getArgs(request)))
		if err != nil {
			return probeErrResult(name, err), nil
		}

		jsonData, err := json.Marshal(report)
		if err != nil {
			return errResult(fmt.Sprintf("json marshal failed: %v", err)), nil
		}
		return newTextResult(string(jsonData)), nil
	}
}

// handleDiagnosePrompt runs the combined check and wraps the report into an
// analysis request.
func (s *Server) handleDiagnosePrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	ctx, cancel := context.WithTimeout(ctx, invokeTimeout)
	defer cancel()

	params := probe.Params{}
	if profile := request.Params.Arguments["profile"]; profile != "" {
		params["profile"] = profile
	}
	report, err := s.invoker.Invoke(ctx, orchestrator.NameAll, params)
	if err != nil {
		return nil, err
	}
	return &mcp.GetPromptResult{
		Description: "Database diagnosis",
		Messages: []mcp.PromptMessage{
			{
				Role:    mcp.RoleUser,
				Content: mcp.NewTextContent(output.GeneratePrompt(report)),
			},
		},
	}, nil
}

// handleExplainFinding describes a finding category.
func handleExplainFinding(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category := stringArg(getArgs(request), "category", "")
	if category == "" {
		return errResult("category is required"), nil
	}
	desc, ok := categoryExplanations[model.Category(category)]
	if !ok {
		return errResult(fmt.Sprintf("unknown category %q, want one of %v", category, categoryNames())), nil
	}
	return newTextResult(desc), nil
}

// paramsFrom drops null arguments so they count as absent.
func paramsFrom(args map[string]interface{}) probe.Params {
	params := make(probe.Params, len(args))
	for k, v := range args {
		if v != nil {
			params[k] = v
		}
	}
	return params
}

// probeErrResult reports a classified probe error as a tool-level error.
func probeErrResult(name string, err error) *mcp.CallToolResult {
	body := toolError{Probe: name, Kind: model.KindQueryExecution, Message: err.Error()}
	var pe *model.Error
	if errors.As(err, &pe) {
		body.Kind = pe.Kind
		body.Param = pe.Param
		if pe.Probe != "" {
			body.Probe = pe.Probe
		}
	}
	data, merr := json.Marshal(body)
	if merr != nil {
		return errResult(err.Error())
	}
	return errResult(string(data))
}

// getArgs safely extracts the arguments map from a CallToolRequest.
// Returns an empty map if Arguments is nil or not a map.
func getArgs(request mcp.CallToolRequest) map[string]interface{} {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}
	return args
}

// stringArg extracts a string argument with a default value.
func stringArg(args map[string]interface{}, key, defaultVal string) string {
	val, ok := args[key]
	if !ok || val == nil {
		return defaultVal
	}
	s, ok := val.(string)
	if !ok || s == "" {
		return defaultVal
	}
	return s
}

// newTextResult creates a successful MCP tool result with text content.
func newTextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: text,
			},
		},
	}
}

// errResult creates an MCP tool error result (IsError=true).
// This is returned as a tool-level error, not a transport-level JSON-RPC error.
func errResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: msg,
			},
		},
	}
}

func categoryNames() []string {
	return []string{
		string(model.CategorySlowQuery),
		string(model.CategoryDeadlock),
		string(model.CategoryStorageGrowth),
		string(model.CategoryDataAnomaly),
		string(model.CategoryBatchFailure),
	}
}

var categoryExplanations = map[model.Category]string{
	model.CategorySlowQuery: `**Slow Query**
A statement ran at or above the latency threshold (critical at twice the threshold).
**Root Causes:**
- Missing or unusable index (function on an indexed column, implicit cast)
- Full scan of a large table, unbounded ORDER BY or DISTINCT
- Lock waits inflating wall-clock time
**Recommendations:**
- Run EXPLAIN (ANALYZE, BUFFERS) on the statement from the finding subject.
- Check the recommendation field for pattern-specific hints.
- Run 'check_deadlock' if latency is erratic rather than steady.`,

	model.CategoryDeadlock: `**Blocked Session / Deadlock**
A backend is waiting on a lock held by another. A 'cycle' detail means a true deadlock that PostgreSQL will break after deadlock_timeout; otherwise it is a lock queue.
**Root Causes:**
- Long-running or idle-in-transaction session holding row locks
- Inconsistent lock ordering between code paths
- DDL (ALTER TABLE) queued behind readers, blocking everyone after it
**Recommendations:**
- Inspect blocking_pids and their 'state'; idle in transaction is the usual culprit.
- Acquire locks in a consistent order across transactions.
- Set idle_in_transaction_session_timeout and lock_timeout.`,

	model.CategoryStorageGrowth: `**Storage Growth**
Database size crossed the soft (warning) or hard (critical) capacity limit.
**Root Causes:**
- Table or index bloat from updates and deletes without vacuum
- Unbounded log or history tables
- Large indexes on rarely queried columns
**Recommendations:**
- Review top_objects for the largest relations.
- Check autovacuum activity and dead tuple counts in pg_stat_user_tables.
- Partition or archive history tables.`,

	model.CategoryDataAnomaly: `**Data Anomaly**
A domain row breaks a business rule: negative amount, status outside the allowed set, stock below zero or above its maximum, transaction below the allowed bound.
**Root Causes:**
- Missing CHECK constraint or validation in the writing service
- Race between concurrent stock updates
- Bad import or manual correction
**Recommendations:**
- Trace the row id back to the writing code path.
- Add CHECK constraints once existing rows are fixed.
- Use SELECT ... FOR UPDATE or atomic UPDATE ... SET stock = stock - n for stock changes.`,

	model.CategoryBatchFailure: `**Batch Failure**
A recent batch job ended in an error status or failed a share of its records.
**Root Causes:**
- Upstream data format change
- Timeouts or connection loss mid-run
- Constraint violations on insert
**Recommendations:**
- Read error_types and samples in the finding details.
- Re-run the job for failed records only once the cause is fixed.
- Alert on failure ratio, not only on job status.`,
}
