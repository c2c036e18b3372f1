package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dmitriimaksimovdevelop/dbprobe/internal/model"
	"github.com/dmitriimaksimovdevelop/dbprobe/internal/orchestrator"
	"github.com/dmitriimaksimovdevelop/dbprobe/internal/probe"
)

// fakeInvoker records calls and returns a canned report or error.
type fakeInvoker struct {
	name   string
	params probe.Params
	report *model.Report
	err    error
}

func (f *fakeInvoker) Invoke(ctx context.Context, name string, params probe.Params) (*model.Report, error) {
	f.name = name
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	if f.report != nil {
		return f.report, nil
	}
	return model.NewReport(name, time.Now(), nil, nil), nil
}

func callRequest(args interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: args}}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) != 1 {
		t.Fatalf("expected 1 content item, got %d", len(result.Content))
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatal("expected TextContent")
	}
	return tc.Text
}

// --- getArgs / stringArg helpers ---

func TestGetArgs_NilArguments(t *testing.T) {
	args := getArgs(mcp.CallToolRequest{})
	if args == nil {
		t.Fatal("getArgs returned nil, expected empty map")
	}
	if len(args) != 0 {
		t.Fatalf("expected empty map, got %v", args)
	}
}

func TestGetArgs_ValidMap(t *testing.T) {
	args := getArgs(callRequest(map[string]interface{}{"key": "value"}))
	if v, ok := args["key"]; !ok || v != "value" {
		t.Fatalf("expected key=value, got %v", args)
	}
}

func TestGetArgs_WrongType(t *testing.T) {
	args := getArgs(callRequest("not a map"))
	if len(args) != 0 {
		t.Fatalf("expected empty map for wrong type, got %v", args)
	}
}

func TestStringArg(t *testing.T) {
	args := map[string]interface{}{"name": "hello", "nil": nil, "empty": "", "num": 42.0}
	cases := map[string]string{"name": "hello", "nil": "d", "empty": "d", "num": "d", "missing": "d"}
	for key, want := range cases {
		if got := stringArg(args, key, "d"); got != want {
			t.Errorf("stringArg(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestParamsFromDropsNulls(t *testing.T) {
	params := paramsFrom(map[string]interface{}{"hours": 12.0, "limit": nil})
	if len(params) != 1 || params["hours"] != 12.0 {
		t.Errorf("params = %v", params)
	}
}

// --- newTextResult / errResult ---

func TestNewTextResult(t *testing.T) {
	result := newTextResult("hello world")
	if result.IsError {
		t.Fatal("newTextResult should not set IsError")
	}
	if got := resultText(t, result); got != "hello world" {
		t.Fatalf("expected 'hello world', got %q", got)
	}
}

func TestErrResult(t *testing.T) {
	result := errResult("something failed")
	if !result.IsError {
		t.Fatal("errResult should set IsError=true")
	}
	if got := resultText(t, result); got != "something failed" {
		t.Fatalf("expected 'something failed', got %q", got)
	}
}

// --- probe tools ---

func TestToolHandlerForwardsArguments(t *testing.T) {
	inv := &fakeInvoker{report: model.NewReport(probe.NameBatchData, time.Now(), map[string]any{"hours": 12}, []model.Finding{{
		Category: model.CategoryBatchFailure, Severity: model.SeverityCritical, Subject: "7", Metric: 0.5,
	}})}
	srv := NewServer(inv, "test", nil)

	result, err := srv.toolHandler(probe.NameBatchData)(context.Background(),
		callRequest(map[string]interface{}{"hours": 12.0, "limit": nil}))
	if err != nil {
		t.Fatalf("handler returned transport error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}
	if inv.name != probe.NameBatchData || inv.params["hours"] != 12.0 {
		t.Errorf("invoked %s with %v", inv.name, inv.params)
	}
	if _, ok := inv.params["limit"]; ok {
		t.Error("null argument must be dropped")
	}

	var report model.Report
	if err := json.Unmarshal([]byte(resultText(t, result)), &report); err != nil {
		t.Fatalf("result is not a report: %v", err)
	}
	if report.Probe != probe.NameBatchData || len(report.Findings) != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestToolHandlerEmptyFindingsIsArray(t *testing.T) {
	srv := NewServer(&fakeInvoker{}, "test", nil)
	result, _ := srv.toolHandler(probe.NameDeadlock)(context.Background(), callRequest(nil))
	if !strings.Contains(resultText(t, result), `"findings":[]`) {
		t.Errorf("findings must be [], got %s", resultText(t, result))
	}
}

func TestToolHandlerProbeError(t *testing.T) {
	inv := &fakeInvoker{err: model.WithProbe(probe.NameAbnormalData,
		model.NewError(model.KindInvalidScope, "", "tables", `unknown scope "bogus"`, nil))}
	srv := NewServer(inv, "test", nil)

	result, err := srv.toolHandler(probe.NameAbnormalData)(context.Background(),
		callRequest(map[string]interface{}{"tables": "bogus"}))
	if err != nil {
		t.Fatalf("probe errors must be tool-level, got transport error %v", err)
	}
	if !result.IsError {
		t.Fatal("expected IsError")
	}

	var body toolError
	if err := json.Unmarshal([]byte(resultText(t, result)), &body); err != nil {
		t.Fatalf("error body is not JSON: %v", err)
	}
	if body.Kind != model.KindInvalidScope || body.Param != "tables" || body.Probe != probe.NameAbnormalData {
		t.Errorf("body = %+v", body)
	}
	if !strings.Contains(body.Message, "bogus") {
		t.Errorf("message = %q", body.Message)
	}
}

func TestProbeErrResultUnclassified(t *testing.T) {
	result := probeErrResult(probe.NameFileSize, context.DeadlineExceeded)
	var body toolError
	if err := json.Unmarshal([]byte(resultText(t, result)), &body); err != nil {
		t.Fatal(err)
	}
	if body.Probe != probe.NameFileSize || body.Kind != model.KindQueryExecution {
		t.Errorf("body = %+v", body)
	}
}

// --- explain_finding ---

func TestHandleExplainFinding(t *testing.T) {
	for _, name := range categoryNames() {
		result, err := handleExplainFinding(context.Background(),
			callRequest(map[string]interface{}{"category": name}))
		if err != nil {
			t.Fatal(err)
		}
		if result.IsError {
			t.Errorf("%s: unexpected error %s", name, resultText(t, result))
			continue
		}
		if !strings.Contains(resultText(t, result), "**Recommendations:**") {
			t.Errorf("%s: explanation lacks recommendations", name)
		}
	}
}

func TestHandleExplainFinding_Invalid(t *testing.T) {
	for _, args := range []interface{}{nil, map[string]interface{}{"category": "cpu"}} {
		result, err := handleExplainFinding(context.Background(), callRequest(args))
		if err != nil {
			t.Fatal(err)
		}
		if !result.IsError {
			t.Errorf("args %v: expected IsError", args)
		}
	}
}

// --- prompt ---

func TestDiagnosePrompt(t *testing.T) {
	inv := &fakeInvoker{}
	srv := NewServer(inv, "test", nil)

	var req mcp.GetPromptRequest
	req.Params.Arguments = map[string]string{"profile": "quick"}
	result, err := srv.handleDiagnosePrompt(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if inv.name != orchestrator.NameAll || inv.params["profile"] != "quick" {
		t.Errorf("invoked %s with %v", inv.name, inv.params)
	}
	if len(result.Messages) != 1 || result.Messages[0].Role != mcp.RoleUser {
		t.Fatalf("messages = %+v", result.Messages)
	}
	tc, ok := result.Messages[0].Content.(mcp.TextContent)
	if !ok || !strings.Contains(tc.Text, "PostgreSQL") {
		t.Errorf("prompt content = %+v", result.Messages[0].Content)
	}
}

// --- Server creation ---

func TestNewServer(t *testing.T) {
	srv := NewServer(&fakeInvoker{}, "1.0.0-test", nil)
	if srv == nil {
		t.Fatal("NewServer returned nil")
	}
	if srv.mcpServer == nil {
		t.Fatal("mcpServer is nil")
	}
}
