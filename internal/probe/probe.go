// Package probe implements the database diagnostics. Each probe validates its
// parameters, issues read-only queries through a narrow reader interface and
// classifies the rows into a model.Report.
package probe

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/dmitriimaksimovdevelop/dbprobe/internal/executor"
	"github.com/dmitriimaksimovdevelop/dbprobe/internal/model"
)

// Probe names as exposed to callers.
const (
	NameQueryResponseTime = "check_query_response_time"
	NameDeadlock          = "check_deadlock"
	NameFileSize          = "check_file_size"
	NameAbnormalData      = "check_abnormal_data"
	NameBatchData         = "check_batch_data"
)

// Probe is one independent diagnostic check.
type Probe interface {
	// Name returns the probe's invocation name, e.g. "check_deadlock".
	Name() string

	// Run validates params, queries the database and returns a report.
	// Parameter errors are returned before any query is issued.
	Run(ctx context.Context, params Params) (*model.Report, error)
}

// Params is the loosely-typed parameter map handed over by a transport.
// JSON numbers arrive as float64, CLI flags as strings; both are accepted.
type Params map[string]any

const paramTimeout = "timeout_ms"

// maxTimeoutMs bounds the per-call statement timeout.
const maxTimeoutMs = 300_000

// checkKnown rejects parameter names the probe does not accept.
func (p Params) checkKnown(allowed ...string) error {
	ok := map[string]bool{paramTimeout: true}
	for _, a := range allowed {
		ok[a] = true
	}
	var unknown []string
	for k := range p {
		if !ok[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return model.InvalidParameter(unknown[0], "unknown parameter")
}

// String returns the named parameter as a trimmed string. present is false
// when the parameter is absent, nil or blank.
func (p Params) String(name string) (s string, present bool, err error) {
	v, ok := p[name]
	if !ok || v == nil {
		return "", false, nil
	}
	s, err = cast.ToStringE(v)
	if err != nil {
		return "", false, model.InvalidParameter(name, "expected a string, got %T", v)
	}
	s = strings.TrimSpace(s)
	return s, s != "", nil
}

// Int returns the named parameter as an integer. Fractional numbers are
// rejected rather than truncated.
func (p Params) Int(name string) (n int, present bool, err error) {
	v, ok := p[name]
	if !ok || v == nil {
		return 0, false, nil
	}
	if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
		return 0, false, nil
	}
	if _, isBool := v.(bool); isBool {
		return 0, false, model.InvalidParameter(name, "expected an integer, got bool")
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false, model.InvalidParameter(name, "expected an integer, got %v", v)
	}
	if f != math.Trunc(f) {
		return 0, false, model.InvalidParameter(name, "expected an integer, got %v", v)
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false, model.InvalidParameter(name, "value %v out of range", v)
	}
	return int(f), true, nil
}

// intInRange reads an optional integer parameter bounded to [lo, hi].
func (p Params) intInRange(name string, def, lo, hi int) (int, error) {
	n, present, err := p.Int(name)
	if err != nil {
		return 0, err
	}
	if !present {
		return def, nil
	}
	if n < lo || n > hi {
		return 0, model.InvalidParameter(name, "must be between %d and %d, got %d", lo, hi, n)
	}
	return n, nil
}

// withTimeout applies the optional timeout_ms parameter to ctx and records
// it in echo.
func (p Params) withTimeout(ctx context.Context, echo map[string]any) (context.Context, error) {
	ms, present, err := p.Int(paramTimeout)
	if err != nil {
		return nil, err
	}
	if !present {
		return ctx, nil
	}
	if ms < 1 || ms > maxTimeoutMs {
		return nil, model.InvalidParameter(paramTimeout, "must be between 1 and %d, got %d", maxTimeoutMs, ms)
	}
	echo[paramTimeout] = ms
	return executor.WithStatementTimeout(ctx, time.Duration(ms)*time.Millisecond), nil
}

// prepare runs the checks every probe shares: unknown names and timeout_ms.
func prepare(ctx context.Context, params Params, allowed ...string) (context.Context, map[string]any, error) {
	if err := params.checkKnown(allowed...); err != nil {
		return nil, nil, err
	}
	echo := map[string]any{}
	ctx, err := params.withTimeout(ctx, echo)
	if err != nil {
		return nil, nil, err
	}
	return ctx, echo, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func formatFloat(f float64, prec int) string {
	return fmt.Sprintf("%.*f", prec, f)
}
