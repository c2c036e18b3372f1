package probe

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitriimaksimovdevelop/dbprobe/internal/config"
	"github.com/dmitriimaksimovdevelop/dbprobe/internal/executor"
	"github.com/dmitriimaksimovdevelop/dbprobe/internal/model"
)

const (
	paramQuery       = "query"
	paramThresholdMs = "threshold_ms"

	maxThresholdMs = 3_600_000
	subjectRunes   = 120
)

// QueryRunner executes a sandboxed statement or reads recorded timings.
type QueryRunner interface {
	ExecuteTimed(ctx context.Context, query string) (*executor.TimedResult, error)
	SlowQueryRecords(ctx context.Context, lookback time.Duration, minMs float64, limit int) ([]executor.SlowQueryRecord, error)
}

// QueryPerformance is check_query_response_time. With a query it times one
// execution; without one it reports recorded slow queries.
type QueryPerformance struct {
	db  QueryRunner
	cfg config.SlowQueryConfig
	now func() time.Time
}

// NewQueryPerformance creates the slow-query probe.
func NewQueryPerformance(db QueryRunner, cfg config.SlowQueryConfig) *QueryPerformance {
	return &QueryPerformance{db: db, cfg: cfg, now: time.Now}
}

func (q *QueryPerformance) Name() string { return NameQueryResponseTime }

func (q *QueryPerformance) Run(ctx context.Context, params Params) (*model.Report, error) {
	ctx, echo, err := prepare(ctx, params, paramQuery, paramThresholdMs)
	if err != nil {
		return nil, err
	}
	query, hasQuery, err := params.String(paramQuery)
	if err != nil {
		return nil, err
	}
	threshold, hasThreshold, err := params.Int(paramThresholdMs)
	if err != nil {
		return nil, err
	}
	if hasThreshold && (threshold < 1 || threshold > maxThresholdMs) {
		return nil, model.InvalidParameter(paramThresholdMs, "must be between 1 and %d, got %d", maxThresholdMs, threshold)
	}

	if hasQuery {
		thr := q.cfg.ThresholdMs
		if hasThreshold {
			thr = float64(threshold)
		}
		return q.execute(ctx, query, thr, echo)
	}

	minMs := q.cfg.RecordThresholdMs
	if hasThreshold {
		minMs = float64(threshold)
	}
	return q.records(ctx, minMs, echo)
}

func (q *QueryPerformance) execute(ctx context.Context, query string, thresholdMs float64, echo map[string]any) (*model.Report, error) {
	echo["mode"] = "execute"
	echo[paramQuery] = query
	echo[paramThresholdMs] = thresholdMs

	res, err := q.db.ExecuteTimed(ctx, query)
	if err != nil {
		return nil, err
	}

	elapsedMs := float64(res.Elapsed.Microseconds()) / 1000
	var findings []model.Finding
	msg := fmt.Sprintf("Query took %.2f ms (threshold %.0f ms), returned %d rows", elapsedMs, thresholdMs, res.Rows)
	if f, ok := model.NewFinding(model.CategorySlowQuery, truncate(res.Statement.Text, subjectRunes),
		elapsedMs, model.UnitMilliseconds, model.LatencyThreshold(thresholdMs), msg); ok {
		f.Recommendation = strings.Join(model.SlowQueryRecommendations(res.Statement.Text), "; ")
		f.Details = map[string]string{
			"rows_returned": strconv.Itoa(res.Rows),
			"statement":     res.Statement.Keyword,
		}
		findings = append(findings, f)
	}
	return model.NewReport(q.Name(), q.now(), echo, findings), nil
}

func (q *QueryPerformance) records(ctx context.Context, minMs float64, echo map[string]any) (*model.Report, error) {
	echo["mode"] = "records"
	echo[paramThresholdMs] = minMs
	echo["lookback"] = q.cfg.Lookback.String()
	echo["max_records"] = q.cfg.MaxRecords

	recs, err := q.db.SlowQueryRecords(ctx, q.cfg.Lookback, minMs, q.cfg.MaxRecords)
	if err != nil {
		return nil, err
	}

	findings := make([]model.Finding, 0, len(recs))
	for _, r := range recs {
		msg := fmt.Sprintf("Recorded execution of %.2f ms at %s (threshold %.0f ms)",
			r.ExecutionMs, r.ExecutedAt.UTC().Format(time.RFC3339), minMs)
		f, ok := model.NewFinding(model.CategorySlowQuery, truncate(r.Query, subjectRunes),
			r.ExecutionMs, model.UnitMilliseconds, model.LatencyThreshold(minMs), msg)
		if !ok {
			continue
		}
		f.Recommendation = strings.Join(model.SlowQueryRecommendations(r.Query), "; ")
		f.Details = map[string]string{
			"rows_affected": strconv.FormatInt(r.Rows, 10),
			"executed_at":   r.ExecutedAt.UTC().Format(time.RFC3339),
		}
		findings = append(findings, f)
	}
	return model.NewReport(q.Name(), q.now(), echo, findings), nil
}
