package probe

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dmitriimaksimovdevelop/dbprobe/internal/config"
	"github.com/dmitriimaksimovdevelop/dbprobe/internal/executor"
	"github.com/dmitriimaksimovdevelop/dbprobe/internal/model"
)

const (
	paramHours = "hours"
	paramLimit = "limit"

	defaultHours = 24
	defaultLimit = 5
)

// BatchReader returns failing batch jobs with their error rollups.
type BatchReader interface {
	FailedBatches(ctx context.Context, hours int, errorStatuses []string, limit, samples int) ([]executor.BatchJob, error)
}

// Batch is check_batch_data. Findings keep recency order, most recent first.
type Batch struct {
	db  BatchReader
	cfg config.BatchConfig
	now func() time.Time
}

// NewBatch creates the batch failure analyzer.
func NewBatch(db BatchReader, cfg config.BatchConfig) *Batch {
	return &Batch{db: db, cfg: cfg, now: time.Now}
}

func (b *Batch) Name() string { return NameBatchData }

func (b *Batch) Run(ctx context.Context, params Params) (*model.Report, error) {
	ctx, echo, err := prepare(ctx, params, paramHours, paramLimit)
	if err != nil {
		return nil, err
	}
	hours, err := params.intInRange(paramHours, defaultHours, 1, b.cfg.MaxLookbackHours)
	if err != nil {
		return nil, err
	}
	limit, present, err := params.Int(paramLimit)
	if err != nil {
		return nil, err
	}
	switch {
	case !present:
		limit = defaultLimit
	case limit < 1:
		return nil, model.InvalidParameter(paramLimit, "must be at least 1, got %d", limit)
	case limit > b.cfg.MaxLimit:
		limit = b.cfg.MaxLimit
	}
	echo[paramHours] = hours
	echo[paramLimit] = limit

	jobs, err := b.db.FailedBatches(ctx, hours, b.cfg.ErrorStatuses, limit, b.cfg.SampleMessages)
	if err != nil {
		return nil, err
	}

	t := model.Threshold{Warning: 0, Critical: b.cfg.CriticalRatio, Direction: model.Above}
	findings := make([]model.Finding, 0, len(jobs))
	for _, j := range jobs {
		ratio := b.failureRatio(j)
		f, ok := model.NewFinding(model.CategoryBatchFailure, j.ID, ratio, model.UnitRatio, t, batchMessage(j, ratio))
		if !ok {
			continue
		}
		f.Recommendation = model.BatchRecommendation
		f.Details = batchDetails(j)
		findings = append(findings, f)
	}
	return model.NewOrderedReport(b.Name(), b.now(), echo, findings), nil
}

func (b *Batch) errorStatus(status string) bool {
	for _, s := range b.cfg.ErrorStatuses {
		if strings.EqualFold(s, status) {
			return true
		}
	}
	return false
}

// failureRatio is failed/total. A job in an error state whose counts do not
// show any failure failed as a whole and scores 1.0.
func (b *Batch) failureRatio(j executor.BatchJob) float64 {
	var ratio float64
	switch {
	case j.Failed.Valid && j.Failed.Int64 > 0 && j.Total.Valid && j.Total.Int64 > 0:
		ratio = float64(j.Failed.Int64) / float64(j.Total.Int64)
	case j.Failed.Valid && j.Failed.Int64 > 0:
		ratio = 1
	}
	if ratio > 1 {
		ratio = 1
	}
	if ratio == 0 && b.errorStatus(j.Status) {
		ratio = 1
	}
	return ratio
}

func batchMessage(j executor.BatchJob, ratio float64) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Batch %s (%s, status %s)", j.ID, j.JobType, j.Status)
	if j.Failed.Valid && j.Total.Valid {
		fmt.Fprintf(&sb, ": %d of %d records failed (%.2f%%)", j.Failed.Int64, j.Total.Int64, ratio*100)
	} else {
		fmt.Fprintf(&sb, ": failure ratio %.2f", ratio)
	}
	if len(j.Samples) > 0 {
		fmt.Fprintf(&sb, "; errors: %s", strings.Join(j.Samples, " | "))
	}
	return sb.String()
}

func batchDetails(j executor.BatchJob) map[string]string {
	d := map[string]string{
		"job_type": j.JobType,
		"status":   j.Status,
	}
	if j.Total.Valid {
		d["total_records"] = strconv.FormatInt(j.Total.Int64, 10)
	}
	if j.Processed.Valid {
		d["processed_records"] = strconv.FormatInt(j.Processed.Int64, 10)
	}
	if j.Failed.Valid {
		d["failed_records"] = strconv.FormatInt(j.Failed.Int64, 10)
	}
	if ts := j.LastActivity(); !ts.IsZero() {
		d["last_activity"] = ts.UTC().Format(time.RFC3339)
	}
	if len(j.ErrorTypes) > 0 {
		types := make([]string, 0, len(j.ErrorTypes))
		for t := range j.ErrorTypes {
			types = append(types, t)
		}
		sort.Strings(types)
		parts := make([]string, len(types))
		for i, t := range types {
			parts[i] = fmt.Sprintf("%s=%d", t, j.ErrorTypes[t])
		}
		d["error_types"] = strings.Join(parts, ", ")
	}
	return d
}
