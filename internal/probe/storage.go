package probe

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dmitriimaksimovdevelop/dbprobe/internal/config"
	"github.com/dmitriimaksimovdevelop/dbprobe/internal/executor"
	"github.com/dmitriimaksimovdevelop/dbprobe/internal/model"
)

const bytesPerMB = 1024 * 1024

// SizeReader reads aggregate storage sizes.
type SizeReader interface {
	DatabaseSize(ctx context.Context) (name string, bytes int64, err error)
	LargestRelations(ctx context.Context, n int, lockTimeout time.Duration) ([]executor.RelationSize, error)
}

// Storage is check_file_size. It compares the database size against soft
// and hard percentages of a configured capacity.
type Storage struct {
	db  SizeReader
	cfg config.StorageConfig
	now func() time.Time
}

// NewStorage creates the storage probe.
func NewStorage(db SizeReader, cfg config.StorageConfig) *Storage {
	return &Storage{db: db, cfg: cfg, now: time.Now}
}

func (s *Storage) Name() string { return NameFileSize }

// threshold returns the soft/hard limits in bytes.
func (s *Storage) threshold() model.Threshold {
	capacity := s.cfg.CapacityMB * bytesPerMB
	return model.Threshold{
		Warning:   capacity * s.cfg.SoftPct / 100,
		Critical:  capacity * s.cfg.HardPct / 100,
		Direction: model.Above,
		Inclusive: true,
	}
}

func (s *Storage) Run(ctx context.Context, params Params) (*model.Report, error) {
	ctx, echo, err := prepare(ctx, params)
	if err != nil {
		return nil, err
	}
	echo["capacity_mb"] = s.cfg.CapacityMB
	echo["soft_pct"] = s.cfg.SoftPct
	echo["hard_pct"] = s.cfg.HardPct

	name, size, err := s.db.DatabaseSize(ctx)
	if err != nil {
		return nil, err
	}

	sizeMB := roundTo(float64(size)/bytesPerMB, 2)
	sizeGB := roundTo(float64(size)/(bytesPerMB*1024), 2)
	usagePct := roundTo(float64(size)/(s.cfg.CapacityMB*bytesPerMB)*100, 1)

	msg := fmt.Sprintf("Database %s is %s MB (%s GB), %s%% of the %.0f MB capacity",
		name, formatFloat(sizeMB, 2), formatFloat(sizeGB, 2), formatFloat(usagePct, 1), s.cfg.CapacityMB)
	f, ok := model.NewFinding(model.CategoryStorageGrowth, name, float64(size), model.UnitBytes, s.threshold(), msg)
	if !ok {
		return model.NewReport(s.Name(), s.now(), echo, nil), nil
	}

	f.Recommendation = strings.Join(model.StorageRecommendations(usagePct), "; ")
	f.Details = map[string]string{
		"size_bytes": fmt.Sprintf("%d", size),
		"size_mb":    formatFloat(sizeMB, 2),
		"size_gb":    formatFloat(sizeGB, 2),
		"usage_pct":  formatFloat(usagePct, 1),
	}
	if s.cfg.TopObjects > 0 {
		// Best effort: a lock timeout here must not hide the size finding.
		rels, err := s.db.LargestRelations(ctx, s.cfg.TopObjects, s.cfg.LockTimeout)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, err
		case err != nil:
			f.Details["top_objects_error"] = string(model.KindOf(err))
		case len(rels) > 0:
			f.Details["top_objects"] = formatRelations(rels)
		}
	}
	return model.NewReport(s.Name(), s.now(), echo, []model.Finding{f}), nil
}

func formatRelations(rels []executor.RelationSize) string {
	parts := make([]string, len(rels))
	for i, r := range rels {
		parts[i] = fmt.Sprintf("%s=%s MB", r.Name, formatFloat(roundTo(float64(r.Bytes)/bytesPerMB, 2), 2))
	}
	return strings.Join(parts, ", ")
}

func roundTo(f float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(f*p) / p
}
