// Package orchestrator dispatches probe invocations by name and runs the
// combined check, where every probe runs in parallel and a failing probe is
// recorded without aborting the others.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitriimaksimovdevelop/dbprobe/internal/config"
	"github.com/dmitriimaksimovdevelop/dbprobe/internal/executor"
	"github.com/dmitriimaksimovdevelop/dbprobe/internal/metrics"
	"github.com/dmitriimaksimovdevelop/dbprobe/internal/model"
	"github.com/dmitriimaksimovdevelop/dbprobe/internal/probe"
)

// NameAll is the combined check.
const NameAll = "check_all"

const paramProfile = "profile"

// Orchestrator holds the registered probes.
type Orchestrator struct {
	probes map[string]probe.Probe
	order  []string
	logger *slog.Logger
	now    func() time.Time
}

// New creates an Orchestrator. Probes keep their registration order in
// combined-check statuses.
func New(logger *slog.Logger, probes ...probe.Probe) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	o := &Orchestrator{
		probes: make(map[string]probe.Probe, len(probes)),
		logger: logger,
		now:    time.Now,
	}
	for _, p := range probes {
		if _, dup := o.probes[p.Name()]; dup {
			continue
		}
		o.probes[p.Name()] = p
		o.order = append(o.order, p.Name())
	}
	return o
}

// RegisterProbes builds the five probes on top of one executor.
func RegisterProbes(ex *executor.Executor, cfg *config.Config) []probe.Probe {
	return []probe.Probe{
		probe.NewQueryPerformance(ex, cfg.SlowQuery),
		probe.NewDeadlock(ex),
		probe.NewStorage(ex, cfg.Storage),
		probe.NewAnomaly(ex, cfg.Anomaly),
		probe.NewBatch(ex, cfg.Batch),
	}
}

// Names returns the registered probe names in registration order.
func (o *Orchestrator) Names() []string {
	return append([]string{}, o.order...)
}

// Invoke runs one probe, or the combined check for NameAll. Returned errors
// are *model.Error stamped with the probe name.
func (o *Orchestrator) Invoke(ctx context.Context, name string, params probe.Params) (*model.Report, error) {
	if name == NameAll {
		return o.invokeAll(ctx, params)
	}
	p, ok := o.probes[name]
	if !ok {
		return nil, model.WithProbe(name, model.InvalidParameter("probe", "unknown probe %q", name))
	}
	return o.run(ctx, p, params)
}

func (o *Orchestrator) invokeAll(ctx context.Context, params probe.Params) (*model.Report, error) {
	var profile string
	for k, v := range params {
		if k != paramProfile {
			return nil, model.WithProbe(NameAll, model.InvalidParameter(k, "unknown parameter"))
		}
		s, ok := v.(string)
		if !ok {
			return nil, model.WithProbe(NameAll, model.InvalidParameter(k, "expected a string, got %T", v))
		}
		profile = s
	}
	return o.RunAll(ctx, profile)
}

// run executes a single probe with logging and metrics.
func (o *Orchestrator) run(ctx context.Context, p probe.Probe, params probe.Params) (*model.Report, error) {
	name := p.Name()
	log := o.logger.With("probe", name)
	log.Debug("probe started", "params", params)
	start := time.Now()

	report, err := p.Run(ctx, params)
	elapsed := time.Since(start)
	err = model.WithProbe(name, err)
	metrics.ObserveProbe(name, elapsed, err)

	if err != nil {
		if ctx.Err() != nil {
			log.Warn("probe interrupted", "duration", elapsed.Round(time.Millisecond), "error", err)
		} else {
			log.Error("probe failed", "duration", elapsed.Round(time.Millisecond), "kind", model.KindOf(err), "error", err)
		}
		return nil, err
	}

	metrics.ObserveFindings(name, string(model.SeverityCritical), report.Summary.Critical)
	metrics.ObserveFindings(name, string(model.SeverityWarning), report.Summary.Warning)
	metrics.ObserveFindings(name, string(model.SeverityInfo), report.Summary.Info)
	log.Info("probe done",
		"duration", elapsed.Round(time.Millisecond),
		"findings", report.Summary.Total,
		"critical", report.Summary.Critical,
		"warning", report.Summary.Warning)
	return report, nil
}

// RunAll executes the profile's probes in parallel with their profile
// parameters. A probe error is recorded in the report's probe statuses; the
// combined report is returned even when every probe failed. Only caller
// cancellation turns into an error.
func (o *Orchestrator) RunAll(ctx context.Context, profileName string) (*model.Report, error) {
	profile, ok := GetProfile(profileName)
	if !ok {
		return nil, model.WithProbe(NameAll, model.InvalidParameter(paramProfile,
			"unknown profile %q, want one of %v", profileName, ProfileNames()))
	}
	if profileName == "" {
		profileName = DefaultProfile
	}

	var active []probe.Probe
	for _, name := range o.order {
		if profile.includes(name) {
			active = append(active, o.probes[name])
		}
	}
	o.logger.Info("combined check started", "profile", profileName, "probes", len(active))
	start := time.Now()

	var (
		wg       sync.WaitGroup
		reports  = make([]*model.Report, len(active))
		statuses = make([]model.ProbeStatus, len(active))
	)
	for i, p := range active {
		wg.Add(1)
		go func(i int, p probe.Probe) {
			defer wg.Done()
			began := time.Now()
			report, err := o.run(ctx, p, profile.ParamsFor(p.Name()))
			status := model.ProbeStatus{
				Probe:      p.Name(),
				OK:         err == nil,
				DurationMs: float64(time.Since(began).Microseconds()) / 1000,
			}
			if err != nil {
				status.ErrorKind = model.KindOf(err)
				status.Error = err.Error()
			} else {
				status.Findings = len(report.Findings)
			}
			reports[i] = report
			statuses[i] = status
		}(i, p)
	}
	wg.Wait()

	if errors.Is(ctx.Err(), context.Canceled) {
		return nil, model.NewError(model.KindCanceled, NameAll, "", "combined check canceled", ctx.Err())
	}

	merged := model.Merge(NameAll, o.now(), reports, statuses)
	merged.Parameters = map[string]any{paramProfile: profileName}

	failed := 0
	for _, s := range statuses {
		if !s.OK {
			failed++
		}
	}
	o.logger.Info("combined check done",
		"duration", time.Since(start).Round(time.Millisecond),
		"findings", merged.Summary.Total,
		"failed_probes", failed,
		"health", fmt.Sprintf("%d/100", merged.Summary.HealthScore))
	return merged, nil
}
