// Package metrics exposes Prometheus instrumentation for probe runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// OutcomeSuccess labels probe runs that returned a report.
	OutcomeSuccess = "success"
	// OutcomeError labels probe runs that failed.
	OutcomeError = "error"
)

var (
	probeRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dbprobe",
			Name:      "probe_runs_total",
			Help:      "Total number of probe runs, partitioned by probe and outcome.",
		},
		[]string{"probe", "outcome"},
	)

	probeDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dbprobe",
			Name:      "probe_duration_seconds",
			Help:      "Probe latency in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"probe"},
	)

	findingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dbprobe",
			Name:      "findings_total",
			Help:      "Findings emitted, partitioned by probe and severity.",
		},
		[]string{"probe", "severity"},
	)
)

// Register attaches dbprobe collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		probeRunsTotal,
		probeDurationSeconds,
		findingsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveProbe records one probe run.
func ObserveProbe(probe string, duration time.Duration, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	probeRunsTotal.WithLabelValues(probe, outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	probeDurationSeconds.WithLabelValues(probe).Observe(duration.Seconds())
}

// ObserveFindings adds count findings of the given severity.
func ObserveFindings(probe, severity string, count int) {
	if count <= 0 {
		return
	}
	findingsTotal.WithLabelValues(probe, severity).Add(float64(count))
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
