// Package metrics exposes ingestion counters in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the salesync collectors on a private registry, so tests
// and repeated runs in one process never collide with the global one.
type Registry struct {
	reg *prometheus.Registry

	Decisions   *prometheus.CounterVec
	RowErrors   *prometheus.CounterVec
	Runs        *prometheus.CounterVec
	RunDuration prometheus.Histogram
	LastRun     prometheus.Gauge
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()

	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "salesync_decisions_total",
		Help: "Entity resolution decisions by entity kind and action.",
	}, []string{"entity", "action"})
	rowErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "salesync_row_errors_total",
		Help: "Records excluded from a run, by error kind.",
	}, []string{"kind"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "salesync_runs_total",
		Help: "Finished ingestion runs by mode and status.",
	}, []string{"dry_run", "status"})
	runDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "salesync_run_duration_seconds",
		Help:    "Wall time of ingestion runs.",
		Buckets: prometheus.DefBuckets,
	})
	lastRun := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "salesync_last_run_timestamp_seconds",
		Help: "Unix time the last run finished.",
	})

	r.MustRegister(decisions, rowErrors, runs, runDuration, lastRun)
	return &Registry{
		reg:         r,
		Decisions:   decisions,
		RowErrors:   rowErrors,
		Runs:        runs,
		RunDuration: runDuration,
		LastRun:     lastRun,
	}
}

// RecordDecision counts one resolution decision.
func (r *Registry) RecordDecision(entity, action string) {
	r.Decisions.WithLabelValues(entity, action).Inc()
}

// RecordRowError counts one excluded record.
func (r *Registry) RecordRowError(kind string) {
	r.RowErrors.WithLabelValues(kind).Inc()
}

// RecordRun counts a finished run and observes its duration.
func (r *Registry) RecordRun(dryRun bool, status string, d time.Duration) {
	r.Runs.WithLabelValues(strconv.FormatBool(dryRun), status).Inc()
	r.RunDuration.Observe(d.Seconds())
	r.LastRun.SetToCurrentTime()
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
