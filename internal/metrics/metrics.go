// Package metrics exposes Prometheus collectors for analysis runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opensource-finance/ringwatch/internal/domain"
)

// Collector records pipeline telemetry. It satisfies pipeline.Observer.
type Collector struct {
	registry *prometheus.Registry

	runsTotal       prometheus.Counter
	runFailures     prometheus.Counter
	ringsDetected   *prometheus.CounterVec
	accountsFlagged prometheus.Counter
	rowsRejected    *prometheus.CounterVec
	diagnostics     *prometheus.CounterVec
	runDuration     prometheus.Histogram
	stageDuration   *prometheus.HistogramVec
}

// New registers the collectors on a dedicated registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		runsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ringwatch_analysis_runs_total",
			Help: "Total number of completed analysis runs",
		}),
		runFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ringwatch_analysis_failures_total",
			Help: "Total number of analysis runs that returned an error",
		}),
		ringsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ringwatch_fraud_rings_detected_total",
			Help: "Total number of fraud rings detected",
		}, []string{"pattern"}),
		accountsFlagged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ringwatch_suspicious_accounts_total",
			Help: "Total number of suspicious accounts flagged",
		}),
		rowsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ringwatch_rows_rejected_total",
			Help: "Total number of ledger rows rejected during ingest",
		}, []string{"reason"}),
		diagnostics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ringwatch_diagnostics_total",
			Help: "Total number of run diagnostics by code",
		}, []string{"code"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ringwatch_analysis_duration_seconds",
			Help:    "Wall-clock duration of analysis runs",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ringwatch_stage_duration_seconds",
			Help:    "Duration of individual pipeline stages",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"stage"}),
	}
	reg.MustRegister(
		c.runsTotal, c.runFailures, c.ringsDetected, c.accountsFlagged,
		c.rowsRejected, c.diagnostics, c.runDuration, c.stageDuration,
		collectors.NewGoCollector(),
	)
	return c
}

// StageCompleted records a stage duration.
func (c *Collector) StageCompleted(stage string, d time.Duration) {
	c.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RunCompleted records the outcome of a successful run.
func (c *Collector) RunCompleted(report *domain.Report) {
	c.runsTotal.Inc()
	c.runDuration.Observe(report.Summary.ProcessingTimeSeconds)
	c.accountsFlagged.Add(float64(len(report.SuspiciousAccounts)))
	for _, ring := range report.FraudRings {
		c.ringsDetected.WithLabelValues(string(ring.PatternType)).Inc()
	}
	for reason, n := range report.Summary.RejectedByReason {
		c.rowsRejected.WithLabelValues(reason).Add(float64(n))
	}
	for _, d := range report.Diagnostics {
		c.diagnostics.WithLabelValues(d.Code).Inc()
	}
}

// RunFailed counts a failed run.
func (c *Collector) RunFailed(error) {
	c.runFailures.Inc()
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
