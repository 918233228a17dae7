package scan

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scanRunsTotal            *prometheus.CounterVec
	scanRecordsTotal         *prometheus.CounterVec
	scanSourceFailuresTotal  *prometheus.CounterVec
	scanSourceDurationSecs   *prometheus.HistogramVec
	scanRateLimitDelaySecs   *prometheus.HistogramVec
	scanRunInProgress        prometheus.Gauge

	metricsOnce sync.Once
)

// InitMetrics registers the Prometheus collectors for the scan pipeline.
// It is safe to call multiple times.
func InitMetrics() {
	metricsOnce.Do(func() {
		scanRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitescan_runs_total",
				Help: "Total scan runs, labeled by terminal status.",
			},
			[]string{"status"},
		)

		scanRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitescan_records_total",
				Help: "Records processed, labeled by source and reconcile outcome.",
			},
			[]string{"source", "outcome"},
		)

		scanSourceFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitescan_source_failures_total",
				Help: "Whole-source fetch failures, labeled by source and kind.",
			},
			[]string{"source", "kind"},
		)

		scanSourceDurationSecs = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitescan_source_duration_seconds",
				Help:    "Histogram of per-source scan durations.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"source"},
		)

		scanRateLimitDelaySecs = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitescan_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		scanRunInProgress = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sitescan_run_in_progress",
				Help: "1 while a scan run is executing.",
			},
		)
	})
}

func observeRunStatus(status string) {
	if scanRunsTotal != nil {
		scanRunsTotal.WithLabelValues(status).Inc()
	}
}

func observeRecord(source, outcome string) {
	if scanRecordsTotal != nil {
		scanRecordsTotal.WithLabelValues(source, outcome).Inc()
	}
}

func observeSourceFailure(source, kind string) {
	if scanSourceFailuresTotal != nil {
		scanSourceFailuresTotal.WithLabelValues(source, kind).Inc()
	}
}

func observeSourceDuration(source string, d time.Duration) {
	if scanSourceDurationSecs != nil {
		scanSourceDurationSecs.WithLabelValues(source).Observe(d.Seconds())
	}
}

func observeRateLimitDelay(domain string, d time.Duration) {
	if scanRateLimitDelaySecs != nil {
		scanRateLimitDelaySecs.WithLabelValues(domain).Observe(d.Seconds())
	}
}

func setRunInProgress(running bool) {
	if scanRunInProgress == nil {
		return
	}
	if running {
		scanRunInProgress.Set(1)
	} else {
		scanRunInProgress.Set(0)
	}
}
