// Package metrics exposes Prometheus collectors for the mining service.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	minerJobsTotal            *prometheus.CounterVec
	minerRecordsTotal         *prometheus.CounterVec
	minerStageTotal           *prometheus.CounterVec
	minerSummarizerFallbacks  *prometheus.CounterVec
	minerSourceErrorsTotal    *prometheus.CounterVec
	minerJobDurationSeconds   prometheus.Histogram
	minerActiveWorkers        prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		minerJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "miner_jobs_total",
				Help: "Total number of mining jobs, labeled by terminal status.",
			},
			[]string{"status"},
		)

		minerRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "miner_records_total",
				Help: "Total number of raw records mined, labeled by entity and kind.",
			},
			[]string{"entity", "kind"},
		)

		minerStageTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "miner_pipeline_stage_total",
				Help: "Pipeline stage milestones reached, labeled by stage.",
			},
			[]string{"stage"},
		)

		minerSummarizerFallbacks = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "miner_summarizer_fallbacks_total",
				Help: "Summarizer calls that degraded to the conservative fallback, labeled by operation.",
			},
			[]string{"operation"},
		)

		minerSourceErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "miner_source_errors_total",
				Help: "Source search/fetch failures, labeled by community.",
			},
			[]string{"community"},
		)

		minerJobDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "miner_job_duration_seconds",
				Help:    "End-to-end mining job duration.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		)

		minerActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "miner_active_workers",
				Help: "Workers currently executing a mining job.",
			},
		)
	})
}

// ObserveJob records a terminal job outcome and its duration.
func ObserveJob(status string, dur time.Duration) {
	if minerJobsTotal == nil {
		return
	}
	minerJobsTotal.WithLabelValues(status).Inc()
	minerJobDurationSeconds.Observe(dur.Seconds())
}

// ObserveRecords counts mined records for an entity.
func ObserveRecords(entity, kind string, n int) {
	if minerRecordsTotal == nil || n <= 0 {
		return
	}
	minerRecordsTotal.WithLabelValues(entity, kind).Add(float64(n))
}

// ObserveStage counts a reached pipeline milestone.
func ObserveStage(stage string) {
	if minerStageTotal == nil {
		return
	}
	minerStageTotal.WithLabelValues(stage).Inc()
}

// ObserveSummarizerFallback counts a degraded Summarizer operation.
func ObserveSummarizerFallback(operation string) {
	if minerSummarizerFallbacks == nil {
		return
	}
	minerSummarizerFallbacks.WithLabelValues(operation).Inc()
}

// ObserveSourceError counts a failed community search/fetch.
func ObserveSourceError(community string) {
	if minerSourceErrorsTotal == nil {
		return
	}
	minerSourceErrorsTotal.WithLabelValues(community).Inc()
}

// WorkerStarted increments the active worker gauge.
func WorkerStarted() {
	if minerActiveWorkers != nil {
		minerActiveWorkers.Inc()
	}
}

// WorkerFinished decrements the active worker gauge.
func WorkerFinished() {
	if minerActiveWorkers != nil {
		minerActiveWorkers.Dec()
	}
}
