// Package monitoring exposes Prometheus metrics for the API and the
// pipeline workers.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Pipeline job metrics
	JobsProcessed *prometheus.CounterVec
	JobDuration   *prometheus.HistogramVec
	JobsInFlight  prometheus.Gauge

	// Upload metrics
	UploadsTotal *prometheus.CounterVec
	UploadBytes  prometheus.Counter

	// Eligibility metrics
	EligibilityRuns   prometheus.Counter
	LendersEvaluated  prometheus.Counter
	LendersPassedPerc prometheus.Histogram

	// Copilot metrics
	CopilotQueries *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests by route and status code",
			},
			[]string{"route", "method", "status"},
		),

		HTTPDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),

		JobsProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_jobs_total",
				Help: "Pipeline jobs processed by kind and outcome",
			},
			[]string{"kind", "outcome"}, // outcome: succeeded, retried, failed
		),

		JobDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_job_duration_seconds",
				Help:    "Pipeline job execution time by kind",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"kind"},
		),

		JobsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pipeline_jobs_in_flight",
				Help: "Jobs currently being executed by this process",
			},
		),

		UploadsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "document_uploads_total",
				Help: "Document uploads by outcome",
			},
			[]string{"outcome"}, // outcome: accepted, duplicate, rejected
		),

		UploadBytes: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "document_upload_bytes_total",
				Help: "Total bytes of accepted document uploads",
			},
		),

		EligibilityRuns: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "eligibility_runs_total",
				Help: "Total eligibility evaluations executed",
			},
		),

		LendersEvaluated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "eligibility_lenders_evaluated_total",
				Help: "Total lender products evaluated across all runs",
			},
		),

		LendersPassedPerc: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "eligibility_pass_ratio",
				Help:    "Fraction of evaluated lenders that passed per run",
				Buckets: []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
			},
		),

		CopilotQueries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "copilot_queries_total",
				Help: "Copilot queries by detected type and answer mode",
			},
			[]string{"type", "mode"}, // mode: llm, template, glossary
		),
	}
}

// RecordHTTPRequest records one completed HTTP request.
func (m *Metrics) RecordHTTPRequest(route, method, status string, seconds float64) {
	m.HTTPRequests.WithLabelValues(route, method, status).Inc()
	m.HTTPDuration.WithLabelValues(route, method).Observe(seconds)
}

// RecordJob records one job execution outcome.
func (m *Metrics) RecordJob(kind, outcome string, seconds float64) {
	m.JobsProcessed.WithLabelValues(kind, outcome).Inc()
	m.JobDuration.WithLabelValues(kind).Observe(seconds)
}

// RecordUpload records one upload attempt.
func (m *Metrics) RecordUpload(outcome string, bytes int64) {
	m.UploadsTotal.WithLabelValues(outcome).Inc()
	if outcome == "accepted" && bytes > 0 {
		m.UploadBytes.Add(float64(bytes))
	}
}

// RecordEligibilityRun records a completed evaluation run.
func (m *Metrics) RecordEligibilityRun(evaluated, passed int) {
	m.EligibilityRuns.Inc()
	m.LendersEvaluated.Add(float64(evaluated))
	if evaluated > 0 {
		m.LendersPassedPerc.Observe(float64(passed) / float64(evaluated))
	}
}

// RecordCopilotQuery records one answered copilot query.
func (m *Metrics) RecordCopilotQuery(queryType, mode string) {
	m.CopilotQueries.WithLabelValues(queryType, mode).Inc()
}
