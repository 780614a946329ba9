// Package observability holds the Prometheus metrics of the service.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scrollsnap"

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	// ingestsTotal counts finished ingests.
	// Labels: kind (initial, incremental, unchanged)
	ingestsTotal *prometheus.CounterVec

	// ingestErrorsTotal counts rejected or failed ingests.
	// Labels: code (INVALID_INPUT, STORAGE_FAILURE, INTERNAL_ERROR)
	ingestErrorsTotal *prometheus.CounterVec

	ingestDuration prometheus.Histogram
	batchRows      prometheus.Histogram
	deltaRows      prometheus.Histogram

	// segmentJobsTotal counts segmentation jobs by outcome.
	// Labels: outcome (enqueued, dropped, delivered, failed)
	segmentJobsTotal *prometheus.CounterVec

	// screenshotsTotal counts screenshot handling.
	// Labels: status (saved, failed)
	screenshotsTotal *prometheus.CounterVec

	captureScrollsTotal prometheus.Counter

	// captureJobsTotal counts finished capture jobs.
	// Labels: status (completed, failed)
	captureJobsTotal *prometheus.CounterVec
}

// NewMetrics registers all collectors on reg and serves reg from Handler.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		ingestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "total",
			Help:      "Ingested scroll batches by outcome kind",
		}, []string{"kind"}),
		ingestErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "errors_total",
			Help:      "Failed ingests by error code",
		}, []string{"code"}),
		ingestDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "duration_seconds",
			Help:      "Time spent processing one scroll batch",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		batchRows: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "batch_rows",
			Help:      "Element records per ingested batch",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		deltaRows: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "delta_rows",
			Help:      "Modified records per incremental capture",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		segmentJobsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "segment",
			Name:      "jobs_total",
			Help:      "Segmentation jobs by outcome",
		}, []string{"outcome"}),
		screenshotsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "screenshots_total",
			Help:      "Screenshot payloads by status",
		}, []string{"status"}),
		captureScrollsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capture",
			Name:      "scrolls_total",
			Help:      "Viewports captured by the browser agent",
		}),
		captureJobsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capture",
			Name:      "jobs_total",
			Help:      "Finished capture jobs by status",
		}, []string{"status"}),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveIngest records a finished ingest.
func (m *Metrics) ObserveIngest(kind string, rows, delta int, took time.Duration) {
	if m == nil {
		return
	}
	m.ingestsTotal.WithLabelValues(kind).Inc()
	m.ingestDuration.Observe(took.Seconds())
	m.batchRows.Observe(float64(rows))
	if delta > 0 {
		m.deltaRows.Observe(float64(delta))
	}
}

// IngestFailed records a failed ingest.
func (m *Metrics) IngestFailed(code string) {
	if m == nil {
		return
	}
	m.ingestErrorsTotal.WithLabelValues(code).Inc()
}

// SegmentJob records a segmentation job outcome.
func (m *Metrics) SegmentJob(outcome string) {
	if m == nil {
		return
	}
	m.segmentJobsTotal.WithLabelValues(outcome).Inc()
}

// Screenshot records a screenshot outcome.
func (m *Metrics) Screenshot(status string) {
	if m == nil {
		return
	}
	m.screenshotsTotal.WithLabelValues(status).Inc()
}

// CaptureScroll records one captured viewport.
func (m *Metrics) CaptureScroll() {
	if m == nil {
		return
	}
	m.captureScrollsTotal.Inc()
}

// CaptureJob records a finished capture job.
func (m *Metrics) CaptureJob(status string) {
	if m == nil {
		return
	}
	m.captureJobsTotal.WithLabelValues(status).Inc()
}
