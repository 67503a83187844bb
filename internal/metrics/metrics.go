package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for ingestion and normalization runs.
// All methods are safe on a nil receiver.
type Metrics struct {
	// Upstream calls by operation and outcome ("success", "failure")
	APICalls *prometheus.CounterVec

	// Upstream call latency including retries
	APILatency *prometheus.HistogramVec

	// Records seen by the sync, by outcome ("stored", "filtered", "error")
	Records *prometheus.CounterVec

	// Finished batch runs by batch name and terminal status
	BatchRuns *prometheus.CounterVec

	BatchDuration *prometheus.HistogramVec

	// Reference and normalized rows created, by kind
	EntitiesCreated *prometheus.CounterVec
}

// New registers all metrics on reg. Pass prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		APICalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "procsync_api_calls_total",
			Help: "Total upstream API calls by operation and outcome",
		}, []string{"operation", "outcome"}),

		APILatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "procsync_api_call_duration_seconds",
			Help:    "Duration of upstream API calls including retries",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"operation"}),

		Records: f.NewCounterVec(prometheus.CounterOpts{
			Name: "procsync_sync_records_total",
			Help: "Delivery request records processed by outcome",
		}, []string{"outcome"}),

		BatchRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "procsync_batch_runs_total",
			Help: "Finished batch runs by batch name and status",
		}, []string{"batch", "status"}),

		BatchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "procsync_batch_duration_seconds",
			Help:    "Wall time of batch runs",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600},
		}, []string{"batch"}),

		EntitiesCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "procsync_normalized_entities_created_total",
			Help: "Reference and delivery request rows created by normalization",
		}, []string{"kind"}),
	}
}

// ObserveAPICall records one upstream call.
func (m *Metrics) ObserveAPICall(operation string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.APICalls.WithLabelValues(operation, outcome).Inc()
	m.APILatency.WithLabelValues(operation).Observe(d.Seconds())
}

// AddRecords counts records with the given outcome.
func (m *Metrics) AddRecords(outcome string, n int) {
	if m != nil && n > 0 {
		m.Records.WithLabelValues(outcome).Add(float64(n))
	}
}

// ObserveBatch records a finished batch run.
func (m *Metrics) ObserveBatch(batch, status string, d time.Duration) {
	if m != nil {
		m.BatchRuns.WithLabelValues(batch, status).Inc()
		m.BatchDuration.WithLabelValues(batch).Observe(d.Seconds())
	}
}

// AddEntities counts normalized rows created of the given kind.
func (m *Metrics) AddEntities(kind string, n int) {
	if m != nil && n > 0 {
		m.EntitiesCreated.WithLabelValues(kind).Add(float64(n))
	}
}
