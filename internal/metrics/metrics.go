package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "images"

// Ingest results.
const (
	ResultSuccess       = "success"
	ResultValidation    = "validation_error"
	ResultBlobError     = "blob_error"
	ResultMetadataError = "metadata_error"
)

// Dispatch and worker results.
const (
	ResultSent      = "sent"
	ResultFailed    = "failed"
	ResultCompleted = "completed"
	ResultMissing   = "missing"
)

type Metrics struct {
	Ingest         *prometheus.CounterVec
	OrphanedBlobs  prometheus.Counter
	Dispatch       *prometheus.CounterVec
	WorkerResults  *prometheus.CounterVec
	PendingStale   prometheus.Gauge
	IngestDuration prometheus.Histogram
}

// New registers every collector on reg. Tests pass a fresh registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Ingest: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_total",
			Help:      "Ingestion attempts by result.",
		}, []string{"result"}),
		OrphanedBlobs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphaned_blobs_total",
			Help:      "Blobs written without a metadata record pointing at them.",
		}),
		Dispatch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Processing dispatches by result.",
		}, []string{"result"}),
		WorkerResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_processed_total",
			Help:      "Processing worker outcomes.",
		}, []string{"result"}),
		PendingStale: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_stale",
			Help:      "Records still unprocessed past the pending threshold.",
		}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Time spent in the synchronous part of ingestion.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(m.Ingest, m.OrphanedBlobs, m.Dispatch, m.WorkerResults, m.PendingStale, m.IngestDuration)
	return m
}
