// Package prometheus registers the service's Prometheus metrics and
// exposes them to every component via constructor injection, the same
// promauto-against-one-registry idiom the teacher uses for its cache
// and S3 metrics.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter/histogram/gauge the core emits. A nil
// *Metrics is safe to call methods on: every method checks for nil and
// is a no-op, so callers that don't want metrics can pass nil instead
// of threading a bool through every constructor.
type Metrics struct {
	downloadRequests  *prometheus.CounterVec
	downloadBytes     *prometheus.HistogramVec
	cacheLookups      *prometheus.CounterVec
	uploadRequests    *prometheus.CounterVec
	uploadBytes       *prometheus.HistogramVec
	syncEvents        *prometheus.CounterVec
	syncQueueDepth    prometheus.Gauge
	syncDuration      *prometheus.HistogramVec
	admissionQueue    prometheus.Gauge
	admissionDecision *prometheus.CounterVec
	cacheRestoreRuns  *prometheus.CounterVec
	orphansCleaned    *prometheus.CounterVec
}

// New registers all metrics against reg. Pass prometheus.NewRegistry()
// in production and a fresh registry per test to avoid collisions.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		downloadRequests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "filestore_download_requests_total",
				Help: "Total download requests by HTTP status class.",
			},
			[]string{"status"},
		),
		downloadBytes: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "filestore_download_bytes",
				Help:    "Distribution of bytes served per download.",
				Buckets: []float64{4096, 65536, 1048576, 10485760, 104857600, 1073741824},
			},
			[]string{"tier"},
		),
		cacheLookups: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "filestore_cache_lookups_total",
				Help: "Cache tier lookups by outcome (hit, miss, syncing).",
			},
			[]string{"outcome"},
		),
		uploadRequests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "filestore_upload_requests_total",
				Help: "Total upload requests by kind (oneshot, multipart) and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		uploadBytes: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "filestore_upload_bytes",
				Help:    "Distribution of bytes accepted per upload.",
				Buckets: []float64{1048576, 10485760, 104857600, 1073741824, 10737418240},
			},
			[]string{"kind"},
		),
		syncEvents: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "filestore_sync_events_total",
				Help: "Sync worker events processed by type and terminal status.",
			},
			[]string{"event_type", "status"},
		),
		syncQueueDepth: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "filestore_sync_queue_depth",
				Help: "Number of sync events currently queued or processing.",
			},
		),
		syncDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "filestore_sync_duration_seconds",
				Help:    "Duration of a sync handler run, by event type.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"event_type"},
		),
		admissionQueue: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "filestore_admission_queue_length",
				Help: "Number of tickets currently WAITING in the virtual queue.",
			},
		),
		admissionDecision: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "filestore_admission_decisions_total",
				Help: "Admission control decisions by outcome (admitted, queued, rejected).",
			},
			[]string{"outcome"},
		),
		cacheRestoreRuns: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "filestore_cache_restore_runs_total",
				Help: "Cache-restore promotion attempts by outcome.",
			},
			[]string{"outcome"},
		),
		orphansCleaned: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "filestore_orphans_cleaned_total",
				Help: "Orphaned upload sessions removed by the cleanup sweep, by reason.",
			},
			[]string{"reason"},
		),
	}
}

func (m *Metrics) ObserveDownload(status, tier string, bytes int64) {
	if m == nil {
		return
	}
	m.downloadRequests.WithLabelValues(status).Inc()
	m.downloadBytes.WithLabelValues(tier).Observe(float64(bytes))
}

func (m *Metrics) RecordCacheLookup(outcome string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveUpload(kind, outcome string, bytes int64) {
	if m == nil {
		return
	}
	m.uploadRequests.WithLabelValues(kind, outcome).Inc()
	if bytes > 0 {
		m.uploadBytes.WithLabelValues(kind).Observe(float64(bytes))
	}
}

func (m *Metrics) RecordSyncEvent(eventType, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.syncEvents.WithLabelValues(eventType, status).Inc()
	m.syncDuration.WithLabelValues(eventType).Observe(durationSeconds)
}

func (m *Metrics) SetSyncQueueDepth(n int) {
	if m == nil {
		return
	}
	m.syncQueueDepth.Set(float64(n))
}

func (m *Metrics) SetAdmissionQueueLength(n int) {
	if m == nil {
		return
	}
	m.admissionQueue.Set(float64(n))
}

func (m *Metrics) RecordAdmissionDecision(outcome string) {
	if m == nil {
		return
	}
	m.admissionDecision.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordCacheRestoreRun(outcome string) {
	if m == nil {
		return
	}
	m.cacheRestoreRuns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordOrphanCleaned(reason string) {
	if m == nil {
		return
	}
	m.orphansCleaned.WithLabelValues(reason).Inc()
}
