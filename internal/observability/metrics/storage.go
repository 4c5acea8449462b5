// Package metrics provides artifact storage metrics for observability
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// StorageMetrics contains Prometheus metrics for the artifact tree.
type StorageMetrics struct {
	registry *prometheus.Registry

	artifactBytes      *prometheus.GaugeVec
	artifactFiles      *prometheus.GaugeVec
	freeBytes          prometheus.Gauge
	filesDeletedTotal  *prometheus.CounterVec
	usageCheckDuration prometheus.Histogram
}

// NewStorageMetrics creates and registers new storage metrics
func NewStorageMetrics(registry *prometheus.Registry) (*StorageMetrics, error) {
	m := &StorageMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *StorageMetrics) initMetrics() {
	m.artifactBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "artifacts_storage_bytes",
			Help: "Bytes used by generated artifacts",
		},
		[]string{"kind"}, // audio_segments, spectrograms
	)

	m.artifactFiles = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "artifacts_storage_files",
			Help: "Number of generated artifact files",
		},
		[]string{"kind"},
	)

	m.freeBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "artifacts_storage_free_bytes",
		Help: "Free space on the artifact volume",
	})

	m.filesDeletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artifacts_cleanup_files_deleted_total",
			Help: "Total number of incomplete artifacts deleted by cleanup",
		},
		[]string{"kind"},
	)

	m.usageCheckDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "artifacts_storage_check_duration_seconds",
		Help:    "Time taken to measure artifact storage usage",
		Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12), // 1ms to ~4s
	})
}

// Describe implements prometheus.Collector
func (m *StorageMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.artifactBytes.Describe(ch)
	m.artifactFiles.Describe(ch)
	m.freeBytes.Describe(ch)
	m.filesDeletedTotal.Describe(ch)
	m.usageCheckDuration.Describe(ch)
}

// Collect implements prometheus.Collector
func (m *StorageMetrics) Collect(ch chan<- prometheus.Metric) {
	m.artifactBytes.Collect(ch)
	m.artifactFiles.Collect(ch)
	m.freeBytes.Collect(ch)
	m.filesDeletedTotal.Collect(ch)
	m.usageCheckDuration.Collect(ch)
}

// UpdateUsage publishes the size and file count of one artifact kind.
func (m *StorageMetrics) UpdateUsage(kind string, files int, megabytes float64) {
	m.artifactBytes.WithLabelValues(kind).Set(megabytes * BytesPerMB)
	m.artifactFiles.WithLabelValues(kind).Set(float64(files))
}

// SetFreeSpace publishes free space on the artifact volume.
func (m *StorageMetrics) SetFreeSpace(megabytes uint64) {
	m.freeBytes.Set(float64(megabytes) * BytesPerMB)
}

// RecordCleanup counts deleted incomplete artifacts of one kind.
func (m *StorageMetrics) RecordCleanup(kind string, deleted int) {
	m.filesDeletedTotal.WithLabelValues(kind).Add(float64(deleted))
}

// RecordUsageCheck records how long a usage scan took.
func (m *StorageMetrics) RecordUsageCheck(seconds float64) {
	m.usageCheckDuration.Observe(seconds)
}
