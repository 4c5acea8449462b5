// Package metrics provides artifact pipeline metrics for observability
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics contains Prometheus metrics for the processing manager.
type PipelineMetrics struct {
	registry *prometheus.Registry

	itemsTotal       *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
	stageErrorsTotal *prometheus.CounterVec
	operationsTotal  *prometheus.CounterVec

	batchesTotal     prometheus.Counter
	runProcessed     prometheus.Gauge
	runTotal         prometheus.Gauge
	pendingItems     prometheus.Gauge
	spectrogramsSkip prometheus.Counter
}

// NewPipelineMetrics creates and registers new pipeline metrics
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() {
	m.itemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artifacts_items_total",
			Help: "Total number of work items processed by outcome",
		},
		[]string{"outcome"}, // succeeded, failed
	)

	m.stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "artifacts_stage_duration_seconds",
			Help:    "Time taken by each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15), // 1ms to ~16s
		},
		[]string{"stage"},
	)

	m.stageErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artifacts_stage_errors_total",
			Help: "Total number of pipeline stage failures by error category",
		},
		[]string{"stage", "category"},
	)

	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artifacts_operations_total",
			Help: "Total number of pipeline operations by status",
		},
		[]string{"operation", "status"},
	)

	m.batchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "artifacts_batches_total",
		Help: "Total number of batches completed",
	})

	m.runProcessed = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "artifacts_run_processed_items",
		Help: "Items processed so far in the current bulk run",
	})

	m.runTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "artifacts_run_total_items",
		Help: "Items selected for the current bulk run",
	})

	m.pendingItems = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "artifacts_pending_items",
		Help: "Detections without an audio segment path at last check",
	})

	m.spectrogramsSkip = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "artifacts_spectrograms_skipped_total",
		Help: "Items persisted without a spectrogram",
	})
}

// Describe implements prometheus.Collector
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.itemsTotal.Describe(ch)
	m.stageDuration.Describe(ch)
	m.stageErrorsTotal.Describe(ch)
	m.operationsTotal.Describe(ch)
	m.batchesTotal.Describe(ch)
	m.runProcessed.Describe(ch)
	m.runTotal.Describe(ch)
	m.pendingItems.Describe(ch)
	m.spectrogramsSkip.Describe(ch)
}

// Collect implements prometheus.Collector
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	m.itemsTotal.Collect(ch)
	m.stageDuration.Collect(ch)
	m.stageErrorsTotal.Collect(ch)
	m.operationsTotal.Collect(ch)
	m.batchesTotal.Collect(ch)
	m.runProcessed.Collect(ch)
	m.runTotal.Collect(ch)
	m.pendingItems.Collect(ch)
	m.spectrogramsSkip.Collect(ch)
}

// RecordItem counts one finished work item.
func (m *PipelineMetrics) RecordItem(outcome string) {
	m.itemsTotal.WithLabelValues(outcome).Inc()
}

// RecordSpectrogramSkipped counts an item persisted with audio only.
func (m *PipelineMetrics) RecordSpectrogramSkipped() {
	m.spectrogramsSkip.Inc()
}

// RecordBatch counts a finished batch and publishes run progress.
func (m *PipelineMetrics) RecordBatch(processed, total int) {
	m.batchesTotal.Inc()
	m.runProcessed.Set(float64(processed))
	m.runTotal.Set(float64(total))
}

// StartRun resets the run progress gauges for a run of total items.
func (m *PipelineMetrics) StartRun(total int) {
	m.runProcessed.Set(0)
	m.runTotal.Set(float64(total))
}

// SetPending publishes the store-wide pending count.
func (m *PipelineMetrics) SetPending(n int64) {
	m.pendingItems.Set(float64(n))
}

// RecordOperation implements Recorder.
func (m *PipelineMetrics) RecordOperation(operation, status string) {
	m.operationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder; operation is the pipeline stage.
func (m *PipelineMetrics) RecordDuration(operation string, seconds float64) {
	m.stageDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder; errorType is the error category.
func (m *PipelineMetrics) RecordError(operation, errorType string) {
	m.stageErrorsTotal.WithLabelValues(operation, errorType).Inc()
}
