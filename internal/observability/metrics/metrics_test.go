package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewPipelineMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.StartRun(250)
	m.RecordItem(OutcomeSucceeded)
	m.RecordItem(OutcomeSucceeded)
	m.RecordItem(OutcomeFailed)
	m.RecordSpectrogramSkipped()
	m.RecordError(StageRender, "spectrogram-render")
	m.RecordDuration(StageExtract, 0.2)
	m.RecordOperation(StagePersist, StatusSuccess)
	m.RecordBatch(100, 250)
	m.SetPending(150)

	assert.InDelta(t, 2, testutil.ToFloat64(m.itemsTotal.WithLabelValues(OutcomeSucceeded)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.itemsTotal.WithLabelValues(OutcomeFailed)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.spectrogramsSkip), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.stageErrorsTotal.WithLabelValues(StageRender, "spectrogram-render")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.operationsTotal.WithLabelValues(StagePersist, StatusSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.batchesTotal), 0)
	assert.InDelta(t, 100, testutil.ToFloat64(m.runProcessed), 0)
	assert.InDelta(t, 250, testutil.ToFloat64(m.runTotal), 0)
	assert.InDelta(t, 150, testutil.ToFloat64(m.pendingItems), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.stageDuration))
}

func TestPipelineMetricsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPipelineMetrics(reg)
	require.NoError(t, err)
	_, err = NewPipelineMetrics(reg)
	assert.Error(t, err)
}

func TestStorageMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewStorageMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.UpdateUsage(KindAudio, 12, 1.5)
	m.SetFreeSpace(2048)
	m.RecordCleanup(KindSpectrogram, 3)
	m.RecordCleanup(KindSpectrogram, 2)
	m.RecordUsageCheck(0.01)

	assert.InDelta(t, 1.5*BytesPerMB, testutil.ToFloat64(m.artifactBytes.WithLabelValues(KindAudio)), 0)
	assert.InDelta(t, 12, testutil.ToFloat64(m.artifactFiles.WithLabelValues(KindAudio)), 0)
	assert.InDelta(t, 2048*BytesPerMB, testutil.ToFloat64(m.freeBytes), 0)
	assert.InDelta(t, 5, testutil.ToFloat64(m.filesDeletedTotal.WithLabelValues(KindSpectrogram)), 0)
}

func TestDatastoreMetricsSplitsCacheOperations(t *testing.T) {
	t.Parallel()

	m, err := NewDatastoreMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordOperation(OpCacheGet, StatusHit)
	m.RecordOperation(OpCacheGet, StatusMiss)
	m.RecordOperation(OpCacheGet, StatusHit)
	m.RecordOperation(OpDbUpdate, StatusSuccess)
	m.RecordError(OpDbUpdate, "persistence")

	assert.InDelta(t, 2, testutil.ToFloat64(m.cacheOperationsTotal.WithLabelValues(OpCacheGet, StatusHit)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.cacheOperationsTotal.WithLabelValues(OpCacheGet, StatusMiss)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.dbOperationsTotal.WithLabelValues(OpDbUpdate, StatusSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.dbOperationErrorsTotal.WithLabelValues(OpDbUpdate, "persistence")), 0)
}

func TestHTTPMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewHTTPMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordHTTPRequest("GET", "/api/v1/sessions", 200, 0.005, 512)
	m.RecordHTTPRequest("GET", "/api/v1/sessions", 200, 0.007, 0)
	m.RecordHTTPRequest("GET", "/media/*", 404, 0.001, 20)

	assert.InDelta(t, 2, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/api/v1/sessions", "200")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/media/*", "404")), 0)
}
