package processing

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdnet-artifacts/internal/artifactfs"
	"github.com/tphakala/birdnet-artifacts/internal/conf"
	"github.com/tphakala/birdnet-artifacts/internal/datastore"
	"github.com/tphakala/birdnet-artifacts/internal/errors"
	"github.com/tphakala/birdnet-artifacts/internal/logger"
	"github.com/tphakala/birdnet-artifacts/internal/myaudio/audiotest"
	"github.com/tphakala/birdnet-artifacts/internal/observability"
	"github.com/tphakala/birdnet-artifacts/internal/segment"
	"github.com/tphakala/birdnet-artifacts/internal/spectrogram"
)

const (
	testRate    = 8000
	testSeconds = 20
)

func strPtr(s string) *string { return &s }

type fixture struct {
	settings *conf.Settings
	store    datastore.Interface
	fs       *artifactfs.FS
	base     time.Time
	inserted int
}

// newFixture lays out a project with one 20 s recording named "rec" in the
// completed tier, an empty SQLite store and an artifact root.
func newFixture(t *testing.T, spectrograms bool) *fixture {
	t.Helper()

	root := t.TempDir()
	settings := &conf.Settings{}
	settings.Paths.ProjectRoot = root
	settings.Paths.Artifacts = filepath.Join(root, "database")
	settings.Paths.SourceAudio = filepath.Join(root, "audio")
	settings.Database.Type = "sqlite"
	settings.Database.SQLite.Path = filepath.Join(root, "database", "result.db")
	settings.Spectrogram = conf.SpectrogramSettings{
		Enabled: spectrograms, NMels: 32, NFFT: 512, HopLength: 256, Width: 200, Height: 160,
	}
	settings.Processing.Workers = 1

	audiotest.WriteWAV(t,
		filepath.Join(settings.Paths.SourceAudio, conf.DirCompleted, "rec.wav"),
		audiotest.Tone(testRate, testSeconds, 1200, 0.3))

	store, err := datastore.New(settings)
	require.NoError(t, err)
	require.NoError(t, store.Open())
	t.Cleanup(func() { assert.NoError(t, store.Close()) })

	afs, err := artifactfs.New(settings.Paths.Artifacts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = afs.Close() })

	return &fixture{
		settings: settings,
		store:    store,
		fs:       afs,
		base:     time.Date(2025, 5, 1, 6, 0, 0, 0, time.UTC),
	}
}

// add inserts a detection created one minute after the previous one.
func (f *fixture) add(t *testing.T, file string, start, end datastore.TimeValue) *datastore.Detection {
	t.Helper()
	f.inserted++
	d := &datastore.Detection{
		SessionName:      "Site A/2025-05-01",
		Filename:         file,
		StartTimeSeconds: start,
		EndTimeSeconds:   end,
		CommonName:       strPtr("Common Cuckoo"),
		Confidence:       0.873,
		CreatedAt:        f.base.Add(time.Duration(f.inserted) * time.Minute),
	}
	require.NoError(t, f.store.Insert(context.Background(), d))
	return d
}

func (f *fixture) addValid(t *testing.T) *datastore.Detection {
	t.Helper()
	return f.add(t, "rec", datastore.NumericTime(10), datastore.NumericTime(13))
}

func (f *fixture) manager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	m, err := NewManager(f.settings, f.store, f.fs, opts...)
	require.NoError(t, err)
	return m
}

func (f *fixture) row(t *testing.T, id uint) *datastore.Detection {
	t.Helper()
	d, err := f.store.GetDetection(context.Background(), id)
	require.NoError(t, err)
	return d
}

// recordingExtractor remembers the order detections reach extraction.
type recordingExtractor struct {
	inner Extractor
	mu    sync.Mutex
	ids   []uint
	hook  func(id uint)
}

func (r *recordingExtractor) Extract(ctx context.Context, req segment.Request) (segment.Result, error) {
	r.mu.Lock()
	r.ids = append(r.ids, req.DetectionID)
	r.mu.Unlock()
	if r.hook != nil {
		r.hook(req.DetectionID)
	}
	return r.inner.Extract(ctx, req)
}

type failingRenderer struct{}

func (failingRenderer) Render(context.Context, spectrogram.RenderRequest) (spectrogram.Result, error) {
	return spectrogram.Result{}, errors.Newf("raster exploded").
		Component("spectrogram").
		Category(errors.CategoryRender).
		Build()
}

// vanishingStore reports that every path update matched no row.
type vanishingStore struct {
	datastore.Interface
}

func (vanishingStore) UpdateArtifactPaths(context.Context, uint, *string, *string) (int64, error) {
	return 0, nil
}

func TestProcessAllPendingIsolatesFailures(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	var ids []uint
	for i := range 5 {
		if i == 2 {
			ids = append(ids, f.add(t, "ghost", datastore.NumericTime(10), datastore.NumericTime(13)).ID)
			continue
		}
		ids = append(ids, f.addValid(t).ID)
	}

	m := f.manager(t)
	stats, err := m.ProcessAllPending(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, 5, stats.TotalPending)
	assert.Equal(t, 5, stats.Processed)
	assert.Equal(t, 4, stats.Succeeded)
	assert.Equal(t, 4, stats.AudioSucceeded)
	assert.Equal(t, 4, stats.SpectrogramSucceeded)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 3, stats.Batches)
	assert.False(t, stats.Aborted)
	require.Len(t, stats.Errors, 1)
	assert.Equal(t, fmt.Sprintf("source audio not found (ID:%d): ghost", ids[2]), stats.Errors[0])

	for i, id := range ids {
		row := f.row(t, id)
		if i == 2 {
			assert.Nil(t, row.AudioSegmentPath)
			assert.Nil(t, row.SpectrogramPath)
			continue
		}
		want := fmt.Sprintf("audio_segments/Site_A_2025-05-01/detection_%03d_CommonCuckoo_0.87.wav", id)
		require.NotNil(t, row.AudioSegmentPath)
		assert.Equal(t, want, *row.AudioSegmentPath)
		require.NotNil(t, row.SpectrogramPath)
		assert.Equal(t, strings.NewReplacer("audio_segments", "spectrograms", ".wav", ".png").Replace(want), *row.SpectrogramPath)

		exists, err := f.fs.Exists(*row.AudioSegmentPath)
		require.NoError(t, err)
		assert.True(t, exists)
	}

	counts, err := f.store.ProgressCounts(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts.Pending)
}

func TestProcessAllPendingOldestFirst(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	first := f.addValid(t)
	second := f.addValid(t)
	f.base = f.base.Add(-time.Hour)
	earliest := f.addValid(t) // inserted last, created first

	m := f.manager(t)
	rec := &recordingExtractor{inner: m.extractor}
	m.extractor = rec

	_, err := m.ProcessAllPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []uint{earliest.ID, first.ID, second.ID}, rec.ids)
}

func TestProcessAllPendingNothingToDo(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	stats, err := f.manager(t).ProcessAllPending(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, stats.Processed)
	assert.Zero(t, stats.TotalPending)
	assert.Empty(t, stats.Errors)
}

func TestProcessAllPendingSkipsProcessedRows(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	f.addValid(t)
	m := f.manager(t)

	first, err := m.ProcessAllPending(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Succeeded)

	second, err := m.ProcessAllPending(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, second.Processed)
}

func TestRenderFailureKeepsAudio(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	d := f.addValid(t)

	m := f.manager(t, WithRenderer(failingRenderer{}))
	stats, err := m.ProcessAllPending(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, 1, stats.AudioSucceeded)
	assert.Zero(t, stats.SpectrogramSucceeded)
	assert.Equal(t, 1, stats.SpectrogramFailed)
	assert.Zero(t, stats.Failed)
	assert.Empty(t, stats.Errors)

	row := f.row(t, d.ID)
	assert.NotNil(t, row.AudioSegmentPath)
	assert.Nil(t, row.SpectrogramPath)
}

func TestSpectrogramsDisabled(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	d := f.addValid(t)

	m := f.manager(t)
	assert.False(t, m.SpectrogramsEnabled())

	ok, msg := m.ProcessOne(context.Background(), d.ID)
	assert.True(t, ok, msg)
	assert.Equal(t, fmt.Sprintf("processed (ID:%d) - audio: true, spectrogram: false", d.ID), msg)

	row := f.row(t, d.ID)
	assert.NotNil(t, row.AudioSegmentPath)
	assert.Nil(t, row.SpectrogramPath)
}

func TestValidationListsEveryProblem(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	d := f.add(t, "rec", datastore.NumericTime(-1), datastore.NumericTime(-2))

	ok, msg := f.manager(t).ProcessOne(context.Background(), d.ID)
	assert.False(t, ok)
	assert.Equal(t, fmt.Sprintf("validation error (ID:%d): start time is negative; end time is not after start time", d.ID), msg)
	assert.Nil(t, f.row(t, d.ID).AudioSegmentPath)
}

func TestTextTimesAreAccepted(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	d := f.add(t, "rec", datastore.TextTime("0m10s"), datastore.TextTime("0:13"))

	ok, msg := f.manager(t).ProcessOne(context.Background(), d.ID)
	assert.True(t, ok, msg)
}

func TestExtractionFailureIsTerminal(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	d := f.add(t, "rec", datastore.NumericTime(100), datastore.NumericTime(103))

	m := f.manager(t)
	ok, msg := m.ProcessOne(context.Background(), d.ID)
	assert.False(t, ok)
	assert.True(t, strings.HasPrefix(msg, fmt.Sprintf("audio extraction failed (ID:%d): ", d.ID)), msg)

	row := f.row(t, d.ID)
	assert.Nil(t, row.AudioSegmentPath)
	assert.Nil(t, row.SpectrogramPath)

	stats := m.snapshot()
	assert.Equal(t, 1, stats.Failed)
	assert.Zero(t, stats.AudioSucceeded)
	assert.Zero(t, stats.SpectrogramFailed, "rendering is not attempted without a clip")
}

func TestVanishedRowIsAFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	d := f.addValid(t)

	m, err := NewManager(f.settings, vanishingStore{f.store}, f.fs)
	require.NoError(t, err)

	ok, msg := m.ProcessOne(context.Background(), d.ID)
	assert.False(t, ok)
	assert.True(t, strings.HasPrefix(msg, fmt.Sprintf("DB update failed (ID:%d)", d.ID)), msg)

	stats := m.snapshot()
	assert.Equal(t, 1, stats.AudioSucceeded)
	assert.Zero(t, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed)
}

func TestProcessOneNotFound(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	ok, msg := f.manager(t).ProcessOne(context.Background(), 999)
	assert.False(t, ok)
	assert.Equal(t, "detection ID 999 not found", msg)
}

func TestProcessOneRerunsProcessedDetection(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	d := f.addValid(t)
	m := f.manager(t)

	ok, msg := m.ProcessOne(context.Background(), d.ID)
	require.True(t, ok, msg)
	first := *f.row(t, d.ID).AudioSegmentPath

	ok, msg = m.ProcessOne(context.Background(), d.ID)
	require.True(t, ok, msg)
	assert.Equal(t, first, *f.row(t, d.ID).AudioSegmentPath)

	files, err := f.fs.SessionFileCounts("Site_A_2025-05-01")
	require.NoError(t, err)
	assert.Equal(t, 1, files.AudioSegments)
	assert.Equal(t, 1, files.Spectrograms)
	assert.Equal(t, 2, m.snapshot().Succeeded)
}

func TestPanicIsContained(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	bad := f.addValid(t)
	good := f.addValid(t)

	m := f.manager(t)
	m.extractor = &recordingExtractor{inner: m.extractor, hook: func(id uint) {
		if id == bad.ID {
			panic("decoder state corrupted")
		}
	}}

	stats, err := m.ProcessAllPending(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Succeeded)
	require.Len(t, stats.Errors, 1)
	assert.Contains(t, stats.Errors[0], fmt.Sprintf("processing error (ID:%d): panic: decoder state corrupted", bad.ID))
	assert.NotNil(t, f.row(t, good.ID).AudioSegmentPath)
}

func TestCancelledBeforeStart(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	f.addValid(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := f.manager(t).ProcessAllPending(ctx, 0)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryCancellation))
	assert.True(t, stats.Aborted)
	assert.Zero(t, stats.Processed)
}

func TestCancelledBetweenBatches(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	for range 3 {
		f.addValid(t)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := f.manager(t)
	var once sync.Once
	m.extractor = &recordingExtractor{inner: m.extractor, hook: func(uint) {
		once.Do(cancel)
	}}

	stats, err := m.ProcessAllPending(ctx, 1)
	require.Error(t, err)
	assert.True(t, stats.Aborted)
	assert.LessOrEqual(t, stats.Processed, 1)
	assert.Zero(t, stats.Failed)
	assert.Equal(t, 1, stats.Batches)
	assert.Equal(t, 3, stats.TotalPending)
}

func TestCancelledDuringFinalBatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	for range 3 {
		f.addValid(t)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := f.manager(t)
	var once sync.Once
	rec := &recordingExtractor{inner: m.extractor, hook: func(uint) {
		once.Do(cancel)
	}}
	m.extractor = rec

	stats, err := m.ProcessAllPending(ctx, 10)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryCancellation))
	assert.True(t, stats.Aborted)
	assert.Equal(t, 1, stats.Batches)
	assert.Less(t, stats.Processed, 3)
	assert.Zero(t, stats.Failed)
	assert.Empty(t, stats.Errors)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Len(t, rec.ids, 1, "no item starts after cancellation")
}

func TestParallelWorkers(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	for range 6 {
		f.addValid(t)
	}
	f.settings.Processing.Workers = 3

	stats, err := f.manager(t).ProcessAllPending(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, 6, stats.Succeeded)
	assert.Equal(t, 6, stats.SpectrogramSucceeded)
	assert.Equal(t, 2, stats.Batches)
}

func TestItemTimeout(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	d := f.addValid(t)
	f.settings.Processing.ItemTimeout = time.Nanosecond

	m := f.manager(t)
	m.extractor = &recordingExtractor{inner: m.extractor, hook: func(uint) {
		time.Sleep(5 * time.Millisecond)
	}}

	ok, msg := m.ProcessOne(context.Background(), d.ID)
	assert.False(t, ok)
	assert.Contains(t, msg, fmt.Sprintf("(ID:%d)", d.ID))
}

func TestStatisticsAndReset(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	for range 4 {
		f.addValid(t)
	}
	f.add(t, "ghost", datastore.NumericTime(1), datastore.NumericTime(2))

	metrics, err := observability.NewMetrics()
	require.NoError(t, err)
	m := f.manager(t, WithMetrics(metrics))

	_, err = m.ProcessAllPending(context.Background(), 0)
	require.NoError(t, err)

	stats, err := m.GetStatistics(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 5, stats.Total)
	assert.EqualValues(t, 4, stats.ProcessedAudio)
	assert.EqualValues(t, 4, stats.ProcessedSpectrogram)
	assert.EqualValues(t, 1, stats.Pending)
	assert.InDelta(t, 80.0, stats.AudioProgressPercent, 1e-9)
	assert.InDelta(t, 80.0, stats.SpectrogramProgressPercent, 1e-9)
	assert.Equal(t, 4, stats.Storage.AudioSegments)
	assert.Equal(t, 4, stats.Storage.Spectrograms)
	assert.Equal(t, 5, stats.Run.Processed)
	assert.Len(t, stats.Run.Errors, 1)

	expected := `
# HELP artifacts_items_total Total number of work items processed by outcome
# TYPE artifacts_items_total counter
artifacts_items_total{outcome="failed"} 1
artifacts_items_total{outcome="succeeded"} 4
# HELP artifacts_pending_items Detections without an audio segment path at last check
# TYPE artifacts_pending_items gauge
artifacts_pending_items 1
`
	assert.NoError(t, testutil.GatherAndCompare(metrics.Registry(), strings.NewReader(expected),
		"artifacts_items_total", "artifacts_pending_items"))

	m.ResetStatistics()
	stats, err = m.GetStatistics(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Run.Processed)
	assert.NotNil(t, stats.Run.Errors)
	assert.Empty(t, stats.Run.Errors)
	assert.EqualValues(t, 5, stats.Total)
}

func TestNewManagerFailsFastOnBrokenRenderer(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	f.settings.Spectrogram.NFFT = 1000

	_, err := NewManager(f.settings, f.store, f.fs)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryBackendUnavailable))
}

func TestProgressString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "150/400 (37.5%)", progressString(150, 400, 37.5))
}

type noSources struct{}

func (noSources) FindSourceAudio(string) (string, bool) { return "", false }

type brokenExtractor struct{}

func (brokenExtractor) Extract(context.Context, segment.Request) (segment.Result, error) {
	return segment.Result{}, fmt.Errorf("disk on fire")
}

func TestOptionsReplaceStages(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	d := f.addValid(t)

	var buf bytes.Buffer
	log := logger.NewSlogLogger(&buf, logger.LogLevelDebug, time.UTC)

	m := f.manager(t, WithLocator(noSources{}), WithLogger(log))
	ok, msg := m.ProcessOne(context.Background(), d.ID)
	assert.False(t, ok)
	assert.Contains(t, msg, "source audio not found")
	assert.Contains(t, buf.String(), "source audio not found")

	m = f.manager(t, WithExtractor(brokenExtractor{}))
	ok, msg = m.ProcessOne(context.Background(), d.ID)
	assert.False(t, ok)
	assert.Contains(t, msg, "audio extraction failed")
	assert.Contains(t, msg, "disk on fire")
	assert.Nil(t, f.row(t, d.ID).AudioSegmentPath)
}
