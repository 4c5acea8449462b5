// Package processing orchestrates artifact generation for pending
// detections: validation, source lookup, clip extraction, optional
// spectrogram rendering and the final path update.
//
// A manager assumes it is the only writer of the artifact tree and the
// path columns. Concurrent runs against one store are not coordinated.
package processing

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/birdnet-artifacts/internal/artifactfs"
	"github.com/tphakala/birdnet-artifacts/internal/conf"
	"github.com/tphakala/birdnet-artifacts/internal/datastore"
	"github.com/tphakala/birdnet-artifacts/internal/errors"
	"github.com/tphakala/birdnet-artifacts/internal/logger"
	"github.com/tphakala/birdnet-artifacts/internal/myaudio"
	"github.com/tphakala/birdnet-artifacts/internal/observability"
	"github.com/tphakala/birdnet-artifacts/internal/observability/metrics"
	"github.com/tphakala/birdnet-artifacts/internal/resolver"
	"github.com/tphakala/birdnet-artifacts/internal/segment"
	"github.com/tphakala/birdnet-artifacts/internal/spectrogram"
)

// DefaultBatchSize is used when neither the caller nor the settings give one.
const DefaultBatchSize = 100

// Extractor writes the padded clip of one detection.
type Extractor interface {
	Extract(ctx context.Context, req segment.Request) (segment.Result, error)
}

// Renderer writes the spectrogram of an extracted clip.
type Renderer interface {
	Render(ctx context.Context, req spectrogram.RenderRequest) (spectrogram.Result, error)
}

// Manager runs the artifact pipeline over the record store.
type Manager struct {
	settings  *conf.Settings
	store     datastore.Interface
	fs        *artifactfs.FS
	locator   resolver.SourceLocator
	namer     *resolver.Namer
	extractor Extractor
	renderer  Renderer // nil when spectrograms are disabled

	pipelineMetrics *metrics.PipelineMetrics
	storageMetrics  *metrics.StorageMetrics
	log             logger.Logger

	mu    sync.Mutex
	stats RunStatistics // accumulated since the last reset
}

// Option customizes a Manager.
type Option func(*Manager)

// WithMetrics records pipeline and storage metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(mgr *Manager) {
		if m == nil {
			return
		}
		mgr.pipelineMetrics = m.Pipeline
		mgr.storageMetrics = m.Storage
	}
}

// WithLocator replaces the source audio locator.
func WithLocator(l resolver.SourceLocator) Option {
	return func(mgr *Manager) { mgr.locator = l }
}

// WithExtractor replaces the clip extractor.
func WithExtractor(e Extractor) Option {
	return func(mgr *Manager) { mgr.extractor = e }
}

// WithRenderer replaces the spectrogram renderer. A nil renderer disables
// spectrograms regardless of settings.
func WithRenderer(r Renderer) Option {
	return func(mgr *Manager) { mgr.renderer = r }
}

// WithLogger replaces the module logger.
func WithLogger(l logger.Logger) Option {
	return func(mgr *Manager) { mgr.log = l }
}

// NewManager wires the pipeline stages from settings. When spectrograms are
// enabled and the rendering backend fails its self check, construction
// fails with a backend-unavailable error rather than every item failing
// later.
func NewManager(settings *conf.Settings, store datastore.Interface, afs *artifactfs.FS, opts ...Option) (*Manager, error) {
	if settings == nil || store == nil || afs == nil {
		return nil, errors.Newf("processing manager needs settings, a store and an artifact root").
			Component("processing").
			Category(errors.CategoryConfiguration).
			Build()
	}

	m := &Manager{
		settings: settings,
		store:    store,
		fs:       afs,
		namer:    resolver.NewNamer(settings.Naming),
		log:      GetLogger(),
		stats:    RunStatistics{Errors: []string{}},
	}

	decoder := myaudio.NewDecoder(settings)
	m.locator = resolver.NewLocator(settings)
	m.extractor = segment.NewExtractor(settings, afs, decoder, nil)
	if settings.Spectrogram.Enabled {
		r, err := spectrogram.NewRenderer(settings, afs, decoder, nil)
		if err != nil {
			return nil, err
		}
		m.renderer = r
	}

	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// SpectrogramsEnabled reports whether items get a spectrogram.
func (m *Manager) SpectrogramsEnabled() bool {
	return m.renderer != nil
}

func (m *Manager) batchSize(requested int) int {
	if requested > 0 {
		return requested
	}
	if m.settings.Processing.BatchSize > 0 {
		return m.settings.Processing.BatchSize
	}
	return DefaultBatchSize
}

func (m *Manager) workers() int {
	return max(1, m.settings.Processing.Workers)
}

// ProcessAllPending processes every detection without an audio segment path,
// oldest first, in batches of batchSize. Item failures are recorded in the
// returned statistics and never stop the run. Cancellation is honoured
// between items and batches; the run then reports Aborted together with a
// cancellation error. An error is also returned when the pending list cannot
// be loaded.
func (m *Manager) ProcessAllPending(ctx context.Context, batchSize int) (RunStatistics, error) {
	log := m.log.WithContext(ctx)
	run := RunStatistics{Errors: []string{}}
	batchSize = m.batchSize(batchSize)

	if ok, free := m.fs.CheckFreeSpace(m.settings.Processing.MinFreeSpaceMB); !ok {
		log.Warn("low free space on artifact volume",
			logger.Uint64("free_mb", free),
			logger.Uint64("threshold_mb", m.settings.Processing.MinFreeSpaceMB))
	}

	log.Info("loading pending detections")
	items, err := m.store.PendingWork(ctx)
	if err != nil {
		msg := "failed to load pending detections: " + err.Error()
		run.Errors = append(run.Errors, msg)
		log.Error("failed to load pending detections", logger.Error(err))
		return run, err
	}

	total := len(items)
	run.TotalPending = total
	if total == 0 {
		log.Info("no pending detections")
		return run, nil
	}

	totalBatches := (total + batchSize - 1) / batchSize
	log.Info("processing pending detections",
		logger.Int("total", total),
		logger.Int("batch_size", batchSize),
		logger.Int("batches", totalBatches),
		logger.Int("workers", m.workers()))
	if m.pipelineMetrics != nil {
		m.pipelineMetrics.StartRun(total)
	}

	for start := 0; start < total; start += batchSize {
		if err := ctx.Err(); err != nil {
			return m.abort(ctx, run, err)
		}

		end := min(start+batchSize, total)
		batchNum := start/batchSize + 1
		log.Info("processing batch",
			logger.Int("batch", batchNum),
			logger.Int("batches", totalBatches),
			logger.Int("items", end-start))

		m.runBatch(ctx, items[start:end], &run)
		run.Batches++

		processed := run.Processed
		pct := float64(processed) / float64(total) * 100
		log.Info("progress",
			logger.String("progress", progressString(processed, total, pct)),
			logger.Int("processed", processed),
			logger.Int("total", total),
			logger.Float64("percent", pct))
		if m.pipelineMetrics != nil {
			m.pipelineMetrics.RecordBatch(processed, total)
		}

		if err := ctx.Err(); err != nil && run.Processed < total {
			return m.abort(ctx, run, err)
		}
	}

	log.Info("bulk processing complete",
		logger.Int("succeeded", run.Succeeded),
		logger.Int("failed", run.Failed),
		logger.Int("total", total),
		logger.Float64("success_rate", run.SuccessRate()))
	return run, nil
}

func (m *Manager) abort(ctx context.Context, run RunStatistics, cause error) (RunStatistics, error) {
	run.Aborted = true
	m.log.WithContext(ctx).Warn("bulk processing aborted",
		logger.Int("processed", run.Processed),
		logger.Int("total", run.TotalPending),
		logger.Error(cause))
	return run, errors.New(cause).
		Component("processing").
		Category(errors.CategoryCancellation).
		Context("operation", "process_all_pending").
		Context("processed", run.Processed).
		Build()
}

// runBatch processes one batch with at most workers items in flight. With a
// single worker items run strictly in order. Items not started before ctx is
// cancelled, or failed because of it, are left out of run.
func (m *Manager) runBatch(ctx context.Context, batch []datastore.WorkItem, run *RunStatistics) {
	var (
		g     errgroup.Group
		runMu sync.Mutex
	)
	g.SetLimit(m.workers())

	for i := range batch {
		if ctx.Err() != nil {
			break
		}
		item := &batch[i]
		g.Go(func() error {
			// g.Go may have waited for a slot past a cancellation
			if ctx.Err() != nil {
				return nil
			}
			r := m.processItem(ctx, item)
			if !r.success && ctx.Err() != nil {
				// interrupted, the item stays pending for the next run
				m.log.WithContext(ctx).Debug("item interrupted by cancellation",
					logger.Uint64("detection_id", uint64(item.ID)))
				return nil
			}
			runMu.Lock()
			run.add(r)
			runMu.Unlock()
			m.record(r)
			return nil
		})
	}
	_ = g.Wait()
}

// ProcessOne runs the pipeline for one detection regardless of whether it
// already has artifacts, and returns whether it succeeded with a message.
func (m *Manager) ProcessOne(ctx context.Context, id uint) (success bool, message string) {
	item, err := m.store.WorkItemByID(ctx, id)
	if err != nil {
		if errors.IsNotFound(err) {
			return false, notFoundMessage(id)
		}
		msg := processingErrorMessage(id, err)
		m.log.WithContext(ctx).Error("failed to load detection",
			logger.Uint64("detection_id", uint64(id)),
			logger.Error(err))
		return false, msg
	}

	r := m.processItem(ctx, item)
	m.record(r)
	return r.success, r.message
}

// record folds r into the accumulated statistics and metrics.
func (m *Manager) record(r itemResult) {
	m.mu.Lock()
	m.stats.add(r)
	m.mu.Unlock()

	if m.pipelineMetrics == nil {
		return
	}
	if r.success {
		m.pipelineMetrics.RecordItem(metrics.OutcomeSucceeded)
		if !r.spectrogram {
			m.pipelineMetrics.RecordSpectrogramSkipped()
		}
	} else {
		m.pipelineMetrics.RecordItem(metrics.OutcomeFailed)
	}
}

// GetStatistics returns store-wide progress and storage usage merged with
// the statistics accumulated since the last reset.
func (m *Manager) GetStatistics(ctx context.Context) (Statistics, error) {
	counts, err := m.store.ProgressCounts(ctx)
	if err != nil {
		return Statistics{Run: m.snapshot()}, err
	}

	stats := Statistics{
		ProgressCounts:             counts,
		AudioProgressPercent:       counts.AudioPercent(),
		SpectrogramProgressPercent: counts.SpectrogramPercent(),
		Run:                        m.snapshot(),
	}

	checkStart := time.Now()
	usage, err := m.fs.StorageUsage()
	if m.storageMetrics != nil {
		m.storageMetrics.RecordUsageCheck(time.Since(checkStart).Seconds())
	}
	if err != nil {
		m.log.WithContext(ctx).Warn("storage usage unavailable", logger.Error(err))
	} else {
		stats.Storage = usage
	}

	if m.pipelineMetrics != nil {
		m.pipelineMetrics.SetPending(counts.Pending)
	}
	if m.storageMetrics != nil && err == nil {
		m.storageMetrics.UpdateUsage(metrics.KindAudio, usage.AudioSegments, usage.AudioSegmentsMB)
		m.storageMetrics.UpdateUsage(metrics.KindSpectrogram, usage.Spectrograms, usage.SpectrogramsMB)
		if !usage.FreeSpaceUnknown {
			m.storageMetrics.SetFreeSpace(usage.FreeMB)
		}
	}
	return stats, nil
}

func (m *Manager) snapshot() RunStatistics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats.clone()
}

// ResetStatistics clears the accumulated statistics.
func (m *Manager) ResetStatistics() {
	m.mu.Lock()
	m.stats = RunStatistics{Errors: []string{}}
	m.mu.Unlock()
	m.log.Debug("processing statistics reset")
}
