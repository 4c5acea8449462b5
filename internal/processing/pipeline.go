package processing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tphakala/birdnet-artifacts/internal/datastore"
	"github.com/tphakala/birdnet-artifacts/internal/errors"
	"github.com/tphakala/birdnet-artifacts/internal/logger"
	"github.com/tphakala/birdnet-artifacts/internal/observability/metrics"
	"github.com/tphakala/birdnet-artifacts/internal/resolver"
	"github.com/tphakala/birdnet-artifacts/internal/segment"
	"github.com/tphakala/birdnet-artifacts/internal/spectrogram"
)

// itemResult is the outcome of one pass through the pipeline.
type itemResult struct {
	id           uint
	success      bool
	message      string
	audio        bool // clip written
	spectrogram  bool // spectrogram written
	renderFailed bool
	err          error
}

func notFoundMessage(id uint) string {
	return fmt.Sprintf("detection ID %d not found", id)
}

func processingErrorMessage(id uint, err error) string {
	return fmt.Sprintf("processing error (ID:%d): %v", id, err)
}

func progressString(processed, total int, pct float64) string {
	return fmt.Sprintf("%d/%d (%.1f%%)", processed, total, pct)
}

// processItem runs validate, locate, extract, render and persist for one
// detection. Validation, source lookup, extraction and persistence failures
// end the item; a render failure only leaves the spectrogram path empty.
func (m *Manager) processItem(ctx context.Context, item *datastore.WorkItem) (res itemResult) {
	started := time.Now()
	res.id = item.ID
	log := m.log.WithContext(ctx).With(logger.Uint64("detection_id", uint64(item.ID)))

	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("panic: %v", rec)
			res = itemResult{id: item.ID, message: processingErrorMessage(item.ID, err), err: err}
			log.Error("item processing panicked", logger.Any("panic", rec))
		}
		m.observe(metrics.StageItem, started)
	}()

	if timeout := m.settings.Processing.ItemTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// validate and locate
	stageStart := time.Now()
	check := resolver.ValidateDetection(item, m.locator)
	m.observe(metrics.StageValidate, stageStart)
	if !check.Valid() {
		err := check.Err(item.ID)
		if check.SourceMissing() && len(check.Problems) == 1 {
			err = errors.Newf("source audio not found: %s", item.Filename).
				Component("processing").
				Category(errors.CategorySourceNotFound).
				Context("detection_id", item.ID).
				Context("filename", item.Filename).
				Build()
			res.message = fmt.Sprintf("source audio not found (ID:%d): %s", item.ID, item.Filename)
			m.stageFailed(metrics.StageLocate, err)
		} else {
			res.message = fmt.Sprintf("validation error (ID:%d): %s", item.ID, strings.Join(check.Problems, "; "))
			m.stageFailed(metrics.StageValidate, err)
		}
		res.err = err
		log.Warn(res.message)
		return res
	}

	sessionDir := m.namer.SessionDirName(item.SessionName)
	species := item.Species()
	confidence := *item.Confidence

	// extract
	stageStart = time.Now()
	clip, err := m.extractor.Extract(ctx, segment.Request{
		SourcePath:  check.SourcePath,
		Start:       check.Start,
		End:         check.End,
		SessionDir:  sessionDir,
		DetectionID: item.ID,
		Species:     species,
		Confidence:  confidence,
	})
	m.observe(metrics.StageExtract, stageStart)
	if err != nil {
		res.err = err
		if errors.IsCategory(err, errors.CategorySourceNotFound) {
			res.message = fmt.Sprintf("source audio not found (ID:%d): %s", item.ID, item.Filename)
		} else {
			res.message = fmt.Sprintf("audio extraction failed (ID:%d): %v", item.ID, err)
		}
		m.stageFailed(metrics.StageExtract, err)
		log.Warn("audio segment extraction failed", logger.Error(err))
		return res
	}
	res.audio = true
	audioPath := clip.RelativePath
	log.Debug("audio segment written", logger.String("path", audioPath))

	// render, non-terminal
	var spectrogramPath *string
	if m.renderer != nil {
		stageStart = time.Now()
		spec, err := m.renderer.Render(ctx, spectrogram.RenderRequest{
			AudioPath:      clip.AbsolutePath,
			SessionDir:     sessionDir,
			DetectionID:    item.ID,
			Species:        species,
			ScientificName: item.Scientific(),
			Confidence:     confidence,
		})
		m.observe(metrics.StageRender, stageStart)
		if err != nil {
			res.renderFailed = true
			m.stageFailed(metrics.StageRender, err)
			log.Warn("spectrogram rendering failed, keeping audio segment", logger.Error(err))
		} else {
			res.spectrogram = true
			spectrogramPath = &spec.RelativePath
			log.Debug("spectrogram written", logger.String("path", spec.RelativePath))
		}
	}

	// persist
	stageStart = time.Now()
	n, err := m.store.UpdateArtifactPaths(ctx, item.ID, &audioPath, spectrogramPath)
	m.observe(metrics.StagePersist, stageStart)
	if err == nil && n != 1 {
		err = errors.Newf("path update matched %d rows, want 1", n).
			Component("processing").
			Category(errors.CategoryPersistence).
			Priority(errors.PriorityHigh).
			Context("detection_id", item.ID).
			Context("rows_affected", n).
			Build()
	}
	if err != nil {
		res.err = err
		res.message = fmt.Sprintf("DB update failed (ID:%d): %v", item.ID, err)
		m.stageFailed(metrics.StagePersist, err)
		log.Warn("artifact path update failed", logger.Error(err))
		return res
	}

	res.success = true
	res.message = fmt.Sprintf("processed (ID:%d) - audio: true, spectrogram: %t", item.ID, res.spectrogram)
	log.Debug(res.message, logger.Duration("elapsed", time.Since(started)))
	return res
}

func (m *Manager) observe(stage string, since time.Time) {
	if m.pipelineMetrics != nil {
		m.pipelineMetrics.RecordDuration(stage, time.Since(since).Seconds())
	}
}

func (m *Manager) stageFailed(stage string, err error) {
	if m.pipelineMetrics != nil {
		m.pipelineMetrics.RecordError(stage, string(errors.CategoryOf(err)))
	}
}
