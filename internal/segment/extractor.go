// Package segment cuts context-padded clips around detections and stores
// them as 16-bit PCM mono WAV under audio_segments/.
package segment

import (
	"context"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path"
	"strings"
	"time"

	"github.com/tphakala/birdnet-artifacts/internal/artifactfs"
	"github.com/tphakala/birdnet-artifacts/internal/conf"
	"github.com/tphakala/birdnet-artifacts/internal/errors"
	"github.com/tphakala/birdnet-artifacts/internal/logger"
	"github.com/tphakala/birdnet-artifacts/internal/myaudio"
	"github.com/tphakala/birdnet-artifacts/internal/resolver"
)

// DefaultContextSeconds is the padding added on each side of a detection.
const DefaultContextSeconds = 5.0

// AudioReader decodes a window of a recording as mono at its native rate.
type AudioReader interface {
	ReadSegment(ctx context.Context, path string, offset, duration float64) (*myaudio.Clip, error)
	Duration(ctx context.Context, path string) (float64, error)
}

// Request describes one clip to extract.
type Request struct {
	SourcePath  string
	Start       float64 // detection start, seconds into the recording
	End         float64 // detection end
	SessionDir  string  // sanitized session directory name
	DetectionID uint
	Species     string
	Confidence  float64
}

// Result describes a written clip.
type Result struct {
	RelativePath string  // forward-slash path under the artifact root
	AbsolutePath string  // OS path of the written file
	Start        float64 // clip start in the recording
	Duration     float64 // requested clip length
	SampleRate   int
	Samples      int // samples actually written
}

// Extractor writes detection clips into the artifact tree.
type Extractor struct {
	fs             *artifactfs.FS
	reader         AudioReader
	namer          *resolver.Namer
	contextSeconds float64
	log            logger.Logger

	now    func() time.Time
	remove func(rel string) error
}

// NewExtractor returns an extractor writing through afs. A nil log falls
// back to the global logger.
func NewExtractor(settings *conf.Settings, afs *artifactfs.FS, reader AudioReader, log logger.Logger) *Extractor {
	if log == nil {
		log = logger.Global().Module("segment")
	}
	contextSeconds := DefaultContextSeconds
	if settings != nil && settings.Segment.ContextSeconds > 0 {
		contextSeconds = settings.Segment.ContextSeconds
	}
	var naming conf.NamingSettings
	if settings != nil {
		naming = settings.Naming
	}
	return &Extractor{
		fs:             afs,
		reader:         reader,
		namer:          resolver.NewNamer(naming),
		contextSeconds: contextSeconds,
		log:            log,
		now:            time.Now,
		remove:         afs.Remove,
	}
}

// Window returns the clip start and length for a detection. The start is
// clamped at zero; the end is not clamped to the recording.
func Window(start, end, contextSeconds float64) (segStart, duration float64) {
	segStart = math.Max(0, start-contextSeconds)
	return segStart, (end + contextSeconds) - segStart
}

// Extract decodes the padded window of req.SourcePath and writes it to
// audio_segments/<session>/<stem>.wav, replacing any previous clip.
func (e *Extractor) Extract(ctx context.Context, req Request) (res Result, err error) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = extractionError(fmt.Errorf("panic during extraction: %v", r), req, "extract")
			res = Result{}
		}
	}()

	if info, statErr := os.Stat(req.SourcePath); statErr != nil || !info.Mode().IsRegular() {
		if statErr == nil {
			statErr = fs.ErrNotExist
		}
		return Result{}, sourceNotFound(statErr, req)
	}

	segStart, duration := Window(req.Start, req.End, e.contextSeconds)

	if ok, rangeErr := e.ValidateTimeRange(ctx, req.SourcePath, req.Start, req.End); rangeErr != nil {
		e.log.Debug("recording length unavailable, skipping range check",
			logger.String("source_path", req.SourcePath),
			logger.Error(rangeErr))
	} else if !ok {
		e.log.Warn("detection window lies beyond the recording",
			logger.Uint64("detection_id", uint64(req.DetectionID)),
			logger.String("source_path", req.SourcePath),
			logger.Float64("segment_start", segStart),
			logger.Float64("segment_duration", duration))
		return Result{}, extractionError(
			fmt.Errorf("window %.2f-%.2fs lies beyond the recording", segStart, segStart+duration),
			req, "validate_time_range")
	}

	clip, err := e.reader.ReadSegment(ctx, req.SourcePath, segStart, duration)
	if err != nil {
		if errors.IsNotFound(err) {
			return Result{}, sourceNotFound(err, req)
		}
		return Result{}, extractionError(err, req, "decode")
	}

	stem := e.namer.ArtifactStem(req.DetectionID, req.Species, req.Confidence)
	rel, err := e.prepareTarget(req.SessionDir, stem)
	if err != nil {
		return Result{}, extractionError(err, req, "prepare_output")
	}

	if err := e.fs.WriteAtomic(rel, func(f *os.File) error {
		return myaudio.EncodeWAV(f, clip)
	}); err != nil {
		return Result{}, extractionError(err, req, "write")
	}

	abs, err := e.fs.Abs(rel)
	if err != nil {
		return Result{}, extractionError(err, req, "resolve_output")
	}

	e.log.Debug("audio segment written",
		logger.Uint64("detection_id", uint64(req.DetectionID)),
		logger.String("path", rel),
		logger.Float64("segment_start", segStart),
		logger.Float64("segment_duration", duration),
		logger.Int("sample_rate", clip.SampleRate),
		logger.Duration("elapsed", time.Since(started)))

	return Result{
		RelativePath: rel,
		AbsolutePath: abs,
		Start:        segStart,
		Duration:     duration,
		SampleRate:   clip.SampleRate,
		Samples:      len(clip.Samples),
	}, nil
}

// prepareTarget deletes an existing clip at the canonical path. When the
// old file cannot be deleted, typically because another process holds it,
// a timestamped sibling name is used instead.
func (e *Extractor) prepareTarget(sessionDir, stem string) (string, error) {
	rel := resolver.ArtifactRelPath(conf.DirAudioSegments, sessionDir, stem+".wav")

	exists, err := e.fs.Exists(rel)
	if err != nil {
		return "", err
	}
	if !exists {
		return rel, nil
	}

	err = e.remove(rel)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return rel, nil
	}

	alt := resolver.ArtifactRelPath(conf.DirAudioSegments, sessionDir,
		fmt.Sprintf("%s_%d.wav", stem, e.now().Unix()))
	e.log.Warn("existing audio segment is locked, writing alternate file",
		logger.String("path", rel),
		logger.String("alternate", path.Base(alt)),
		logger.Error(err))
	return alt, nil
}

// ValidateTimeRange reports whether the padded window of a detection
// overlaps the recording at all.
func (e *Extractor) ValidateTimeRange(ctx context.Context, sourcePath string, start, end float64) (bool, error) {
	duration, err := e.reader.Duration(ctx, sourcePath)
	if err != nil {
		return false, err
	}
	actualStart := math.Max(0, start-e.contextSeconds)
	actualEnd := end + e.contextSeconds
	return actualStart < duration && actualEnd > 0, nil
}

func sourceNotFound(err error, req Request) error {
	return errors.New(err).
		Component("segment").
		Category(errors.CategorySourceNotFound).
		Context("operation", "locate_source").
		Context("detection_id", req.DetectionID).
		Context("source_path", req.SourcePath).
		Build()
}

func extractionError(err error, req Request, operation string) error {
	msg := err.Error()
	if !strings.Contains(msg, req.SourcePath) {
		err = fmt.Errorf("%s: %w", req.SourcePath, err)
	}
	return errors.New(err).
		Component("segment").
		Category(errors.CategoryExtraction).
		Context("operation", operation).
		Context("detection_id", req.DetectionID).
		Build()
}
