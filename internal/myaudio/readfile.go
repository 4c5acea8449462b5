package myaudio

import (
	"context"
	"os"
	"os/exec"
	"time"

	"github.com/tphakala/birdnet-artifacts/internal/conf"
	"github.com/tphakala/birdnet-artifacts/internal/errors"
	"github.com/tphakala/birdnet-artifacts/internal/logger"
)

// Decoder reads recordings of any supported format.
type Decoder struct {
	ffmpegPath  string
	ffprobePath string
	log         logger.Logger
}

// NewDecoder returns a decoder using the audio tool paths from settings.
// Empty tool paths leave compressed formats undecodable.
func NewDecoder(settings *conf.Settings) *Decoder {
	d := &Decoder{log: GetLogger()}
	if settings != nil {
		d.ffmpegPath = settings.Audio.FfmpegPath
		d.ffprobePath = settings.Audio.FfprobePath
	}
	return d
}

// Info returns stream parameters and duration of a recording.
func (d *Decoder) Info(ctx context.Context, path string) (AudioInfo, error) {
	format := FormatOf(path)

	var (
		info AudioInfo
		err  error
	)
	switch format {
	case FormatWAV:
		info, err = withFile(path, readWAVInfo)
	case FormatFLAC:
		info, err = withFile(path, readFLACInfo)
	default:
		info, err = d.ffprobeInfo(ctx, path)
	}
	if err != nil {
		return AudioInfo{}, decodeError(err, path, "read_audio_info")
	}
	info.Format = format
	return info, nil
}

// Duration returns the length of a recording in seconds.
func (d *Decoder) Duration(ctx context.Context, path string) (float64, error) {
	info, err := d.Info(ctx, path)
	if err != nil {
		return 0, err
	}
	return info.Duration, nil
}

// ReadSegment decodes duration seconds starting at offset, downmixed to
// mono at the native sample rate. A negative duration reads to the end.
// Windows running past the end of the recording are truncated.
func (d *Decoder) ReadSegment(ctx context.Context, path string, offset, duration float64) (*Clip, error) {
	start := time.Now()
	format := FormatOf(path)

	var (
		clip *Clip
		err  error
	)
	switch format {
	case FormatWAV:
		clip, err = withFile(path, func(f *os.File) (*Clip, error) {
			return readWAVSegment(ctx, f, offset, duration)
		})
	case FormatFLAC:
		clip, err = withFile(path, func(f *os.File) (*Clip, error) {
			return readFLACSegment(ctx, f, offset, duration)
		})
	default:
		clip, err = d.readFFmpegSegment(ctx, path, offset, duration)
	}
	if err != nil {
		return nil, decodeError(err, path, "read_audio_segment")
	}

	d.log.Debug("decoded audio segment",
		logger.String("path", path),
		logger.String("format", string(format)),
		logger.Float64("offset", offset),
		logger.Float64("duration", clip.Duration()),
		logger.Int("sample_rate", clip.SampleRate),
		logger.Duration("elapsed", time.Since(start)))
	return clip, nil
}

// ReadAll decodes a whole recording as mono at its native rate.
func (d *Decoder) ReadAll(ctx context.Context, path string) (*Clip, error) {
	return d.ReadSegment(ctx, path, 0, -1)
}

func withFile[T any](path string, fn func(*os.File) (T, error)) (T, error) {
	file, err := os.Open(path) //nolint:gosec // G304: path comes from the source locator
	if err != nil {
		var zero T
		return zero, err
	}
	defer func() { _ = file.Close() }()
	return fn(file)
}

// decodeError keeps context cancellation recognizable and tags everything
// else with the file it came from.
func decodeError(err error, path, operation string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errors.New(err).
			Component("myaudio").
			Category(errors.CategoryCancellation).
			Context("operation", operation).
			Build()
	}
	category := errors.CategoryFileParsing
	var exitErr *exec.ExitError
	switch {
	case errors.Is(err, os.ErrNotExist):
		category = errors.CategoryNotFound
	case errors.As(err, &exitErr):
		category = errors.CategoryCommand
	}
	var size int64
	if info, statErr := os.Stat(path); statErr == nil {
		size = info.Size()
	}
	return errors.New(err).
		Component("myaudio").
		Category(category).
		Context("operation", operation).
		Context("file_path", path).
		FileContext(path, size).
		Build()
}
