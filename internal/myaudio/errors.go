package myaudio

import (
	"github.com/tphakala/birdnet-artifacts/internal/errors"
)

// Error sentinel values for common myaudio errors
var (
	// ErrFFmpegNotAvailable is returned when a compressed source needs ffmpeg
	// and no usable binary was configured or found in PATH
	ErrFFmpegNotAvailable = errors.NewStd("ffmpeg is not available for decoding")

	// ErrFFprobeNotAvailable is returned when stream parameters of a
	// compressed source cannot be inspected
	ErrFFprobeNotAvailable = errors.NewStd("ffprobe is not available")

	// ErrEmptyClip is returned when a decode window contains no samples
	ErrEmptyClip = errors.NewStd("no audio samples in requested window")
)
