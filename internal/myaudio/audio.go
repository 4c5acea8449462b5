package myaudio

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
)

// Format identifies how a source file is decoded.
type Format string

const (
	FormatWAV    Format = "wav"
	FormatFLAC   Format = "flac"
	FormatFFmpeg Format = "ffmpeg" // anything ffmpeg can read: mp3, m4a, ogg
)

// FormatOf picks the decoder for path from its extension.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		return FormatWAV
	case ".flac":
		return FormatFLAC
	default:
		return FormatFFmpeg
	}
}

// AudioInfo describes a source recording.
type AudioInfo struct {
	Format       Format
	SampleRate   int
	NumChannels  int
	BitDepth     int   // 0 when the container does not report it
	TotalSamples int64 // frames per channel
	Duration     float64
}

// Clip is a decoded mono excerpt.
type Clip struct {
	Samples    []float64 // normalized to [-1, 1]
	SampleRate int
}

// Duration returns the clip length in seconds.
func (c *Clip) Duration() float64 {
	if c == nil || c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// getAudioDivisor returns the full-scale value for a PCM bit depth.
func getAudioDivisor(bitDepth int) (float64, error) {
	switch bitDepth {
	case 16:
		return 32768.0, nil
	case 24:
		return 8388608.0, nil
	case 32:
		return 2147483648.0, nil
	default:
		return 0, fmt.Errorf("unsupported audio bit depth: %d", bitDepth)
	}
}

// sampleWindow keeps the mono frames that fall inside an offset/duration
// window and reports when the window is full.
type sampleWindow struct {
	skip      int64
	remaining int64 // negative means read to end of stream
	out       []float64
}

// maxPrealloc caps up-front allocation for long windows.
const maxPrealloc = 48000 * 120

func newSampleWindow(sampleRate int, offset, duration float64) *sampleWindow {
	w := &sampleWindow{remaining: -1}
	if offset > 0 {
		w.skip = int64(math.Round(offset * float64(sampleRate)))
	}
	if duration >= 0 {
		w.remaining = int64(math.Round(duration * float64(sampleRate)))
		w.out = make([]float64, 0, min(w.remaining, maxPrealloc))
	}
	return w
}

// add appends one mono frame and returns true once the window is full.
func (w *sampleWindow) add(v float64) bool {
	if w.skip > 0 {
		w.skip--
		return false
	}
	if w.remaining == 0 {
		return true
	}
	w.out = append(w.out, v)
	if w.remaining > 0 {
		w.remaining--
	}
	return w.remaining == 0
}

// full reports whether no more frames are wanted.
func (w *sampleWindow) full() bool {
	return w.remaining == 0
}

// clip finalizes the window.
func (w *sampleWindow) clip(sampleRate int) (*Clip, error) {
	if len(w.out) == 0 {
		return nil, ErrEmptyClip
	}
	return &Clip{Samples: w.out, SampleRate: sampleRate}, nil
}
