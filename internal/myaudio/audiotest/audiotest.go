// Package audiotest writes audio fixtures for tests.
package audiotest

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/tphakala/birdnet-artifacts/internal/myaudio"
)

// WriteWAV encodes clip as 16-bit mono WAV at path, creating parent
// directories, and fails the test on any error.
func WriteWAV(tb testing.TB, path string, clip *myaudio.Clip) {
	tb.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		tb.Fatalf("create fixture dir: %v", err)
	}
	f, err := os.Create(path) //nolint:gosec // G304: test fixture path
	if err != nil {
		tb.Fatalf("create fixture: %v", err)
	}
	if err := myaudio.EncodeWAV(f, clip); err != nil {
		_ = f.Close()
		tb.Fatalf("encode fixture: %v", err)
	}
	if err := f.Close(); err != nil {
		tb.Fatalf("close fixture: %v", err)
	}
}

// Tone returns seconds of a sine at hz with the given amplitude.
func Tone(rate int, seconds, hz, amplitude float64) *myaudio.Clip {
	samples := make([]float64, int(seconds*float64(rate)))
	for i := range samples {
		samples[i] = amplitude * math.Sin(2*math.Pi*hz*float64(i)/float64(rate))
	}
	return &myaudio.Clip{Samples: samples, SampleRate: rate}
}
