package myaudio

import (
	"fmt"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/tphakala/birdnet-artifacts/internal/conf"
)

// EncodeWAV writes clip to w as 16-bit PCM mono WAV. Samples outside
// [-1, 1] are clipped.
func EncodeWAV(w io.WriteSeeker, clip *Clip) error {
	if clip == nil || len(clip.Samples) == 0 {
		return ErrEmptyClip
	}
	if clip.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", clip.SampleRate)
	}

	enc := wav.NewEncoder(w, clip.SampleRate, conf.OutputSampleBitDepth, conf.OutputChannels, 1)

	buf := &audio.IntBuffer{
		Data:           floatsToPCM16(clip.Samples),
		Format:         &audio.Format{SampleRate: clip.SampleRate, NumChannels: conf.OutputChannels},
		SourceBitDepth: conf.OutputSampleBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write to WAV encoder: %w", err)
	}

	// Close finalizes the RIFF header sizes.
	return enc.Close()
}

func floatsToPCM16(samples []float64) []int {
	out := make([]int, len(samples))
	for i, s := range samples {
		if math.IsNaN(s) {
			continue
		}
		s = math.Max(-1, math.Min(1, s))
		out[i] = int(math.Round(s * 32767))
	}
	return out
}
