package myaudio

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavReadFrames is the number of frames pulled from the decoder at a time.
const wavReadFrames = 8192

func openWAV(file *os.File) (*wav.Decoder, error) {
	decoder := wav.NewDecoder(file)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV file format")
	}

	if decoder.BitDepth != 16 && decoder.BitDepth != 24 && decoder.BitDepth != 32 {
		return nil, fmt.Errorf("unsupported bit depth: %d", decoder.BitDepth)
	}
	if decoder.NumChans == 0 {
		return nil, fmt.Errorf("WAV file declares no channels")
	}
	return decoder, nil
}

func readWAVInfo(file *os.File) (AudioInfo, error) {
	decoder, err := openWAV(file)
	if err != nil {
		return AudioInfo{}, err
	}
	if err := decoder.FwdToPCM(); err != nil {
		return AudioInfo{}, fmt.Errorf("error locating WAV data chunk: %w", err)
	}

	bytesPerFrame := int64(decoder.BitDepth/8) * int64(decoder.NumChans)
	frames := decoder.PCMLen() / bytesPerFrame

	return AudioInfo{
		SampleRate:   int(decoder.SampleRate),
		NumChannels:  int(decoder.NumChans),
		BitDepth:     int(decoder.BitDepth),
		TotalSamples: frames,
		Duration:     float64(frames) / float64(decoder.SampleRate),
	}, nil
}

func readWAVSegment(ctx context.Context, file *os.File, offset, duration float64) (*Clip, error) {
	decoder, err := openWAV(file)
	if err != nil {
		return nil, err
	}

	divisor, err := getAudioDivisor(int(decoder.BitDepth))
	if err != nil {
		return nil, err
	}

	sampleRate := int(decoder.SampleRate)
	channels := int(decoder.NumChans)
	window := newSampleWindow(sampleRate, offset, duration)
	scale := divisor * float64(channels)

	buf := &audio.IntBuffer{
		Data: make([]int, wavReadFrames*channels),
		Format: &audio.Format{
			SampleRate:  sampleRate,
			NumChannels: channels,
		},
	}

	for !window.full() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := decoder.PCMBuffer(buf)
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("error reading WAV samples: %w", err)
		}
		if n == 0 {
			break
		}

		for i := 0; i+channels <= n; i += channels {
			sum := 0
			for c := range channels {
				sum += buf.Data[i+c]
			}
			if window.add(float64(sum) / scale) {
				break
			}
		}
	}

	return window.clip(sampleRate)
}
