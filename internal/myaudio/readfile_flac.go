package myaudio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tphakala/flac"
)

func readFLACInfo(file *os.File) (AudioInfo, error) {
	decoder, err := flac.NewDecoder(file)
	if err != nil {
		return AudioInfo{}, err
	}
	if decoder.SampleRate <= 0 {
		return AudioInfo{}, fmt.Errorf("invalid FLAC sample rate: %d", decoder.SampleRate)
	}

	return AudioInfo{
		SampleRate:   decoder.SampleRate,
		NumChannels:  decoder.NChannels,
		BitDepth:     decoder.BitsPerSample,
		TotalSamples: int64(decoder.TotalSamples),
		Duration:     float64(decoder.TotalSamples) / float64(decoder.SampleRate),
	}, nil
}

func readFLACSegment(ctx context.Context, file *os.File, offset, duration float64) (*Clip, error) {
	decoder, err := flac.NewDecoder(file)
	if err != nil {
		return nil, err
	}

	divisor, err := getAudioDivisor(decoder.BitsPerSample)
	if err != nil {
		return nil, err
	}
	channels := decoder.NChannels
	if channels <= 0 {
		return nil, fmt.Errorf("FLAC stream declares no channels")
	}

	bytesPerSample := decoder.BitsPerSample / 8
	frameBytes := bytesPerSample * channels
	scale := divisor * float64(channels)
	window := newSampleWindow(decoder.SampleRate, offset, duration)

	for !window.full() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		frame, err := decoder.Next()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, fmt.Errorf("error decoding FLAC frame: %w", err)
		}

		for i := 0; i+frameBytes <= len(frame); i += frameBytes {
			var sum int64
			for c := range channels {
				sum += int64(pcmSampleLE(frame[i+c*bytesPerSample:], decoder.BitsPerSample))
			}
			if window.add(float64(sum) / scale) {
				break
			}
		}
	}

	return window.clip(decoder.SampleRate)
}

// pcmSampleLE reads one signed little-endian sample of the given width.
func pcmSampleLE(b []byte, bitsPerSample int) int32 {
	switch bitsPerSample {
	case 16:
		return int32(int16(binary.LittleEndian.Uint16(b)))
	case 24:
		// sign-extend from bit 23
		return int32(uint32(b[0])|uint32(b[1])<<8|uint32(b[2])<<16) << 8 >> 8
	case 32:
		return int32(binary.LittleEndian.Uint32(b))
	default:
		return 0
	}
}
