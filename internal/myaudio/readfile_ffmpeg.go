package myaudio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ffprobeInfo runs ffprobe for the first audio stream of path.
func (d *Decoder) ffprobeInfo(ctx context.Context, path string) (AudioInfo, error) {
	if d.ffprobePath == "" {
		return AudioInfo{}, ErrFFprobeNotAvailable
	}

	cmd := exec.CommandContext(ctx, d.ffprobePath, //nolint:gosec // G204: binary from validated settings, args are fixed
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=sample_rate,channels,bits_per_sample:format=duration",
		"-of", "default=noprint_wrappers=1",
		path)

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return AudioInfo{}, ctx.Err()
		}
		return AudioInfo{}, fmt.Errorf("ffprobe failed: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}

	return parseFFprobeOutput(out.String())
}

// parseFFprobeOutput reads ffprobe key=value lines.
func parseFFprobeOutput(output string) (AudioInfo, error) {
	var info AudioInfo
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "sample_rate":
			info.SampleRate, _ = strconv.Atoi(value)
		case "channels":
			info.NumChannels, _ = strconv.Atoi(value)
		case "bits_per_sample":
			info.BitDepth, _ = strconv.Atoi(value)
		case "duration":
			if v, err := strconv.ParseFloat(value, 64); err == nil {
				info.Duration = v
			}
		}
	}

	if info.SampleRate <= 0 {
		return AudioInfo{}, fmt.Errorf("ffprobe reported no audio stream")
	}
	info.TotalSamples = int64(info.Duration * float64(info.SampleRate))
	return info, nil
}

// readFFmpegSegment lets ffmpeg seek, downmix and emit s16le PCM on stdout.
func (d *Decoder) readFFmpegSegment(ctx context.Context, path string, offset, duration float64) (*Clip, error) {
	if d.ffmpegPath == "" {
		return nil, ErrFFmpegNotAvailable
	}

	info, err := d.ffprobeInfo(ctx, path)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, d.ffmpegPath, buildFFmpegArgs(path, offset, duration)...) //nolint:gosec // G204: binary from validated settings

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffmpeg decode failed: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}

	return clipFromS16LE(out.Bytes(), info.SampleRate)
}

func buildFFmpegArgs(path string, offset, duration float64) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	if offset > 0 {
		args = append(args, "-ss", strconv.FormatFloat(offset, 'f', 6, 64))
	}
	if duration >= 0 {
		args = append(args, "-t", strconv.FormatFloat(duration, 'f', 6, 64))
	}
	return append(args,
		"-i", path,
		"-vn",
		"-ac", "1",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"pipe:1")
}

func clipFromS16LE(pcm []byte, sampleRate int) (*Clip, error) {
	n := len(pcm) / 2
	if n == 0 {
		return nil, ErrEmptyClip
	}
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = float64(int16(binary.LittleEndian.Uint16(pcm[2*i:]))) / 32768.0
	}
	return &Clip{Samples: samples, SampleRate: sampleRate}, nil
}
