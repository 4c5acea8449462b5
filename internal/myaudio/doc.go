// Package myaudio reads recordings and writes extracted clips.
//
// WAV and FLAC sources are decoded natively. Other containers (mp3, m4a,
// ogg) are decoded by an ffmpeg subprocess, with the native sample rate
// taken from ffprobe. Every decode returns mono samples in [-1, 1] at the
// source's own rate; nothing is resampled.
//
// Clips are always written as 16-bit PCM mono WAV.
package myaudio
