package spectrogram

import "github.com/tphakala/birdnet-artifacts/internal/logger"

// GetLogger returns the spectrogram package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("spectrogram")
}
