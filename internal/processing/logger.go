package processing

import "github.com/tphakala/birdnet-artifacts/internal/logger"

// GetLogger returns the processing module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("processing")
}
