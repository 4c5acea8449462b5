package observability

import "github.com/tphakala/birdnet-artifacts/internal/logger"

// Package-level cached logger instance.
var log = logger.Global().Module("telemetry")
