// Package logger provides a structured, module-aware logging system built on Go's standard log/slog.
//
// Every component receives a Logger scoped to its module and attaches typed
// fields instead of formatting values into the message:
//
//	centralLogger, err := logger.NewCentralLogger(cfg)
//	if err != nil {
//	    return err
//	}
//	defer centralLogger.Close()
//
//	log := centralLogger.Module("processing")
//	log.Info("batch completed",
//	    logger.Int("processed", 200),
//	    logger.Int("total", 1250),
//	    logger.Float64("percent", 16.0))
//
// Console output is human-readable text without timestamps. File output is
// JSON with RFC3339 timestamps and is rotated by size through lumberjack.
//
// Sub-modules inherit their parent's handler:
//
//	segLog := log.Module("segment") // module="processing.segment"
//
// A run or request identifier stored with WithTraceID is attached to every
// record emitted through WithContext:
//
//	ctx = logger.WithTraceID(ctx, runID)
//	log.WithContext(ctx).Info("run started")
//
// Tests can write to a buffer or discard output entirely:
//
//	buf := &bytes.Buffer{}
//	testLogger := logger.NewSlogLogger(buf, logger.LogLevelDebug, time.UTC)
//	quiet := logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
package logger

import (
	"context"
	"time"
	"unique"
)

// LogLevel represents log severity levels
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Field represents a structured log field.
// Keys are interned using unique.Make() so that the same key used across a
// long batch run shares a single allocation.
type Field struct {
	Key   string
	Value any
}

// internKey returns an interned version of the key string.
// This ensures repeated keys share the same underlying memory.
func internKey(key string) string {
	return unique.Make(key).Value()
}

// Pre-interned common keys for zero-allocation access
var (
	errorKey = internKey("error")
)

// Logger is the centralized logging interface for dependency injection
type Logger interface {
	// Module returns a logger scoped to a specific module
	Module(name string) Logger

	// Leveled logging methods
	Trace(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// Context-aware logging
	With(fields ...Field) Logger
	WithContext(ctx context.Context) Logger
}

// Field Constructors
//
// The following functions create type-safe field values for structured logging.
// Use these instead of string concatenation or formatting to ensure logs are
// machine-parseable and queryable.
//
// Example usage:
//
//	log.Info("segment written",
//	    logger.Int("detection_id", 7),
//	    logger.String("path", relPath),
//	    logger.Bool("suffixed", false))

// String creates a string field for structured logging.
//
// Use this for text values like IDs, names, statuses, etc.
// The key is interned for memory efficiency across repeated log calls.
//
// Example:
//
//	log.Info("source located",
//	    logger.String("stem", "20240501_063000"),
//	    logger.String("path", sourcePath))
func String(key, value string) Field {
	return Field{Key: internKey(key), Value: value}
}

// Int creates an integer field for structured logging.
//
// Use this for counts, sizes, port numbers, status codes, etc.
// The key is interned for memory efficiency across repeated log calls.
//
// Example:
//
//	log.Info("batch completed",
//	    logger.Int("batch_size", 100),
//	    logger.Int("processed", 95),
//	    logger.Int("failed", 5))
func Int(key string, value int) Field {
	return Field{Key: internKey(key), Value: value}
}

// Int64 creates a 64-bit integer field for structured logging.
//
// Use this for large numbers that don't fit in 32-bit int.
// The key is interned for memory efficiency across repeated log calls.
//
// Example:
//
//	log.Info("artifact written",
//	    logger.Int64("bytes", size))
func Int64(key string, value int64) Field {
	return Field{Key: internKey(key), Value: value}
}

// Uint64 creates an unsigned 64-bit integer field for structured logging.
//
// Use this for file sizes, byte counts, and other unsigned large numbers.
// The key is interned for memory efficiency across repeated log calls.
//
// Example:
//
//	log.Warn("low disk space",
//	    logger.Uint64("free_bytes", usage.Free))
func Uint64(key string, value uint64) Field {
	return Field{Key: internKey(key), Value: value}
}

// Float64 creates a 64-bit float field for structured logging.
//
// Use this for decimal numbers requiring high precision.
// The key is interned for memory efficiency across repeated log calls.
//
// Example:
//
//	log.Debug("segment window",
//	    logger.Float64("start", 95.0),
//	    logger.Float64("duration", 12.0))
func Float64(key string, value float64) Field {
	return Field{Key: internKey(key), Value: value}
}

// Bool creates a boolean field for structured logging.
//
// Use this for flags, states, success/failure indicators.
// The key is interned for memory efficiency across repeated log calls.
//
// Example:
//
//	log.Info("pipeline configured",
//	    logger.Bool("spectrograms", enabled))
func Bool(key string, value bool) Field {
	return Field{Key: internKey(key), Value: value}
}

// Error creates an error field for structured logging.
//
// The field key is always "error" (pre-interned for zero allocation).
// If err is nil, the value will be nil.
// Use this to log errors with additional context fields.
//
// Example:
//
//	if err := store.UpdateArtifactPaths(ctx, id, audio, spec); err != nil {
//	    log.Error("path update failed",
//	        logger.Error(err),
//	        logger.Int64("detection_id", id))
//	    return err
//	}
func Error(err error) Field {
	if err == nil {
		return Field{Key: errorKey, Value: nil}
	}
	return Field{Key: errorKey, Value: err.Error()}
}

// Duration creates a duration field for structured logging.
//
// Use this for elapsed time, timeouts, latencies, etc.
// The duration is converted to a string representation (e.g., "1.5s", "200ms").
// The key is interned for memory efficiency across repeated log calls.
//
// Example:
//
//	log.Info("run finished",
//	    logger.Duration("elapsed", time.Since(start)))
func Duration(key string, value time.Duration) Field {
	return Field{Key: internKey(key), Value: value.String()}
}

// Any creates a field with any value for structured logging.
//
// Use this for complex types that will be serialized to JSON.
// Avoid using this for simple types - prefer the type-specific constructors instead.
// The key is interned for memory efficiency across repeated log calls.
//
// Example:
//
//	log.Debug("validation failed",
//	    logger.Any("violations", violations))
//
// Warning: Ensure the value is JSON-serializable or it may cause logging errors.
func Any(key string, value any) Field {
	return Field{Key: internKey(key), Value: value}
}
