// Package logctx provides context-based logger injection and extraction.
//
// Loggers enriched with job- and snapshot-scoped fields are attached to
// the context at dispatch time and extracted anywhere down the call
// stack, so the evaluation engine and collaborator clients log with the
// right job_id/snapshot_id without threading a logger argument through
// every signature.
package logctx

import (
	"context"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// loggerKey is the private key type for storing loggers in context.
// Using a private type prevents collisions with other packages.
type loggerKey struct{}

var (
	defaultLogger     zerolog.Logger
	defaultLoggerOnce sync.Once
)

func initDefaultLogger() {
	defaultLoggerOnce.Do(func() {
		defaultLogger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	})
}

// DefaultLogger returns the process-wide default logger used when no
// context logger is available.
func DefaultLogger() zerolog.Logger {
	initDefaultLogger()
	return defaultLogger
}

// SetDefaultLogger overrides the default logger. This should only be
// called during initialization (e.g., from main or init). It is not safe
// to call concurrently with FromContext.
func SetDefaultLogger(l zerolog.Logger) {
	initDefaultLogger()
	defaultLogger = l
}

// WithLogger returns a new context with the given logger attached.
// The logger can be retrieved using FromContext.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext extracts the logger from the context. If the context is
// nil or does not contain a logger, returns the default logger.
//
// This function never returns a zero-value logger or panics.
func FromContext(ctx context.Context) zerolog.Logger {
	if ctx == nil {
		return DefaultLogger()
	}
	if logger, ok := ctx.Value(loggerKey{}).(zerolog.Logger); ok {
		return logger
	}
	return DefaultLogger()
}

// WithStr returns a new context with a logger that has the specified
// string field added.
func WithStr(ctx context.Context, key, value string) context.Context {
	logger := FromContext(ctx).With().Str(key, value).Logger()
	return WithLogger(ctx, logger)
}

// WithJob returns a context whose logger carries the job_id field.
func WithJob(ctx context.Context, jobID string) context.Context {
	return WithStr(ctx, "job_id", jobID)
}

// WithSnapshot returns a context whose logger carries the snapshot_id field.
func WithSnapshot(ctx context.Context, snapshotID string) context.Context {
	return WithStr(ctx, "snapshot_id", snapshotID)
}
