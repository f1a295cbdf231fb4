// Package logging provides a minimal logging interface and adapters for loom.
//
// The Logger interface defines the standard logging methods (Debug, Info,
// Warn, Error) that the run coordinator and transports use for observability.
// This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//   - LoomLogger with room/thread/run contextual helpers
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	reg := run.NewRegistry(func(o *run.Options) { o.Logger = logger })
//
// The design intentionally keeps the interface minimal to avoid vendor
// lock-in while supporting structured logging where available.
package logging
