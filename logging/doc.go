// Package logging provides a minimal logging interface and adapters for caredesk.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the desk, the agent runner and the API server use for observability. This
// package includes:
//
//   - Logger interface for dependency injection
//   - DeskLogger, a slog-backed structured logger with a reloadable level
//   - SlogAdapter wrapping an existing *slog.Logger
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	desk := caredesk.New(tickets, agents, llm, func(o *caredesk.Options) { o.Logger = logger })
//
// The interface stays minimal so any structured logger can be plugged in.
package logging
