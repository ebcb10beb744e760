// Package logging provides structured logging for Tagwatch Core.
//
// This package wraps Go's standard log/slog package so that every component
// (sessions, the rule evaluator, event sinks, the management API) logs with
// the same shape.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Component("monitor").Info("session opened", "connection_id", 3)
//
// Never log endpoint credentials or database DSNs.
package logging
