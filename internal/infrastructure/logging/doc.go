// Package logging provides structured logging for devicelink.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Println/Printf adapter for libraries with their own logger hooks
//
// # Configuration
//
// Logging is configured via the LoggingConfig in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("connecting", "broker", cfg.Broker.Host)
//	logger.Error("publish failed", "error", err)
//
// # Security
//
// Never log device passwords or private key material. Payloads received
// from the broker are logged at debug level only.
package logging
