// Package logging provides structured logging for the PumaGuard presence core.
//
// It wraps log/slog with JSON or text output, level filtering that can be
// changed at runtime, and default service/version attributes.
//
// Configuration (config.yaml):
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	log := logger.Component("heartbeat").With("kind", "camera")
//	log.Info("cycle complete", "probed", 3)
package logging
