// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// The terminal host tags lifecycle logs with session_id, pid and reason so a
// single shell can be followed from create to reclaim.
//
// Example Usage:
//
//	logger := logging.FromConfig("info", false)
//	logger.Info("Server starting", zap.String("port", "8000"))
//	logger.With(zap.String("session_id", id)).Warn("Bridge exited", zap.Error(err))
package logging
