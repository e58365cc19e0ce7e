// Package logging provides structured logging using uber/zap.
//
// This package offers production-ready logging with two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Bridge components log with structured fields such as channel, remote_id,
// callback_id and peer. Logs go to stderr so binaries can keep stdout for
// script output.
//
// Example Usage:
//
//	logger, err := logging.New(logging.FromConfig(cfg.Logging))
//	logger.Info("Session opened", zap.String("peer", peer.String()))
//	logger.Error("Callback failed", zap.Int64("callback_id", id), zap.Error(err))
package logging
