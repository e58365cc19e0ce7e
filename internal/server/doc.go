// Package server exposes an owner host over HTTP.
//
// Routes:
//   - GET /ipc (configurable): upgrades to a WebSocket and serves one
//     renderer with an owner session on a pooled sandbox runtime
//   - GET /health: liveness plus session and pool counters
//   - GET /metrics: Prometheus exposition
//
// Each connection leases a sandbox for its lifetime, builds the objects it
// serves with the configured HostFactory, and returns the sandbox to the
// pool when the renderer disconnects. Server shutdown cancels every live
// session.
//
// Example Usage:
//
//	srv := server.New(cfg, pool, hosts, logger, metrics)
//	if err := srv.Run(ctx); err != nil {
//	    logger.Fatal("Server failed", zap.Error(err))
//	}
package server
