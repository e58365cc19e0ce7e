// Package config provides 12-factor configuration for the remote object bridge.
//
// Configuration is loaded from environment variables with sensible defaults.
// A TOML or YAML file can be layered on top with LoadFile.
//
// Configuration Sections:
//   - Bridge: sync timeout, descriptor limits, cycle policy, builtin modules
//   - Transport: compression threshold, read limit, circuit breaker, inbound rate
//   - Server: host surface (port, host, upgrade path, CORS origins)
//   - Sandbox: script runtime timeout, pool size, call stack depth
//   - Logging: log level and output format
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Bridge listening on %s:%s%s\n", cfg.Server.Host, cfg.Server.Port, cfg.Server.Path)
//
// Environment Variables:
//   - BRIDGE_SYNC_TIMEOUT, BRIDGE_MAX_DEPTH, BRIDGE_MAX_NODES, BRIDGE_CYCLE_POLICY
//   - TRANSPORT_COMPRESS_THRESHOLD, TRANSPORT_BREAKER_FAILURES, TRANSPORT_INBOUND_RATE
//   - PORT, HOST, IPC_PATH, ALLOW_ORIGINS
//   - SANDBOX_TIMEOUT, SANDBOX_POOL_SIZE
//   - LOG_LEVEL, LOG_DEV
package config
