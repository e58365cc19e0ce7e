// Package main is the owner process of the remote object bridge.
//
// It serves renderer connections over WebSocket. Every connection gets a
// fresh sandbox runtime in which the host script is evaluated; the globals
// that script defines (modules, builtins, currentWindow, currentWebContents,
// guests) are what renderers can reach.
//
// Configuration:
//   - Environment variables (see internal/config)
//   - Optional TOML or YAML file (-config)
//   - CLI flags override both
//
// Usage:
//
//	# Serve the bundled demo host
//	./remote-host -port 8000
//
//	# Serve a custom host script with colored debug logs
//	./remote-host -script host.js -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
