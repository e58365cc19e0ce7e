/*
Package monitoring provides Prometheus metrics for the remote object bridge.

# Overview

Each process creates one collector on its own registry, so tests and multiple
bridges in one process never collide on registration.

# Metrics

- Bridge requests by side, channel and outcome, with latency histograms
- Transport messages by direction and kind
- Live proxies, live callbacks and live owner objects
- Release notifications, callback failures and breaker trips
- WebSocket sessions and HTTP requests on the host surface

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics, monitoring.SideRenderer, channel)
	// ... issue request ...
	timer.Stop(monitoring.StatusOK)
*/
package monitoring
