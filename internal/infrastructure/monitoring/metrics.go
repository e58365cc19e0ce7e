package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for one bridge process.
//
// Every method is safe on a nil *Metrics so components can run without
// instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Bridge request metrics
	BridgeRequests *prometheus.CounterVec
	BridgeDuration *prometheus.HistogramVec

	// Transport metrics
	Messages *prometheus.CounterVec

	// Lifetime metrics
	ProxiesLive    prometheus.Gauge
	CallbacksLive  prometheus.Gauge
	OwnerObjects   prometheus.Gauge
	Dereferences   *prometheus.CounterVec
	CallbackErrors prometheus.Counter
	BreakerTrips   prometheus.Counter

	// WebSocket metrics
	WSSessions prometheus.Gauge

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time

	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current values for the health endpoint.
type Snapshot struct {
	Requests       int64   `json:"requests"`
	RequestErrors  int64   `json:"request_errors"`
	ActiveSessions int64   `json:"active_sessions"`
	TotalDuration  float64 `json:"total_duration_seconds"`
}

// NewMetrics creates a metrics collector on its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remote_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "remote_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		// Bridge request metrics
		BridgeRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remote_bridge_requests_total",
				Help: "Total number of bridge requests by channel and outcome",
			},
			[]string{"side", "channel", "status"},
		),
		BridgeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "remote_bridge_request_duration_seconds",
				Help:    "Bridge request duration in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5, 30},
			},
			[]string{"side", "channel"},
		),

		// Transport metrics
		Messages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remote_messages_total",
				Help: "Total number of transport messages",
			},
			[]string{"direction", "kind"},
		),

		// Lifetime metrics
		ProxiesLive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "remote_proxies_live",
				Help: "Number of live renderer proxies",
			},
		),
		CallbacksLive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "remote_callbacks_live",
				Help: "Number of renderer functions registered as callbacks",
			},
		),
		OwnerObjects: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "remote_owner_objects_live",
				Help: "Number of owner objects referenced by renderers",
			},
		),
		Dereferences: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remote_dereferences_total",
				Help: "Total number of release notifications",
			},
			[]string{"kind"},
		),
		CallbackErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "remote_callback_errors_total",
				Help: "Total number of callbacks that failed on the renderer",
			},
		),
		BreakerTrips: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "remote_breaker_trips_total",
				Help: "Total number of times a sync circuit breaker opened",
			},
		),

		// WebSocket metrics
		WSSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "remote_ws_sessions",
				Help: "Number of active WebSocket bridge sessions",
			},
		),
	}

	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "remote_uptime_seconds",
			Help: "Process uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordRequest records one bridge request handled or issued by side.
func (m *Metrics) RecordRequest(side, channel, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.BridgeRequests.WithLabelValues(side, channel, status).Inc()
	m.BridgeDuration.WithLabelValues(side, channel).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.Requests++
	m.snapshot.TotalDuration += duration.Seconds()
	if status != StatusOK {
		m.snapshot.RequestErrors++
	}
	m.mu.Unlock()
}

// RecordMessage records a transport message
func (m *Metrics) RecordMessage(direction, kind string) {
	if m == nil {
		return
	}
	m.Messages.WithLabelValues(direction, kind).Inc()
}

// AddProxies adjusts the live proxy gauge
func (m *Metrics) AddProxies(delta int) {
	if m == nil {
		return
	}
	m.ProxiesLive.Add(float64(delta))
}

// SetCallbacks sets the live callback gauge
func (m *Metrics) SetCallbacks(count int) {
	if m == nil {
		return
	}
	m.CallbacksLive.Set(float64(count))
}

// SetOwnerObjects sets the live owner object gauge
func (m *Metrics) SetOwnerObjects(count int) {
	if m == nil {
		return
	}
	m.OwnerObjects.Set(float64(count))
}

// IncDereference counts one release notification of the given kind
func (m *Metrics) IncDereference(kind string) {
	if m == nil {
		return
	}
	m.Dereferences.WithLabelValues(kind).Inc()
}

// IncCallbackErrors counts a failed callback
func (m *Metrics) IncCallbackErrors() {
	if m == nil {
		return
	}
	m.CallbackErrors.Inc()
}

// IncBreakerTrips counts a breaker opening
func (m *Metrics) IncBreakerTrips() {
	if m == nil {
		return
	}
	m.BreakerTrips.Inc()
}

// IncWSSessions increments WebSocket sessions
func (m *Metrics) IncWSSessions() {
	if m == nil {
		return
	}
	m.WSSessions.Inc()
	m.mu.Lock()
	m.snapshot.ActiveSessions++
	m.mu.Unlock()
}

// DecWSSessions decrements WebSocket sessions
func (m *Metrics) DecWSSessions() {
	if m == nil {
		return
	}
	m.WSSessions.Dec()
	m.mu.Lock()
	m.snapshot.ActiveSessions--
	m.mu.Unlock()
}

// Snapshot returns a copy of the summary counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// UptimeSeconds returns seconds since the collector was created.
func (m *Metrics) UptimeSeconds() float64 {
	if m == nil {
		return 0
	}
	return time.Since(m.startTime).Seconds()
}
