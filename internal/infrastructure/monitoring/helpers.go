package monitoring

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Request outcomes used as the status label.
const (
	StatusOK        = "ok"
	StatusException = "exception"
	StatusTimeout   = "timeout"
	StatusError     = "error"
)

// Sides used as the side label.
const (
	SideRenderer = "renderer"
	SideOwner    = "owner"
)

// Handler serves the collector's registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Status maps an error to a status label. Errors matching one of timeouts
// are reported as StatusTimeout.
func Status(err error, timeouts ...error) string {
	if err == nil {
		return StatusOK
	}
	for _, t := range timeouts {
		if errors.Is(err, t) {
			return StatusTimeout
		}
	}
	return StatusError
}
