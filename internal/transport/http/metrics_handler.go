package http

import (
	"net/http"
)

// MetricsHandler serves the Prometheus scrape endpoint backed by the
// OpenTelemetry prometheus exporter.
type MetricsHandler struct {
	handler http.Handler
}

// NewMetricsHandler wraps the exporter's HTTP handler. A nil handler
// yields 503 on scrape.
func NewMetricsHandler(handler http.Handler) *MetricsHandler {
	return &MetricsHandler{handler: handler}
}

// ServeHTTP implements http.Handler.
func (h *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.handler == nil {
		http.Error(w, "metrics disabled", http.StatusServiceUnavailable)
		return
	}
	h.handler.ServeHTTP(w, r)
}
