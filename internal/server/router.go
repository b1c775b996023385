package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/telhawk-systems/telhawk-relay/common/logging"
	"github.com/telhawk-systems/telhawk-relay/common/middleware"
	"github.com/telhawk-systems/telhawk-relay/internal/handlers"
)

// NewRouter constructs a ServeMux with the relay routes registered.
// route is the function trigger path, e.g. /api/LogToAppInsights.
func NewRouter(h *handlers.EventHandler, route string, logger *logging.Logger) http.Handler {
	mux := http.NewServeMux()

	// Function trigger
	mux.HandleFunc(route, h.HandleEvent)

	// Health endpoints
	mux.HandleFunc("/healthz", h.Health)
	mux.HandleFunc("/readyz", h.Ready)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	return middleware.RequestID(AccessLog(logger)(mux))
}
