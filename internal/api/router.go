package api

import (
	"net/http"
	"stop-sequencing-service/internal/api/handlers"
	"stop-sequencing-service/internal/platform/metrics"

	"go.uber.org/zap"
)

// NewRouter wires HTTP handlers with their dependencies and returns an http.Handler.
// This is the API composition root (handlers stay unaware of concrete adapters).
func NewRouter(svc handlers.RouteService, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()

	routeHandler := &handlers.RouteHandler{Service: svc}

	mux.HandleFunc("GET /health", handlers.Health)
	mux.HandleFunc("GET /routes/{routeID}/stops", routeHandler.ListStops)
	mux.HandleFunc("POST /routes/{routeID}/optimize", routeHandler.Optimize)
	mux.HandleFunc("POST /routes/{routeID}/shuffle", routeHandler.Shuffle)
	mux.HandleFunc("POST /routes/{routeID}/metrics", routeHandler.Metrics)
	mux.Handle("GET /metrics", metrics.Handler())

	return requestMiddleware(logger, mux)
}
