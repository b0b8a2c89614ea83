// Package router configures HTTP routes for the syncer's HTTP server.
//
// The syncer exposes an auxiliary HTTP server next to its gRPC control
// service.
//
// Routes configured:
//   - GET /policy/current - Result of the most recent sync cycle
//   - GET /healthz - Health check endpoint (returns 200 OK)
//   - GET /readyz - 503 until the first sync cycle has completed
//   - GET /metrics - Prometheus metrics endpoint
package router

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/rulesync/pkg/httpx"
	"github.com/HatiCode/rulesync/pkg/rulesync"
)

// LastResult is satisfied by *rulesync.Controller.
type LastResult interface {
	Last() (rulesync.Result, bool)
}

// SetupRoutes configures HTTP routes for the syncer. Metrics are served from
// gatherer.
func SetupRoutes(src LastResult, gatherer prometheus.Gatherer, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/healthz", httpx.HealthHandler())
	mux.Handle("/readyz", httpx.HealthHandlerWithCheck(func() error {
		if _, found := src.Last(); !found {
			return errors.New("no sync cycle has run yet")
		}
		return nil
	}))
	mux.HandleFunc("/policy/current", handleGetPolicy(src, logger))
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return mux
}

func handleGetPolicy(src LastResult, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httpx.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		res, found := src.Last()
		if !found {
			httpx.WriteErrorMessage(w, http.StatusNotFound, "no sync cycle has run yet")
			return
		}

		if err := httpx.WriteJSON(w, http.StatusOK, res); err != nil {
			logger.Error("failed to write policy response", "error", err)
		}
	}
}
