// Package router configures the poller's HTTP API.
//
// Routes configured:
//   - GET /protocols/current - Latest aggregated protocol ranking
//   - GET /healthz - Health check endpoint (returns 200 OK)
//   - GET /readyz - 503 until the first poll cycle has completed
//   - GET /metrics - Prometheus metrics endpoint
//
// A ranking older than the stale threshold is still served, with the
// X-Rulesync-Stale header set so consumers can decide whether to trust it.
package router

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/rulesync/pkg/client"
	"github.com/HatiCode/rulesync/pkg/httpx"
)

// Source provides the most recent aggregate. found is false until the first
// poll cycle has completed.
type Source interface {
	Latest() (resp client.ProtocolsResponse, found bool)
}

// SetupRoutes configures HTTP endpoints for the poller.
func SetupRoutes(src Source, staleAfter time.Duration, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/healthz", httpx.HealthHandler())
	mux.Handle("/readyz", httpx.HealthHandlerWithCheck(func() error {
		if _, found := src.Latest(); !found {
			return errors.New("no aggregate available yet")
		}
		return nil
	}))
	mux.HandleFunc("/protocols/current", handleGetProtocols(src, staleAfter, logger))
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func handleGetProtocols(src Source, staleAfter time.Duration, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httpx.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		resp, found := src.Latest()
		if !found {
			httpx.WriteErrorMessage(w, http.StatusNotFound, "no aggregate available yet")
			return
		}

		if staleAfter > 0 && time.Since(resp.GeneratedAt) > staleAfter {
			logger.Debug("serving stale aggregate", "generated_at", resp.GeneratedAt)
			w.Header().Set(client.StaleHeader, "true")
		}

		httpx.WriteJSON(w, http.StatusOK, resp)
	}
}
