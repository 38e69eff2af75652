package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/framelink/internal/metrics"
	"github.com/rickgao/framelink/internal/version"
)

// healthSource is the part of a manager the health endpoint reports on.
type healthSource interface {
	Healthy() bool
}

// connectedSource is implemented by managers that can be healthy while not
// connected.
type connectedSource interface {
	Connected() bool
}

// createHealthHandler creates the HTTP handler for health checks and metrics.
func createHealthHandler(role string, src healthSource, stats func() any, gatherer prometheus.Gatherer, metricsPath string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		health := struct {
			Status     string         `json:"status"`
			Build      version.Info   `json:"build"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Build:      version.Get(),
			Components: make(map[string]any),
		}

		if !src.Healthy() {
			health.Status = "unhealthy"
		} else if c, ok := src.(connectedSource); ok && !c.Connected() {
			health.Status = "degraded"
		}
		health.Components[role] = stats()

		// Set response
		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	if gatherer != nil {
		mux.Handle(metricsPath, metrics.Handler(gatherer))
	}

	return mux
}

// startHealthServer serves h on port in the background.
func startHealthServer(port int, h http.Handler, logger *slog.Logger) *http.Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("starting health server", "port", port)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	return srv
}

// shutdown stops the manager and then the health server.
func shutdown(m interface{ Stop(context.Context) error }, health *http.Server, logger *slog.Logger) {
	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := m.Stop(ctx); err != nil {
		logger.Warn("manager stop failed", "error", err)
	}
	health.Shutdown(ctx)
}
