package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)
	if s.rateLimiter != nil {
		r.Use(s.rateLimitMiddleware)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/sources", s.handleListSources)

			r.Route("/entries", func(r chi.Router) {
				r.Get("/", s.handleListEntries)
				r.Post("/", s.handleCreateEntry)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetEntry)
					r.Delete("/", s.handleDeleteEntry)
					r.Put("/options", s.handleUpdateOptions)
					r.Post("/select", s.handleSelect)
					r.Post("/refresh", s.handleRefresh)
				})
			})

			// WebSocket (token may also arrive as ?token=)
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// healthPingTimeout bounds the InfluxDB ping of a health request.
const healthPingTimeout = 2 * time.Second

// handleHealth returns the server health status.
//
// Status is "degraded" when Home Assistant, the MQTT broker or InfluxDB is
// configured but unreachable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	checks := map[string]bool{}
	if s.ha != nil {
		checks["homeassistant"] = s.ha.IsConnected()
	}
	if s.mqtt != nil {
		checks["mqtt"] = s.mqtt.IsConnected()
	}
	if s.influx != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		err := s.influx.HealthCheck(ctx)
		cancel()
		if err != nil {
			s.logger.Warn("influxdb health check failed", "error", err)
		}
		checks["influxdb"] = err == nil
	}
	for _, ok := range checks {
		if !ok {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":            status,
		"version":           s.version,
		"checks":            checks,
		"websocket_clients": s.hub.ClientCount(),
	})
}
