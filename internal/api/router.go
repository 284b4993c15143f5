package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds each component check in /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Prometheus exposition
	if s.prometheus != nil {
		r.Handle("/metrics", s.prometheus)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		// DHCP lease hook
		r.Post("/dhcp/event", s.handleDHCPEvent)

		// Device endpoints
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Post("/", s.handleRegisterDevice)
			r.Get("/stats", s.handleDeviceStats)

			r.Route("/{mac}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Delete("/", s.handleRemoveDevice)
				r.Get("/history", s.handleDeviceHistory)
			})
		})

		// Heartbeat
		r.Post("/heartbeat/check", s.handleForceHeartbeat)

		// Plug control
		r.Route("/plugs/{mac}", func(r chi.Router) {
			r.Put("/mode", s.handleSetPlugMode)
			r.Put("/switch", s.handleSetPlugSwitch)
		})

		// Settings per kind
		r.Route("/settings", func(r chi.Router) {
			r.Get("/", s.handleListSettings)
			r.Get("/{kind}", s.handleGetSettings)
			r.Put("/{kind}", s.handlePutSettings)
		})

		// Change stream
		r.Get("/events", s.handleEventsSSE)
		r.Get("/events/ws", s.handleEventsWS)
	})

	return r
}

// handleHealth returns the server health status. Optional components report
// "ok" or their error; any failure turns the overall status to "degraded".
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	components := make(map[string]string, len(s.checks))
	for name, c := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := c.HealthCheck(ctx)
		cancel()
		if err != nil {
			components[name] = err.Error()
			status = "degraded"
			continue
		}
		components[name] = "ok"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
	})
}
