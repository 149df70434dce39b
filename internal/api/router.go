package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
//
// The endpoint set and parameter names are a fixed wire contract with
// existing clients, so routes live flat under /api rather than a
// versioned prefix.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api", func(r chi.Router) {
		// Liveness and bridge status
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)

		// Cache reads
		r.Get("/devices", s.handleDevices)
		r.Get("/lights", s.handleLights)
		r.Get("/sensors", s.handleSensors)
		r.Get("/sensor", s.handleSensor)

		// Naming
		r.Get("/name", s.handleName)
		r.Post("/name", s.handleName)

		// Commissioning and sharing
		r.Get("/register", s.handleRegister)
		r.Get("/share", s.handleShare)

		// Control
		r.Get("/set", s.handleSet)
		r.Post("/set", s.handleSet)

		// WebSocket event stream
		r.Get("/events", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
