package http

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig wires handlers into the router. Nil handlers leave their
// routes unregistered.
type RouterConfig struct {
	Personas     *PersonaHandler
	Scores       *ScoreHandler
	Reservations *ReservationHandler
	Venues       *VenueHandler
	Health       *HealthHandler
	// Gatherer serves /metrics when set.
	Gatherer   prometheus.Gatherer
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	if cfg.Personas != nil {
		mux.HandleFunc("GET /personas", cfg.Personas.List)
		mux.HandleFunc("GET /personas/{alias}", cfg.Personas.Get)
		mux.HandleFunc("GET /subjects/{id}/personas", cfg.Personas.ListAssignments)
		mux.HandleFunc("POST /subjects/{id}/personas", cfg.Personas.Assign)
		mux.HandleFunc("DELETE /subjects/{id}/personas/{alias}", cfg.Personas.Unassign)
	}

	if cfg.Scores != nil {
		mux.HandleFunc("POST /scores/team", cfg.Scores.Team)
		mux.HandleFunc("POST /scores/match", cfg.Scores.Match)
		mux.HandleFunc("POST /scores/rank", cfg.Scores.Rank)
	}

	if cfg.Reservations != nil {
		mux.HandleFunc("GET /reservations", cfg.Reservations.List)
		mux.HandleFunc("POST /reservations", cfg.Reservations.Create)
		mux.HandleFunc("GET /reservations/{id}", cfg.Reservations.Get)
		mux.HandleFunc("POST /reservations/{id}/confirm", cfg.Reservations.Confirm)
		mux.HandleFunc("POST /reservations/{id}/cancel", cfg.Reservations.Cancel)
		mux.HandleFunc("POST /reservations/{id}/complete", cfg.Reservations.Complete)
	}

	if cfg.Venues != nil {
		mux.HandleFunc("GET /venues", cfg.Venues.List)
	}

	if cfg.Health != nil {
		mux.HandleFunc("GET /healthz", cfg.Health.Check)
	}

	if cfg.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	var handler http.Handler = mux
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}

	return handler
}
