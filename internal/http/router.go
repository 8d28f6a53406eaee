package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// RouterConfig wires handlers and cross-cutting middleware.
type RouterConfig struct {
	Reservations *ReservationHandler
	Verifier     TokenVerifier
	Health       HealthChecker
	CORSOrigins  []string
	StoreTimeout time.Duration
	Logger       *slog.Logger
}

// NewRouter builds the HTTP handler for the service.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := defaultLogger(cfg.Logger)
	router := chi.NewRouter()

	router.Use(middleware.Recoverer)
	router.Use(RequestLogger(logger))
	if len(cfg.CORSOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", requestIDHeader},
			ExposedHeaders:   []string{requestIDHeader, "Retry-After"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	router.Get("/healthz", healthHandler(cfg.Health, newResponder(logger)))

	if cfg.Reservations != nil && cfg.Verifier != nil {
		router.Group(func(r chi.Router) {
			r.Use(RequireAuth(cfg.Verifier, logger))
			r.Use(StoreTimeout(cfg.StoreTimeout))

			r.Get("/sessions", cfg.Reservations.ListSessions)
			r.Route("/sessions/{sessionID}", func(r chi.Router) {
				r.Get("/", cfg.Reservations.GetSession)
				r.Post("/reservation", cfg.Reservations.Reserve)
				r.Delete("/reservation", cfg.Reservations.Release)
				r.Get("/events", cfg.Reservations.Events)
			})
		})
	}

	return router
}

func healthHandler(checker HealthChecker, responder responder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := checker.Ping(ctx); err != nil {
				responder.loggerFor(r.Context()).WarnContext(r.Context(), "health check failed", "error", err)
				w.Header().Set("Retry-After", "1")
				responder.writeJSON(r.Context(), w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		responder.writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
