// Package api is the HTTP embedding process around the ride lifecycle
// core: chi router, bearer-token auth, rate limiting, structured request
// logging, a websocket transport over the Update Bus, and a Prometheus
// /metrics endpoint. None of this is part of the core itself (§1 frames the
// transport as the embedding process's concern) but every ridecore deploy
// carries it, the same way the teacher's internal/api carries it around
// internal/dispatch.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ridecore/internal/bus"
	"ridecore/internal/location"
	"ridecore/internal/metrics"
	"ridecore/internal/payment"
	"ridecore/internal/ride"
	"ridecore/internal/storage"
)

// AttachRoutes wires the §6 external interface onto r.
func AttachRoutes(r chi.Router, engine *ride.Engine, settlement *payment.Settlement, pipeline *location.Pipeline, b *bus.Bus, identities *storage.IdentityStore, reg *metrics.Registry, authTTL time.Duration) {
	authCfg := newAuthConfig(identities, authTTL)
	h := &Handler{
		engine:     engine,
		settlement: settlement,
		pipeline:   pipeline,
		bus:        b,
		metrics:    reg,
		auth:       authCfg,
		startTime:  time.Now(),
	}

	r.Use(middleware.RequestID)
	r.Use(loggingMiddleware)
	r.Use(h.metricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(pr chi.Router) {
		pr.Use(authCfg.middleware)
		pr.Post("/api/auth/register", h.RegisterIdentity)

		mutating := httprate.LimitByIP(20, time.Minute)
		pr.With(mutating).Post("/api/rides", h.CreateRide)
		pr.Get("/api/rides/{rideID}", h.GetRide)
		pr.Post("/api/rides/{rideID}/cancel", h.CancelRide)
		pr.Get("/api/riders/{riderID}/history", h.ListRiderHistory)

		pr.Post("/api/drivers/{driverID}/location", h.UpdateDriverLocation)
		pr.Post("/api/drivers/{driverID}/availability", h.UpdateDriverAvailability)

		pr.With(mutating).Post("/api/rides/{rideID}/accept", h.AcceptRide)
		pr.Post("/api/rides/{rideID}/arriving", h.MarkArriving)
		pr.Post("/api/rides/{rideID}/arrived", h.MarkArrived)
		pr.Post("/api/trips/{tripID}/start", h.StartTrip)
		pr.Post("/api/trips/{tripID}/end", h.EndTrip)

		pr.With(mutating).Post("/api/trips/{tripID}/payment", h.ProcessPayment)
		pr.Post("/api/payments/{paymentID}/refund", h.RefundPayment)
	})

	r.Get("/ws/rides/{rideID}", h.RideWebsocket)
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
