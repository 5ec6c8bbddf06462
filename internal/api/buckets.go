package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// metricsMiddleware records request latency and counts against the
// Prometheus registry, replacing the teacher's hand-rolled bucketCounter
// and its text-format /metrics handler with internal/metrics' collectors.
func (h *Handler) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		h.metrics.ObserveHTTP(r.Method, route, strconv.Itoa(rec.status), time.Since(start))
	})
}
