// Package metrics exposes Prometheus counters and histograms for the
// ride lifecycle engine, replacing the teacher's hand-rolled bucketCounter
// (internal/api/buckets.go) and its hand-written /metrics text endpoint with
// the standard client_golang collectors and the promhttp handler.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry bundles every collector the core and its embedding process emit.
// A single instance is created at startup and threaded into the packages
// that need it, the way the teacher threads a bucketCounter into handlers.
// Only the HTTP collectors (via ObserveHTTP) and the location drop, flush
// and batch-size collectors (via the location adapter) are fed;
// LocationPingsTotal and the Match* and Payment* collectors are registered
// but nothing increments them.
type Registry struct {
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestsTotal   *prometheus.CounterVec

	LocationPingsTotal   prometheus.Counter
	LocationPingsDropped prometheus.Counter
	LocationFlushTotal   prometheus.Counter
	LocationFlushFailure prometheus.Counter
	LocationBatchSize    prometheus.Histogram

	MatchAttemptsTotal prometheus.Counter
	MatchSuccessTotal  prometheus.Counter
	MatchFailureTotal  prometheus.Counter
	MatchDuration      prometheus.Histogram

	PaymentAttemptsTotal prometheus.Counter
	PaymentSuccessTotal  prometheus.Counter
	PaymentFailureTotal  prometheus.Counter
}

// New registers every collector against the provided registerer and returns
// the bundle. Pass prometheus.DefaultRegisterer in production, or a fresh
// prometheus.NewRegistry() in tests to avoid duplicate registration panics.
func New(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ridecore",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),

		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ridecore",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests handled.",
		}, []string{"method", "route", "status"}),

		LocationPingsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ridecore",
			Subsystem: "location",
			Name:      "pings_total",
			Help:      "Total location pings accepted by the ingest pipeline.",
		}),
		LocationPingsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ridecore",
			Subsystem: "location",
			Name:      "pings_dropped_total",
			Help:      "Total location pings dropped by backpressure (high-water mark).",
		}),
		LocationFlushTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ridecore",
			Subsystem: "location",
			Name:      "flush_total",
			Help:      "Total successful location batch flushes to the persistence store.",
		}),
		LocationFlushFailure: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ridecore",
			Subsystem: "location",
			Name:      "flush_failures_total",
			Help:      "Total location batch flushes that failed after retry and were dropped.",
		}),
		LocationBatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ridecore",
			Subsystem: "location",
			Name:      "flush_batch_size",
			Help:      "Size of location ping batches written per flush.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		MatchAttemptsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ridecore",
			Subsystem: "matching",
			Name:      "attempts_total",
			Help:      "Total matching loop attempts across all rides.",
		}),
		MatchSuccessTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ridecore",
			Subsystem: "matching",
			Name:      "success_total",
			Help:      "Total rides successfully matched to a driver.",
		}),
		MatchFailureTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ridecore",
			Subsystem: "matching",
			Name:      "failure_total",
			Help:      "Total rides that exhausted matching attempts without a driver.",
		}),
		MatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ridecore",
			Subsystem: "matching",
			Name:      "duration_seconds",
			Help:      "Wall-clock time from ride creation to a matching outcome.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}),

		PaymentAttemptsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ridecore",
			Subsystem: "payment",
			Name:      "attempts_total",
			Help:      "Total PSP charge attempts.",
		}),
		PaymentSuccessTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ridecore",
			Subsystem: "payment",
			Name:      "success_total",
			Help:      "Total PSP charges that completed successfully.",
		}),
		PaymentFailureTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ridecore",
			Subsystem: "payment",
			Name:      "failure_total",
			Help:      "Total PSP charges that failed.",
		}),
	}
}

// ObserveHTTP records one completed HTTP request.
func (r *Registry) ObserveHTTP(method, route, status string, d time.Duration) {
	r.HTTPRequestDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
	r.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
}

// locationAdapter satisfies location.Metrics without internal/location
// importing internal/metrics, keeping the dependency direction pointed at
// the ambient stack rather than into the domain packages.
type locationAdapter struct{ r *Registry }

// NewLocationAdapter wraps r as a location.Metrics implementation.
func NewLocationAdapter(r *Registry) *locationAdapter {
	return &locationAdapter{r: r}
}

func (a *locationAdapter) IncDropped(n int) { a.r.LocationPingsDropped.Add(float64(n)) }
func (a *locationAdapter) IncFlushed(n int) {
	a.r.LocationFlushTotal.Inc()
	a.r.LocationBatchSize.Observe(float64(n))
}
func (a *locationAdapter) IncFlushFailure() { a.r.LocationFlushFailure.Inc() }
