// Package metrics exposes the Prometheus instruments of the scheduling engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "carematch"

type Metrics struct {
	registry prometheus.Gatherer

	bookingOutcomes         *prometheus.CounterVec
	matchDuration           prometheus.Histogram
	matchCandidates         prometheus.Histogram
	specializationFallbacks *prometheus.CounterVec
	cacheLookups            *prometheus.CounterVec
	bestEffortFailures      *prometheus.CounterVec
	httpRequests            *prometheus.CounterVec
	httpDuration            *prometheus.HistogramVec
}

// New registers all instruments on reg.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		bookingOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "booking", Name: "operations_total",
			Help: "Booking operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		matchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "matching", Name: "duration_seconds",
			Help:    "Wall time of uncached ranking calls.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
		}),
		matchCandidates: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "matching", Name: "candidates",
			Help:    "Candidates surviving the hard filters.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8),
		}),
		specializationFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "matching", Name: "specialization_fallbacks_total",
			Help: "Specialization scores computed by the keyword heuristic instead of the reasoning service.",
		}, []string{"reason"}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "lookups_total",
			Help: "Advisory cache lookups by cache name and result.",
		}, []string{"cache", "result"}),
		bestEffortFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "best_effort_failures_total",
			Help: "Swallowed failures of non-essential writes.",
		}, []string{"kind"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) BookingOutcome(operation, outcome string) {
	if m == nil {
		return
	}
	m.bookingOutcomes.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) MatchCompleted(d time.Duration, candidates int) {
	if m == nil {
		return
	}
	m.matchDuration.Observe(d.Seconds())
	m.matchCandidates.Observe(float64(candidates))
}

func (m *Metrics) SpecializationFallback(reason string) {
	if m == nil {
		return
	}
	m.specializationFallbacks.WithLabelValues(reason).Inc()
}

func (m *Metrics) CacheLookup(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(cache, result).Inc()
}

func (m *Metrics) BestEffortFailure(kind string) {
	if m == nil {
		return
	}
	m.bestEffortFailures.WithLabelValues(kind).Inc()
}

// Middleware records request counts and latency per route template.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
