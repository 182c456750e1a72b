// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by the counters below
const (
	OutcomeSuccess  = "success"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
	OutcomeFallback = "fallback"
	OutcomeCacheHit = "cache_hit"
)

// Metrics groups the service collectors. A nil *Metrics is valid and records nothing,
// which keeps tests and tools free of registry setup.
type Metrics struct {
	registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	requestCount    *prometheus.CounterVec

	subscriptionRequests *prometheus.CounterVec
	watchlistMutations   *prometheus.CounterVec

	lookups        *prometheus.CounterVec
	lookupDuration *prometheus.HistogramVec
}

// New creates the collectors on a private registry under namespace
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"route", "method", "status"},
		),
		requestCount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),

		subscriptionRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "subscription_requests_total",
				Help:      "Subscription request transitions by action and outcome",
			},
			[]string{"action", "outcome"},
		),
		watchlistMutations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "watchlist_mutations_total",
				Help:      "Watchlist stock additions and removals",
			},
			[]string{"action", "outcome"},
		),

		lookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "marketdata_lookups_total",
				Help:      "Market data lookups by source and outcome",
			},
			[]string{"source", "outcome"},
		),
		lookupDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "marketdata_lookup_duration_seconds",
				Help:      "Latency of market data lookups",
				Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"source"},
		),
	}
}

// ObserveRequest records an HTTP request. route is the mux path template.
func (m *Metrics) ObserveRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(route, method, code).Observe(duration.Seconds())
	m.requestCount.WithLabelValues(route, method, code).Inc()
}

// ObserveSubscription records a submit, approve or reject attempt
func (m *Metrics) ObserveSubscription(action, outcome string) {
	if m == nil {
		return
	}
	m.subscriptionRequests.WithLabelValues(action, outcome).Inc()
}

// ObserveWatchlistMutation records an add or remove attempt
func (m *Metrics) ObserveWatchlistMutation(action, outcome string) {
	if m == nil {
		return
	}
	m.watchlistMutations.WithLabelValues(action, outcome).Inc()
}

// ObserveLookup records one market data lookup
func (m *Metrics) ObserveLookup(source, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(source, outcome).Inc()
	m.lookupDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
