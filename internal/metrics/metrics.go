// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelf_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// RequestDuration measures HTTP request latency.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shelf_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// ResolutionsTotal counts membership resolutions by kind and outcome.
	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelf_resolutions_total",
			Help: "Total number of collection membership resolutions",
		},
		[]string{"kind", "outcome"},
	)

	// ResolutionDuration measures how long a membership resolution takes.
	ResolutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shelf_resolution_duration_seconds",
			Help:    "Collection membership resolution duration in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15},
		},
		[]string{"kind"},
	)

	// ResolutionCacheLookups counts resolution cache lookups by result.
	ResolutionCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelf_resolution_cache_lookups_total",
			Help: "Resolution cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)

	// CatalogRetriesTotal counts retried catalog resolutions.
	CatalogRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shelf_catalog_retries_total",
			Help: "Resolutions retried after the catalog was unavailable",
		},
	)

	// CatalogBreakerState reports the catalog circuit breaker state (0 closed, 1 half-open, 2 open).
	CatalogBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shelf_catalog_breaker_state",
			Help: "Catalog circuit breaker state: 0 closed, 1 half-open, 2 open",
		},
	)

	// PagesServed counts pages served by outcome (ok, stale_cursor, invalid_arguments).
	PagesServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelf_pages_served_total",
			Help: "Collection product pages served by outcome",
		},
		[]string{"outcome"},
	)
)
