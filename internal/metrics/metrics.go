// Package metrics exposes Prometheus instrumentation for the recommender.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Corpus cache
	CorpusLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movierec_corpus_loads_total",
			Help: "Corpus reloads from the data source, by result",
		},
		[]string{"result"},
	)

	CorpusSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "movierec_corpus_items",
			Help: "Number of items in the current corpus snapshot",
		},
	)

	CorpusAppends = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "movierec_corpus_appends_total",
			Help: "Items appended to the corpus after an external lookup",
		},
	)

	MatrixRebuilds = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "movierec_matrix_rebuilds_total",
			Help: "TF-IDF matrix builds",
		},
	)

	MatrixBuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "movierec_matrix_build_duration_seconds",
			Help:    "Time spent building the TF-IDF matrix",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Recommendations and search
	RecommendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "movierec_recommend_duration_seconds",
			Help:    "Recommendation latency by outcome",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"}, // ok, not_found, empty_corpus, error
	)

	SearchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movierec_search_requests_total",
			Help: "Search requests by kind",
		},
		[]string{"kind"}, // keyword, category, tag
	)

	// External collaborators
	ExternalLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movierec_external_lookups_total",
			Help: "Single-title lookups against the discovered store and the external provider",
		},
		[]string{"result"}, // stored, found, missing, error
	)

	EnrichmentLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movierec_enrichment_lookups_total",
			Help: "Poster lookups by result",
		},
		[]string{"result"}, // hit, miss, cached, error
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "movierec_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movierec_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// API
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "movierec_api_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "status"},
	)
)

// ObserveRecommend records one recommendation call.
func ObserveRecommend(outcome string, d time.Duration) {
	RecommendDuration.WithLabelValues(outcome).Observe(d.Seconds())
}
