// Package telemetry exposes Prometheus metrics for embedding, retrieval,
// ingestion, and the HTTP transport. Metrics are registered with the default
// registry on import and served by the API at /metrics.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "docrag"

// Embedding metrics.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"provider", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "model"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"cache", "result"},
	)
)

// Retrieval metrics.
var (
	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Retrieval queries by classified intent",
		},
		[]string{"intent"},
	)

	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "End-to-end retrieval latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"intent"},
	)

	ZeroResultQueriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "zero_result_queries_total",
			Help:      "Retrieval queries that returned no chunks",
		},
	)

	VariantFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_variant_failures_total",
			Help:      "Query variants dropped after an embedding or search failure",
		},
	)
)

// Answer generation metrics.
var (
	GenerationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_requests_total",
			Help:      "Answer generation requests by provider and status",
		},
		[]string{"provider", "status"},
	)

	GenerationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Answer generation latency in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider"},
	)
)

// Ingestion and index metrics.
var (
	IngestDocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_documents_total",
			Help:      "Documents processed by ingestion, by outcome",
		},
		[]string{"outcome"},
	)

	IndexChunks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_chunks",
			Help:      "Chunks in the currently published index",
		},
	)

	IndexPublishedTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_published_timestamp_seconds",
			Help:      "Unix time the current index generation was loaded",
		},
	)
)

func init() {
	prometheus.MustRegister(
		EmbeddingRequestsTotal,
		EmbeddingRequestDuration,
		EmbeddingCacheTotal,
		QueriesTotal,
		QueryDuration,
		ZeroResultQueriesTotal,
		VariantFailuresTotal,
		GenerationRequestsTotal,
		GenerationDuration,
		IngestDocumentsTotal,
		IndexChunks,
		IndexPublishedTimestamp,
		httpRequestDuration,
		httpRequestsTotal,
	)
}

// QueryEvent is one completed retrieval.
type QueryEvent struct {
	Intent         string
	ResultCount    int
	FailedVariants int
	Latency        time.Duration
}

// RecordQuery updates the retrieval metrics for one query.
func RecordQuery(e QueryEvent) {
	QueriesTotal.WithLabelValues(e.Intent).Inc()
	QueryDuration.WithLabelValues(e.Intent).Observe(e.Latency.Seconds())
	if e.ResultCount == 0 {
		ZeroResultQueriesTotal.Inc()
	}
	if e.FailedVariants > 0 {
		VariantFailuresTotal.Add(float64(e.FailedVariants))
	}
}

// RecordEmbedding updates the embedding request metrics.
func RecordEmbedding(provider, model string, d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	EmbeddingRequestsTotal.WithLabelValues(provider, model, status).Inc()
	if err == nil {
		EmbeddingRequestDuration.WithLabelValues(provider, model).Observe(d.Seconds())
	}
}

// RecordGeneration updates the answer generation metrics. Status is
// "success", "error" or "fallback".
func RecordGeneration(provider, status string, d time.Duration) {
	GenerationRequestsTotal.WithLabelValues(provider, status).Inc()
	GenerationDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordIndexLoaded sets the published index gauges.
func RecordIndexLoaded(chunks int, at time.Time) {
	IndexChunks.Set(float64(chunks))
	IndexPublishedTimestamp.Set(float64(at.Unix()))
}
