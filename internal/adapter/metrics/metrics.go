package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects RAG pipeline counters on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	uploads           prometheus.Counter
	chunksEmbedded    *prometheus.CounterVec
	retrievals        *prometheus.CounterVec
	retrievalDuration prometheus.Histogram
	chats             *prometheus.CounterVec
	modelFailures     *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		uploads: factory.NewCounter(prometheus.CounterOpts{
			Name: "studyrag_uploads_total",
			Help: "Documents uploaded or replaced.",
		}),
		chunksEmbedded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "studyrag_chunks_total",
			Help: "Chunks stored, by whether an embedding was attached.",
		}, []string{"embedding"}),
		retrievals: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "studyrag_retrievals_total",
			Help: "Retrievals executed, by query strategy.",
		}, []string{"strategy"}),
		retrievalDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "studyrag_retrieval_duration_seconds",
			Help:    "Time spent scoring and ranking chunks.",
			Buckets: prometheus.DefBuckets,
		}),
		chats: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "studyrag_chat_requests_total",
			Help: "Chat requests, by outcome.",
		}, []string{"outcome"}),
		modelFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "studyrag_model_failures_total",
			Help: "Failed language model calls, by operation.",
		}, []string{"operation"}),
	}
}

func (m *Metrics) Upload(embedded, unembedded int) {
	if m == nil {
		return
	}
	m.uploads.Inc()
	m.chunksEmbedded.WithLabelValues("present").Add(float64(embedded))
	m.chunksEmbedded.WithLabelValues("absent").Add(float64(unembedded))
}

func (m *Metrics) Retrieval(strategy string, d time.Duration) {
	if m == nil {
		return
	}
	m.retrievals.WithLabelValues(strategy).Inc()
	m.retrievalDuration.Observe(d.Seconds())
}

func (m *Metrics) Chat(outcome string) {
	if m == nil {
		return
	}
	m.chats.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ModelFailure(operation string) {
	if m == nil {
		return
	}
	m.modelFailures.WithLabelValues(operation).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
