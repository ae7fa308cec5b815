package metrics

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"handbook-rag/internal/models"
	"handbook-rag/internal/rag"
)

const namespace = "handbook_rag"

const (
	OutcomeAnswered  = "answered"
	OutcomeNoResults = "no_results"
	OutcomeError     = "error"
)

// Recorder counts finished queries on its own registry
type Recorder struct {
	registry *prometheus.Registry
	queries  *prometheus.CounterVec
	latency  prometheus.Histogram
	sources  prometheus.Histogram
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Finished queries by outcome and error kind.",
		}, []string{"outcome", "kind"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "End to end query latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		}),
		sources: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_sources",
			Help:      "Number of sources returned per answered query.",
			Buckets:   prometheus.LinearBuckets(0, 1, 11),
		}),
	}
	r.registry.MustRegister(
		r.queries,
		r.latency,
		r.sources,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) Observe(_ context.Context, ev rag.Event) {
	r.latency.Observe(ev.Latency.Seconds())
	switch {
	case ev.Err != nil:
		r.queries.WithLabelValues(OutcomeError, errorKind(ev.Err)).Inc()
	case ev.NoResults:
		r.queries.WithLabelValues(OutcomeNoResults, "").Inc()
	default:
		r.queries.WithLabelValues(OutcomeAnswered, "").Inc()
		r.sources.Observe(float64(ev.SourcesCount))
	}
}

// Handler serves the registry in the prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, models.ErrRequestTimeout):
		return "timeout"
	case errors.Is(err, models.ErrValidation):
		return "validation"
	case errors.Is(err, models.ErrEmbeddingService):
		return "embedding"
	case errors.Is(err, models.ErrRetrievalService):
		return "retrieval"
	case errors.Is(err, models.ErrGenerationService):
		return "generation"
	default:
		return "other"
	}
}
