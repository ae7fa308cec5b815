package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"handbook-rag/internal/models"
	"handbook-rag/internal/rag"
)

func TestRecorder(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder()

	r.Observe(ctx, rag.Event{SourcesCount: 5, Latency: time.Second})
	r.Observe(ctx, rag.Event{SourcesCount: 3, Latency: 2 * time.Second})
	r.Observe(ctx, rag.Event{NoResults: true, Latency: 300 * time.Millisecond})
	r.Observe(ctx, rag.Event{Err: models.Validationf("Question cannot be empty")})
	r.Observe(ctx, rag.Event{Err: fmt.Errorf("%w: %w", models.ErrRequestTimeout, models.NewGenerationError("", "timeout", context.DeadlineExceeded))})
	r.Observe(ctx, rag.Event{Err: models.NewEmbeddingError("401", "invalid_api_key", nil)})

	assert.InDelta(t, 2, testutil.ToFloat64(r.queries.WithLabelValues(OutcomeAnswered, "")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.queries.WithLabelValues(OutcomeNoResults, "")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.queries.WithLabelValues(OutcomeError, "validation")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.queries.WithLabelValues(OutcomeError, "timeout")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.queries.WithLabelValues(OutcomeError, "embedding")), 0)
	assert.Equal(t, 5, testutil.CollectAndCount(r.queries))
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "retrieval", errorKind(models.NewRetrievalError("", "", nil)))
	assert.Equal(t, "generation", errorKind(models.NewGenerationError("", "", nil)))
	assert.Equal(t, "other", errorKind(errors.New("x")))
}

func TestHandler(t *testing.T) {
	r := NewRecorder()
	r.Observe(context.Background(), rag.Event{SourcesCount: 1})

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `handbook_rag_queries_total{kind="",outcome="answered"} 1`)
	assert.Contains(t, string(body), "handbook_rag_query_duration_seconds_bucket")
}
