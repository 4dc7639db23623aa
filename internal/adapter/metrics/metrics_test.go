package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.Upload(3, 1)
	m.Retrieval("vector", 5*time.Millisecond)
	m.Retrieval("lexical", time.Millisecond)
	m.Chat("ok")
	m.ModelFailure("chat")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.uploads))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.chunksEmbedded.WithLabelValues("present")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.chunksEmbedded.WithLabelValues("absent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retrievals.WithLabelValues("vector")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.modelFailures.WithLabelValues("chat")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.Upload(1, 1)
	m.Retrieval("vector", time.Second)
	m.Chat("ok")
	m.ModelFailure("chat")
	assert.Nil(t, m.Registry())
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Chat("ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `studyrag_chat_requests_total{outcome="ok"} 1`)
}
