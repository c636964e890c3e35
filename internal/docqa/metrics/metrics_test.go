package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kart-io/docqa/pkg/observability/metrics"
)

func TestMetricsStats(t *testing.T) {
	reg := metrics.NewRegistry()
	m := New(reg)

	m.RecordChat("qna")
	m.RecordChat("qna")
	m.RecordChat("summarize")
	m.RecordRetrievalError()
	m.RecordGenerationError()
	m.RecordRouterFallback()
	done := m.StartIngestion()
	m.RecordDocument(12, nil)
	m.RecordDocument(0, errors.New("corrupt"))
	m.RecordEmbedding(12, nil)
	m.RecordEmbedding(0, errors.New("quota"))

	stats := m.Stats()
	chat := stats["chat"].(map[string]any)
	assert.Equal(t, 2.0, chat["qna"])
	assert.Equal(t, 1.0, chat["summarize"])
	assert.Equal(t, 1.0, chat["retrieval_errors"])

	ingestion := stats["ingestion"].(map[string]any)
	assert.Equal(t, 1.0, ingestion["runs"])
	assert.Equal(t, 1.0, ingestion["in_flight"])
	done()
	assert.Equal(t, 0.0, m.Stats()["ingestion"].(map[string]any)["in_flight"])
	assert.Equal(t, 1.0, ingestion["documents_processed"])
	assert.Equal(t, 1.0, ingestion["documents_failed"])
	assert.Equal(t, 12.0, ingestion["chunks_emitted"])
	assert.Equal(t, 12.0, ingestion["embeddings_stored"])
	assert.Equal(t, 1.0, ingestion["embedding_failures"])
}

func TestMetricsExport(t *testing.T) {
	reg := metrics.NewRegistry()
	m := New(reg)
	m.RecordChat("summarize")
	m.ObserveChat(time.Now().Add(-2 * time.Second))

	out := reg.Export()
	assert.True(t, strings.Contains(out, `docqa_chat_requests_total{route="summarize"} 1.000000`), out)
	assert.Contains(t, out, "# TYPE docqa_chunks_emitted_total counter")
	assert.Contains(t, out, `docqa_chat_duration_seconds_bucket{le="2.5"} 1`)
	assert.Contains(t, out, "docqa_ingestion_runs_in_flight 0.000000")
}
