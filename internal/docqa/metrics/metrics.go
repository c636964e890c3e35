// Package metrics 提供 docqa 服务的业务指标收集。
package metrics

import (
	"time"

	"github.com/kart-io/docqa/pkg/observability/metrics"
)

const namespace = "docqa"

// Metrics docqa 业务指标。所有方法可并发调用。
type Metrics struct {
	chatRequests     metrics.CounterVec
	retrievalErrors  metrics.Counter
	generationErrors metrics.Counter
	routerFallbacks  metrics.Counter
	chatLatency      metrics.Histogram

	documentsProcessed metrics.Counter
	documentsFailed    metrics.Counter
	chunksEmitted      metrics.Counter
	embeddingsStored   metrics.Counter
	embeddingFailures  metrics.Counter
	ingestionRuns      metrics.Counter
	ingestionsInFlight metrics.Gauge

	startTime time.Time
}

// New 创建指标并注册到 reg；reg 为 nil 时使用默认注册表。
func New(reg *metrics.Registry) *Metrics {
	if reg == nil {
		reg = metrics.DefaultRegistry
	}

	m := &Metrics{
		chatRequests:       metrics.NewCounterVec(namespace+"_chat_requests_total", "Chat requests by route."),
		retrievalErrors:    metrics.NewCounter(namespace+"_retrieval_errors_total", "Retrieval failures degraded to an empty context."),
		generationErrors:   metrics.NewCounter(namespace+"_generation_errors_total", "Generation failures replaced by an apology."),
		routerFallbacks:    metrics.NewCounter(namespace+"_router_fallbacks_total", "Routing decisions that fell back to question answering."),
		chatLatency:        metrics.NewHistogram(namespace+"_chat_duration_seconds", "End-to-end chat latency.", nil),
		documentsProcessed: metrics.NewCounter(namespace+"_documents_processed_total", "Documents processed by ingestion."),
		documentsFailed:    metrics.NewCounter(namespace+"_documents_failed_total", "Documents that failed ingestion."),
		chunksEmitted:      metrics.NewCounter(namespace+"_chunks_emitted_total", "Chunks emitted by document processing."),
		embeddingsStored:   metrics.NewCounter(namespace+"_embeddings_stored_total", "Vectors written to the index."),
		embeddingFailures:  metrics.NewCounter(namespace+"_embedding_failures_total", "Documents whose embedding step failed."),
		ingestionRuns:      metrics.NewCounter(namespace+"_ingestion_runs_total", "Ingestion pipeline runs."),
		ingestionsInFlight: metrics.NewGauge(namespace+"_ingestion_runs_in_flight", "Ingestion pipeline runs in progress."),
		startTime:          time.Now(),
	}

	reg.Register(
		m.chatRequests, m.retrievalErrors, m.generationErrors, m.routerFallbacks, m.chatLatency,
		m.documentsProcessed, m.documentsFailed, m.chunksEmitted,
		m.embeddingsStored, m.embeddingFailures, m.ingestionRuns, m.ingestionsInFlight,
	)
	return m
}

// RecordChat 记录一次对话请求，route 为 qna 或 summarize。
func (m *Metrics) RecordChat(route string) {
	m.chatRequests.With(map[string]string{"route": route}).Inc()
}

// RecordRetrievalError 记录一次检索降级。
func (m *Metrics) RecordRetrievalError() {
	m.retrievalErrors.Inc()
}

// RecordGenerationError 记录一次生成失败。
func (m *Metrics) RecordGenerationError() {
	m.generationErrors.Inc()
}

// RecordRouterFallback 记录一次路由回退。
func (m *Metrics) RecordRouterFallback() {
	m.routerFallbacks.Inc()
}

// ObserveChat 记录从 start 起的对话耗时。
func (m *Metrics) ObserveChat(start time.Time) {
	m.chatLatency.Observe(time.Since(start).Seconds())
}

// StartIngestion 记录一次摄取任务开始，返回的函数在任务结束时调用。
func (m *Metrics) StartIngestion() (done func()) {
	m.ingestionRuns.Inc()
	m.ingestionsInFlight.Inc()
	return m.ingestionsInFlight.Dec
}

// RecordDocument 记录单个文档的处理结果。
func (m *Metrics) RecordDocument(chunks int, err error) {
	if err != nil {
		m.documentsFailed.Inc()
		return
	}
	m.documentsProcessed.Inc()
	m.chunksEmitted.Add(float64(chunks))
}

// RecordEmbedding 记录向量写入结果。
func (m *Metrics) RecordEmbedding(stored int, err error) {
	if err != nil {
		m.embeddingFailures.Inc()
		return
	}
	m.embeddingsStored.Add(float64(stored))
}

// Stats 返回当前统计信息，供 /v1/stats 使用。
func (m *Metrics) Stats() map[string]any {
	return map[string]any{
		"chat": map[string]any{
			"qna":               m.chatRequests.With(map[string]string{"route": "qna"}).Get(),
			"summarize":         m.chatRequests.With(map[string]string{"route": "summarize"}).Get(),
			"retrieval_errors":  m.retrievalErrors.Get(),
			"generation_errors": m.generationErrors.Get(),
			"router_fallbacks":  m.routerFallbacks.Get(),
			"completed":         m.chatLatency.Count(),
		},
		"ingestion": map[string]any{
			"runs":                m.ingestionRuns.Get(),
			"in_flight":           m.ingestionsInFlight.Get(),
			"documents_processed": m.documentsProcessed.Get(),
			"documents_failed":    m.documentsFailed.Get(),
			"chunks_emitted":      m.chunksEmitted.Get(),
			"embeddings_stored":   m.embeddingsStored.Get(),
			"embedding_failures":  m.embeddingFailures.Get(),
		},
		"uptime_seconds": time.Since(m.startTime).Seconds(),
	}
}
