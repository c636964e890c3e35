// Package handler 提供 docqa 的 HTTP 处理器。
package handler

import (
	"context"

	"github.com/kart-io/docqa/internal/docqa/biz"
	"github.com/kart-io/docqa/internal/docqa/metrics"
	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/internal/pkg/rag/docproc"
	"github.com/kart-io/docqa/pkg/infra/app"
	"github.com/kart-io/docqa/pkg/infra/pool"
	"github.com/kart-io/docqa/pkg/llm/resilience"
	obsmetrics "github.com/kart-io/docqa/pkg/observability/metrics"
)

// Chatter 对话能力。
type Chatter interface {
	Chat(ctx context.Context, req biz.ChatRequest) *biz.ChatResult
}

// Ingester 摄取能力。
type Ingester interface {
	Run(ctx context.Context, req biz.IngestionRequest) (*biz.IngestionResult, error)
}

// Processor 单文档处理能力。
type Processor interface {
	Process(ctx context.Context, data []byte, fileName string, opts docproc.ProcessOptions) (*model.DocumentResult, error)
}

// HealthCheck 依赖检查，返回 nil 表示可用。
type HealthCheck func(ctx context.Context) error

// Deps 处理器依赖。Chat 为 nil 时对话接口返回 503。
type Deps struct {
	Chat      Chatter
	Ingestion Ingester
	Processor Processor
	Ledger    store.Ledger
	Blobs     store.BlobStore
	Metrics   *metrics.Metrics
	Registry  *obsmetrics.Registry
	Checks    map[string]HealthCheck
	// Pools 的统计快照随 /v1/stats 一并返回。
	Pools []*pool.Pool
	// Breakers 模型调用熔断器，状态随 /v1/stats 返回。
	Breakers []*resilience.CircuitBreaker
	// DefaultFolderID 上传未指定文件夹时使用。
	DefaultFolderID string
	Build           app.BuildInfo
}

// Handler docqa HTTP 处理器。
type Handler struct {
	deps Deps
}

// New 创建处理器。
func New(deps Deps) *Handler {
	if deps.Registry == nil {
		deps.Registry = obsmetrics.DefaultRegistry
	}
	return &Handler{deps: deps}
}
