package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/kart-io/docqa/internal/docqa/biz"
	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/internal/pkg/httputils"
)

// RunPipeline 处理 POST /v1/ingestion/pipeline，同步执行一次摄取。
func (h *Handler) RunPipeline(c *gin.Context) {
	var req biz.IngestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputils.WriteResponse(c, httputils.BindError(err), nil)
		return
	}

	res, err := h.deps.Ingestion.Run(c.Request.Context(), req)
	httputils.WriteResponse(c, err, res)
}

// GetJob 处理 GET /v1/jobs/:id。
func (h *Handler) GetJob(c *gin.Context) {
	job, err := h.deps.Ledger.GetJob(c.Request.Context(), c.Param("id"))
	httputils.WriteResponse(c, err, job)
}

// JobDocs 任务下的文档列表。
type JobDocs struct {
	JobID string       `json:"job_id"`
	Total int          `json:"total"`
	Docs  []*model.Doc `json:"docs"`
}

// ListJobDocs 处理 GET /v1/jobs/:id/docs。任务不存在时返回 404。
func (h *Handler) ListJobDocs(c *gin.Context) {
	ctx := c.Request.Context()
	jobID := c.Param("id")

	if _, err := h.deps.Ledger.GetJob(ctx, jobID); err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	docs, err := h.deps.Ledger.ListDocs(ctx, jobID)
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	if docs == nil {
		docs = []*model.Doc{}
	}
	httputils.WriteResponse(c, nil, JobDocs{JobID: jobID, Total: len(docs), Docs: docs})
}
