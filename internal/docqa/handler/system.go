package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/docqa/internal/pkg/httputils"
	"github.com/kart-io/docqa/pkg/infra/pool"
	"github.com/kart-io/docqa/pkg/llm/resilience"
	"github.com/kart-io/docqa/pkg/utils/response"
)

// HealthStatus 健康检查结果。
type HealthStatus struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// Healthz 处理 GET /healthz。任一依赖不可用时返回 503 且 status 为 degraded。
func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.deps.Checks))
	for name := range h.deps.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := HealthStatus{Status: "healthy", Version: h.deps.Build.GitVersion}
	if len(names) > 0 {
		status.Dependencies = make(map[string]string, len(names))
	}
	for _, name := range names {
		if err := h.deps.Checks[name](ctx); err != nil {
			status.Dependencies[name] = "unavailable: " + err.Error()
			status.Status = "degraded"
			continue
		}
		status.Dependencies[name] = "available"
	}

	resp := response.Success(status)
	if status.Status != "healthy" {
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Stats 处理 GET /v1/stats。
func (h *Handler) Stats(c *gin.Context) {
	stats := h.deps.Metrics.Stats()
	if len(h.deps.Pools) > 0 {
		pools := make([]pool.Stats, 0, len(h.deps.Pools))
		for _, p := range h.deps.Pools {
			pools = append(pools, p.Stats())
		}
		stats["pools"] = pools
	}
	if len(h.deps.Breakers) > 0 {
		breakers := make([]resilience.Stats, 0, len(h.deps.Breakers))
		for _, cb := range h.deps.Breakers {
			breakers = append(breakers, cb.Stats())
		}
		stats["circuit_breakers"] = breakers
	}
	httputils.WriteResponse(c, nil, stats)
}

// Version 处理 GET /version。
func (h *Handler) Version(c *gin.Context) {
	c.JSON(http.StatusOK, h.deps.Build)
}

// Metrics 处理 GET /metrics，输出 Prometheus 文本格式。
func (h *Handler) Metrics(c *gin.Context) {
	c.Data(http.StatusOK, "text/plain; version=0.0.4; charset=utf-8", []byte(h.deps.Registry.Export()))
}
