// Package router 注册 docqa 的 HTTP 路由。
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/docqa/handler"
	"github.com/kart-io/docqa/pkg/validator"
)

// Register 在 engine 上注册全部路由。
func Register(engine *gin.Engine, h *handler.Handler) {
	validator.InstallGin()

	engine.GET("/healthz", h.Healthz)
	engine.GET("/metrics", h.Metrics)
	engine.GET("/version", h.Version)

	v1 := engine.Group("/v1")
	{
		v1.POST("/chat", h.Chat)
		v1.POST("/ingestion/pipeline", h.RunPipeline)
		v1.POST("/ocr/process", h.ProcessDocument)
		v1.POST("/upload", h.Upload)
		v1.GET("/jobs/:id", h.GetJob)
		v1.GET("/jobs/:id/docs", h.ListJobDocs)
		v1.GET("/stats", h.Stats)
	}

	logger.Info("HTTP routes registered")
}
