// Package observability provides access logging and tracing middleware.
package observability

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/pkg/infra/middleware/common"
	"github.com/kart-io/docqa/pkg/infra/tracing"
	mwopts "github.com/kart-io/docqa/pkg/options/middleware"
)

// LoggerWithOptions 返回访问日志中间件。5xx 记为 Error，4xx 记为 Warn。
func LoggerWithOptions(opts mwopts.LoggerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := c.Request
		if common.MatchPath(req.URL.Path, opts.SkipPaths, opts.SkipPathPrefixes) {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		ctx := c.Request.Context()
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", c.Writer.Status(),
			"remote_addr", c.ClientIP(),
			"latency", latency.String(),
			"latency_ms", latency.Milliseconds(),
			"request_id", common.GetRequestID(ctx),
		}
		if traceID := tracing.TraceIDFromContext(ctx); traceID != "" {
			fields = append(fields, "trace_id", traceID)
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			logger.Errorw("HTTP Request", fields...)
		case status >= 400:
			logger.Warnw("HTTP Request", fields...)
		default:
			logger.Infow("HTTP Request", fields...)
		}
	}
}
