package resilience

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/pkg/infra/middleware/common"
	mwopts "github.com/kart-io/docqa/pkg/options/middleware"
)

// TimeoutWithOptions 为请求上下文设置截止时间。处理器通过 ctx 感知超时；
// 超时后尚未写出响应时由处理器返回的错误决定响应内容。
func TimeoutWithOptions(opts mwopts.TimeoutOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		if common.MatchPath(c.Request.URL.Path, opts.SkipPaths, opts.SkipPathPrefixes) {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), opts.Timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			logger.Warnw("request exceeded timeout",
				"path", c.Request.URL.Path,
				"timeout", opts.Timeout.String(),
				"request_id", common.GetRequestID(ctx),
			)
		}
	}
}
