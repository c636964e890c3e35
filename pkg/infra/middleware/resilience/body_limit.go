package resilience

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/pkg/errors"
	mwopts "github.com/kart-io/docqa/pkg/options/middleware"
	"github.com/kart-io/docqa/pkg/utils/response"
)

// BodyLimitWithOptions 返回请求体大小限制中间件。
// 上传路径使用 UploadMaxSize，其余使用 MaxSize；Content-Length 超限立即拒绝，
// 实际读取由 http.MaxBytesReader 限制。
func BodyLimitWithOptions(opts mwopts.BodyLimitOptions) gin.HandlerFunc {
	if opts.MaxSize <= 0 {
		opts.MaxSize = 1 << 20
	}
	if opts.UploadMaxSize <= 0 {
		opts.UploadMaxSize = opts.MaxSize
	}

	return func(c *gin.Context) {
		req := c.Request
		limit := opts.MaxSize
		if slices.Contains(opts.UploadPaths, req.URL.Path) {
			limit = opts.UploadMaxSize
		}

		if req.ContentLength > limit {
			logger.Warnw("request body too large",
				"path", req.URL.Path,
				"content_length", req.ContentLength,
				"max_size", limit,
			)
			response.Fail(c, errors.ErrRequestTooLarge)
			return
		}

		req.Body = http.MaxBytesReader(c.Writer, req.Body, limit)
		c.Next()
	}
}
