package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/kart-io/docqa/pkg/infra/middleware/observability"
	"github.com/kart-io/docqa/pkg/infra/middleware/resilience"
	"github.com/kart-io/docqa/pkg/infra/middleware/security"
	mwopts "github.com/kart-io/docqa/pkg/options/middleware"
)

// Chain 按配置顺序构造中间件。未知名称在 Validate 阶段已被拒绝，这里直接忽略。
func Chain(opts *mwopts.Options) []gin.HandlerFunc {
	_ = opts.Complete()

	chain := make([]gin.HandlerFunc, 0, len(opts.Middleware))
	for _, name := range opts.Middleware {
		switch name {
		case mwopts.MiddlewareRecovery:
			chain = append(chain, resilience.RecoveryWithOptions(*opts.Recovery, nil))
		case mwopts.MiddlewareRequestID:
			chain = append(chain, RequestIDWithOptions(*opts.RequestID))
		case mwopts.MiddlewareLogger:
			chain = append(chain, observability.LoggerWithOptions(*opts.Logger))
		case mwopts.MiddlewareTracing:
			chain = append(chain, observability.Tracing(opts.Logger.PathMatcher))
		case mwopts.MiddlewareCORS:
			chain = append(chain, security.CORSWithOptions(*opts.CORS))
		case mwopts.MiddlewareBodyLimit:
			chain = append(chain, resilience.BodyLimitWithOptions(*opts.BodyLimit))
		case mwopts.MiddlewareTimeout:
			chain = append(chain, resilience.TimeoutWithOptions(*opts.Timeout))
		}
	}
	return chain
}
