package observability

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/kart-io/docqa/pkg/infra/middleware/common"
	"github.com/kart-io/docqa/pkg/infra/tracing"
	mwopts "github.com/kart-io/docqa/pkg/options/middleware"
)

// Tracing 为每个请求创建服务端 span。
// 从请求头提取 W3C trace context，响应头回写 X-Trace-ID，
// 状态码 >= 400 标记为错误，>= 500 额外记录 error 事件。
func Tracing(skip mwopts.PathMatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := c.Request
		if common.MatchPath(req.URL.Path, skip.SkipPaths, skip.SkipPathPrefixes) {
			c.Next()
			return
		}

		ctx := otel.GetTextMapPropagator().Extract(req.Context(), propagation.HeaderCarrier(req.Header))

		route := c.FullPath()
		if route == "" {
			route = req.URL.Path
		}
		ctx, span := otel.Tracer(tracing.TracerName).Start(ctx,
			fmt.Sprintf("%s %s", req.Method, route),
			trace.WithSpanKind(trace.SpanKindServer),
		)
		defer span.End()

		attrs := []attribute.KeyValue{
			attribute.String("http.request.method", req.Method),
			attribute.String("http.route", route),
			attribute.String("url.path", req.URL.Path),
			attribute.String("server.address", req.Host),
		}
		if ua := req.UserAgent(); ua != "" {
			attrs = append(attrs, attribute.String("user_agent.original", ua))
		}
		if requestID := common.GetRequestID(ctx); requestID != "" {
			attrs = append(attrs, attribute.String("http.request_id", requestID))
		}
		span.SetAttributes(attrs...)

		if traceID := tracing.TraceIDFromContext(ctx); traceID != "" {
			c.Header(common.HeaderTraceID, traceID)
		}

		c.Request = req.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		if status >= http.StatusBadRequest {
			span.SetStatus(codes.Error, http.StatusText(status))
		} else {
			span.SetStatus(codes.Ok, "")
		}
		if status >= http.StatusInternalServerError {
			span.RecordError(fmt.Errorf("HTTP %d: %s", status, http.StatusText(status)))
		}
	}
}
