// Package logger 提供带请求上下文字段的日志器。
package logger

import (
	"context"

	"github.com/kart-io/logger"
	"github.com/kart-io/logger/core"
	"go.opentelemetry.io/otel/trace"

	"github.com/kart-io/docqa/pkg/infra/middleware/common"
)

type fieldsKey struct{}

// WithFields 在 ctx 上追加日志字段，之后 FromContext 返回的日志器都会带上。
func WithFields(ctx context.Context, keysAndValues ...any) context.Context {
	if len(keysAndValues) == 0 {
		return ctx
	}
	prev := fields(ctx)
	merged := make([]any, 0, len(prev)+len(keysAndValues))
	merged = append(merged, prev...)
	merged = append(merged, keysAndValues...)
	return context.WithValue(ctx, fieldsKey{}, merged)
}

func fields(ctx context.Context) []any {
	kv, _ := ctx.Value(fieldsKey{}).([]any)
	return kv
}

// FromContext 返回全局日志器，附带 request_id、trace_id 以及 WithFields 写入的字段。
func FromContext(ctx context.Context) core.Logger {
	var kv []any
	if id := common.GetRequestID(ctx); id != "" {
		kv = append(kv, "request_id", id)
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		kv = append(kv, "trace_id", sc.TraceID().String(), "span_id", sc.SpanID().String())
	}
	kv = append(kv, fields(ctx)...)

	if len(kv) == 0 {
		return logger.Global()
	}
	return logger.Global().With(kv...)
}
