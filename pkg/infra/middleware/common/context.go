// Package common 存放各中间件子包共用的请求头与上下文工具。
package common

import (
	"context"
	"slices"
	"strings"

	"github.com/oklog/ulid/v2"
)

// 响应头。
const (
	HeaderXRequestID = "X-Request-ID"
	HeaderTraceID    = "X-Trace-ID"
)

type requestIDKey struct{}

// GetRequestID 取出请求 ID，不存在时返回空串。
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// WithRequestID 将请求 ID 写入 ctx，日志与错误响应据此关联请求。
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// GenerateRequestID 生成 ULID，按时间有序。
func GenerateRequestID() string {
	return ulid.Make().String()
}

// MatchPath path 完全等于 exact 中某项或以 prefixes 中某项开头时返回 true。
func MatchPath(path string, exact, prefixes []string) bool {
	return slices.Contains(exact, path) || slices.ContainsFunc(prefixes, func(p string) bool {
		return strings.HasPrefix(path, p)
	})
}
