package common

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestIDContext(t *testing.T) {
	assert.Equal(t, "", GetRequestID(context.Background()))

	ctx := WithRequestID(context.Background(), "abc")
	assert.Equal(t, "abc", GetRequestID(ctx))
}

func TestGenerateRequestID(t *testing.T) {
	a, b := GenerateRequestID(), GenerateRequestID()
	assert.Len(t, a, 26)
	assert.NotEqual(t, a, b)
}

func TestMatchPath(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		exact    []string
		prefixes []string
		want     bool
	}{
		{name: "精确匹配", path: "/healthz", exact: []string{"/healthz"}, want: true},
		{name: "前缀匹配", path: "/v1/jobs/1", prefixes: []string{"/v1/jobs"}, want: true},
		{name: "不匹配", path: "/v1/chat", exact: []string{"/healthz"}, prefixes: []string{"/v1/jobs"}, want: false},
		{name: "空配置", path: "/v1/chat", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchPath(tt.path, tt.exact, tt.prefixes))
		})
	}
}
