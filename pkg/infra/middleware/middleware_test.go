package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/kart-io/docqa/pkg/infra/middleware/common"
	mwopts "github.com/kart-io/docqa/pkg/options/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRequestIDWithOptions(t *testing.T) {
	tests := []struct {
		name    string
		inbound string
	}{
		{name: "生成新ID", inbound: ""},
		{name: "沿用请求头ID", inbound: "req-123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(RequestIDWithOptions(*mwopts.NewRequestIDOptions()))

			var seen string
			r.GET("/ping", func(c *gin.Context) {
				seen = common.GetRequestID(c.Request.Context())
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			if tt.inbound != "" {
				req.Header.Set(common.HeaderXRequestID, tt.inbound)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.NotEmpty(t, seen)
			assert.Equal(t, seen, w.Header().Get(common.HeaderXRequestID))
			if tt.inbound != "" {
				assert.Equal(t, tt.inbound, seen)
			}
		})
	}
}

func TestChain(t *testing.T) {
	opts := mwopts.NewOptions()
	opts.Enable(mwopts.MiddlewareCORS)
	opts.Enable(mwopts.MiddlewareTimeout)

	chain := Chain(opts)
	assert.Len(t, chain, len(opts.Middleware))

	r := gin.New()
	r.Use(chain...)
	r.GET("/panic", func(_ *gin.Context) {
		panic("boom")
	})

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	req.Header.Set("Origin", "http://example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotEmpty(t, w.Header().Get(common.HeaderXRequestID))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Body.String(), w.Header().Get(common.HeaderXRequestID))
}
