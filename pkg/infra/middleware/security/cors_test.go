package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	mwopts "github.com/kart-io/docqa/pkg/options/middleware"
)

func TestCORSWithOptions(t *testing.T) {
	gin.SetMode(gin.TestMode)

	opts := *mwopts.NewCORSOptions()
	opts.AllowOrigins = []string{"https://app.example.com"}
	opts.AllowCredentials = true

	tests := []struct {
		name       string
		method     string
		origin     string
		preflight  string
		wantCode   int
		wantOrigin string
	}{
		{name: "允许的来源", method: http.MethodPost, origin: "https://app.example.com", wantCode: http.StatusAccepted, wantOrigin: "https://app.example.com"},
		{name: "不允许的来源", method: http.MethodPost, origin: "https://evil.example.com", wantCode: http.StatusAccepted},
		{name: "预检请求不进入路由", method: http.MethodOptions, origin: "https://app.example.com", preflight: http.MethodPost, wantCode: http.StatusOK, wantOrigin: "https://app.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(CORSWithOptions(opts))
			r.Handle(tt.method, "/v1/chat", func(c *gin.Context) { c.Status(http.StatusAccepted) })

			req := httptest.NewRequest(tt.method, "/v1/chat", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.preflight != "" {
				req.Header.Set("Access-Control-Request-Method", tt.preflight)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			if tt.wantOrigin != "" {
				assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
			}
		})
	}
}
