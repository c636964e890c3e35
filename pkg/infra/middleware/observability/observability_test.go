package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/kart-io/docqa/pkg/infra/middleware/common"
	mwopts "github.com/kart-io/docqa/pkg/options/middleware"
)

func TestTracing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))

	r := gin.New()
	r.Use(Tracing(mwopts.PathMatcher{SkipPaths: []string{"/healthz"}}))
	r.GET("/v1/jobs/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/jobs/42", nil))
	assert.NotEmpty(t, w.Header().Get(common.HeaderTraceID))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Empty(t, w.Header().Get(common.HeaderTraceID))

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "GET /v1/jobs/:id", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
}

func TestLoggerWithOptions(t *testing.T) {
	gin.SetMode(gin.TestMode)

	called := 0
	r := gin.New()
	r.Use(LoggerWithOptions(*mwopts.NewLoggerOptions()))
	r.GET("/healthz", func(c *gin.Context) { called++; c.Status(http.StatusOK) })
	r.GET("/v1/stats", func(c *gin.Context) { called++; c.Status(http.StatusInternalServerError) })

	for _, path := range []string{"/healthz", "/v1/stats"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}
	assert.Equal(t, 2, called)
}
