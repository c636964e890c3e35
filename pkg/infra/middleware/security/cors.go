// Package security provides the CORS middleware.
package security

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"

	mwopts "github.com/kart-io/docqa/pkg/options/middleware"
)

// CORSWithOptions adapts go-chi/cors to gin. Preflight requests are answered
// by the CORS handler and never reach the route.
func CORSWithOptions(opts mwopts.CORSOptions) gin.HandlerFunc {
	h := cors.New(cors.Options{
		AllowedOrigins:   opts.AllowOrigins,
		AllowedMethods:   opts.AllowMethods,
		AllowedHeaders:   opts.AllowHeaders,
		ExposedHeaders:   opts.ExposeHeaders,
		AllowCredentials: opts.AllowCredentials,
		MaxAge:           opts.MaxAge,
	})

	return func(c *gin.Context) {
		passed := false
		h.Handler(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			passed = true
			c.Request = r
			c.Next()
		})).ServeHTTP(c.Writer, c.Request)

		if !passed {
			c.Abort()
		}
	}
}
