// Package middleware provides the request id middleware and assembles the
// configured gin middleware chain.
package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/kart-io/docqa/pkg/infra/middleware/common"
	mwopts "github.com/kart-io/docqa/pkg/options/middleware"
)

// RequestIDWithOptions returns a middleware that reuses the inbound request id
// header or generates one, echoes it in the response and stores it in the
// request context.
func RequestIDWithOptions(opts mwopts.RequestIDOptions) gin.HandlerFunc {
	header := opts.Header
	if header == "" {
		header = common.HeaderXRequestID
	}

	return func(c *gin.Context) {
		requestID := c.GetHeader(header)
		if requestID == "" {
			requestID = common.GenerateRequestID()
		}
		c.Header(header, requestID)
		c.Request = c.Request.WithContext(common.WithRequestID(c.Request.Context(), requestID))
		c.Next()
	}
}

// GetRequestID returns the request id stored in the context.
var GetRequestID = common.GetRequestID
