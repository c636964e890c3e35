// Package response provides the unified API response envelope.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/docqa/pkg/errors"
	"github.com/kart-io/docqa/pkg/infra/middleware/common"
)

// Response is the unified API response structure.
type Response struct {
	// Code is the business error code (0 = success).
	Code int `json:"code"`

	// Message is a human-readable message.
	Message string `json:"message"`

	// Data contains the response payload (nil for errors).
	Data any `json:"data,omitempty"`

	// RequestID echoes the request identifier.
	RequestID string `json:"request_id,omitempty"`

	httpStatus int
}

// Success creates a successful response with data.
func Success(data any) *Response {
	return &Response{
		Code:       0,
		Message:    "success",
		Data:       data,
		httpStatus: http.StatusOK,
	}
}

// Err creates an error response from an Errno. A nil Errno is a success.
func Err(e *errors.Errno) *Response {
	if e == nil {
		return Success(nil)
	}
	return &Response{
		Code:       e.Code,
		Message:    e.MessageEN,
		httpStatus: e.HTTPStatus(),
	}
}

// HTTPStatus returns the HTTP status code for this response.
func (r *Response) HTTPStatus() int {
	if r.httpStatus == 0 {
		return http.StatusOK
	}
	return r.httpStatus
}

// OK writes a success envelope.
func OK(c *gin.Context, data any) {
	write(c, Success(data))
}

// Fail writes an error envelope. Errors other than *errors.Errno map to
// ErrInternal. The message follows the request's Accept-Language.
func Fail(c *gin.Context, err error) {
	e := errors.FromError(err)
	resp := Err(e)
	if e != nil {
		resp.Message = e.Message(c.GetHeader("Accept-Language"))
	}
	write(c, resp)
}

func write(c *gin.Context, resp *Response) {
	resp.RequestID = common.GetRequestID(c.Request.Context())
	c.AbortWithStatusJSON(resp.HTTPStatus(), resp)
}
