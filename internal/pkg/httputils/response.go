// Package httputils provides HTTP utility functions shared by handlers.
package httputils

import (
	stderrors "errors"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/docqa/internal/pkg/rag/docutil"
	"github.com/kart-io/docqa/pkg/errors"
	"github.com/kart-io/docqa/pkg/utils/response"
	"github.com/kart-io/docqa/pkg/validator"
)

// WriteResponse writes the unified envelope: data on success, the mapped
// Errno otherwise.
func WriteResponse(c *gin.Context, err error, data any) {
	if err != nil {
		response.Fail(c, MapError(err))
		return
	}
	response.OK(c, data)
}

// MapError translates domain errors that do not carry an Errno.
func MapError(err error) error {
	var errno *errors.Errno
	if stderrors.As(err, &errno) {
		return err
	}

	var extractErr *docutil.ExtractionError
	switch {
	case stderrors.Is(err, docutil.ErrUnsupportedFormat):
		return errors.ErrUnsupportedFormat.WithMessage(err.Error())
	case stderrors.As(err, &extractErr):
		return errors.ErrExtraction.WithCause(err)
	default:
		return err
	}
}

// BindError wraps a request binding failure as an invalid request. Rule
// failures are reported with their field messages instead of the raw
// validator output.
func BindError(err error) error {
	v := validator.Global()
	if en := v.Translate(err, validator.LangEN); en != nil {
		return errors.ErrDocQAInvalidRequest.
			WithMessage(en.Error()).
			WithMessageZH(v.Translate(err, validator.LangZH).Error())
	}
	return errors.ErrDocQAInvalidRequest.WithMessage(err.Error())
}
