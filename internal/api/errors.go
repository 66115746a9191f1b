package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/fakewebcam/internal/vb2"
)

// toHTTPError maps device and queue errors onto HTTP statuses.
func toHTTPError(msg string, err error) error {
	var qerr *vb2.Error
	if errors.As(err, &qerr) {
		switch qerr.Code {
		case vb2.ErrCodeInvalidArgument:
			return huma.Error400BadRequest(msg, err)
		case vb2.ErrCodeBusy:
			return huma.Error409Conflict(msg, err)
		case vb2.ErrCodeWouldBlock, vb2.ErrCodeNoDevice, vb2.ErrCodeResourceExhausted:
			return huma.Error503ServiceUnavailable(msg, err)
		case vb2.ErrCodeNotSupported:
			return huma.Error501NotImplemented(msg, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return huma.Error504GatewayTimeout(msg, err)
	}
	return huma.Error500InternalServerError(msg, err)
}
