package specialist

import (
	"context"
	"errors"
	"net/http"

	contractx "github.com/tanpawarit/Chative-Ecom-Support/agent/contract"
	statex "github.com/tanpawarit/Chative-Ecom-Support/agent/state"
	"github.com/tanpawarit/Chative-Ecom-Support/agent/tool"
	"github.com/tanpawarit/Chative-Ecom-Support/pkg/backend"
)

// Localized apologies returned with a failed handler result.
const (
	ApologyOrder         = "Tôi gặp lỗi khi tra cứu đơn hàng, vui lòng thử lại."
	ApologyVoucher       = "Tôi gặp lỗi khi tra cứu voucher, vui lòng thử lại."
	ApologyProductDetail = "Tôi gặp lỗi khi lấy chi tiết sản phẩm, vui lòng thử lại."
	ApologyRetrieval     = "Tôi gặp lỗi khi phân tích dữ liệu, vui lòng thử lại."
)

// classify maps a handler failure to its error kind.
func classify(err error) contractx.ErrorKind {
	var (
		statusErr   *backend.HTTPStatusError
		envelopeErr *backend.EnvelopeError
	)
	switch {
	case errors.Is(err, tool.ErrProductNotFound):
		return contractx.ErrorNotFound
	case errors.As(err, &statusErr):
		if statusErr.StatusCode == http.StatusNotFound {
			return contractx.ErrorNotFound
		}
		return contractx.ErrorUpstreamHTTP
	case errors.As(err, &envelopeErr):
		return contractx.ErrorUpstreamEnvelope
	case errors.Is(err, backend.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return contractx.ErrorTimeout
	case errors.Is(err, backend.ErrMalformed), errors.Is(err, contractx.ErrSchemaViolation):
		return contractx.ErrorMalformed
	case errors.Is(err, contractx.ErrUnauthorized):
		return contractx.ErrorUnauthorized
	case errors.Is(err, contractx.ErrValidation), errors.Is(err, statex.ErrInvalidKey):
		return contractx.ErrorValidation
	case errors.Is(err, contractx.ErrNoResponse):
		return contractx.ErrorNoResponse
	default:
		return contractx.ErrorModel
	}
}
