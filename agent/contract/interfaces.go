package contract

import "context"

// Handler answers one capability invocation. Failures are reported inside the
// result, never as an error.
type Handler interface {
	Answer(ctx context.Context, req HandlerRequest) HandlerResult
}

type Registry interface {
	Order() Handler
	Voucher() Handler
	ProductDetail() Handler
	Retrieval() Handler
}
