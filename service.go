package duplexlink

import "context"

// Result is one item of a streaming [ServiceResponse]: either a value or a
// [ProtocolError], never both.
type Result[R any] struct {
	Value R
	Err   *ProtocolError
}

// Ok wraps a successful stream item.
func Ok[R any](v R) Result[R] { return Result[R]{Value: v} }

// Errored wraps a failed stream item.
func Errored[R any](err *ProtocolError) Result[R] { return Result[R]{Err: err} }

// IsErr reports whether r carries an error.
func (r Result[R]) IsErr() bool { return r.Err != nil }

// ServiceResponse is the sum type spec §3 calls ServiceResponse<R>: either a
// single value, or a finite stream of [Result] values delivered on a
// channel. Exactly one of the two forms is populated; use [ServiceResponse.Single]
// or [ServiceResponse.Stream] to inspect which.
type ServiceResponse[R any] struct {
	single  R
	isSingle bool
	stream  <-chan Result[R]
}

// Single wraps a terminal single-response value.
func Single[R any](v R) ServiceResponse[R] {
	return ServiceResponse[R]{single: v, isSingle: true}
}

// Multiple wraps a finite stream of response items. The channel must be
// closed by its producer when the stream ends.
func Multiple[R any](stream <-chan Result[R]) ServiceResponse[R] {
	return ServiceResponse[R]{stream: stream}
}

// Single returns the wrapped value and true if sr is a Single response.
func (sr ServiceResponse[R]) Single() (R, bool) {
	return sr.single, sr.isSingle
}

// Stream returns the wrapped channel and true if sr is a Multiple response.
func (sr ServiceResponse[R]) Stream() (<-chan Result[R], bool) {
	return sr.stream, !sr.isSingle
}

// Handler is the user-supplied dispatch function both transports invoke
// once a wire request has been converted into a Req value. A non-nil error
// is coerced to a ProtocolError via [AsProtocolError] before it is written
// back to the peer.
type Handler[Req, Resp any] func(ctx context.Context, req Req) (ServiceResponse[Resp], error)
