// Package stream provides composable channel middleware for consuming the
// [duplexlink.ServiceResponse] Multiple variant: the finite stream of
// [duplexlink.Result] values a streaming call or handler produces.
//
// Grounded in filter/filter.go from the teacher repository (agentrun's
// channel-filtering middleware for agent message streams), generalized from
// agentrun.Message to the generic duplexlink.Result[R] stream item.
package stream

import (
	"context"

	"github.com/dmora/duplexlink"
)

// Filter returns a channel that only passes items accepted by keep. Errored
// items are always passed through unfiltered — a consumer must still see a
// stream's terminal error. Spawns a goroutine that exits when ctx is
// cancelled or ch is closed; the returned channel is closed when the
// goroutine exits.
func Filter[R any](ctx context.Context, ch <-chan duplexlink.Result[R], keep func(R) bool) <-chan duplexlink.Result[R] {
	return pipe(ctx, ch, func(r duplexlink.Result[R]) bool {
		return r.IsErr() || keep(r.Value)
	})
}

// Collect reads ch until it is closed, returning all successful values in
// order. On the first errored item it returns the values read so far with
// that item's ProtocolError and reads nothing further from ch — matching
// P3/P4's "until the first terminal event" stream-ordering guarantee. If
// ctx is cancelled first, it returns the values read so far with a
// CategoryInternal error.
func Collect[R any](ctx context.Context, ch <-chan duplexlink.Result[R]) ([]R, *duplexlink.ProtocolError) {
	var out []R
	for {
		select {
		case <-ctx.Done():
			return out, duplexlink.NewProtocolError(duplexlink.CategoryInternal, ctx.Err())
		case r, ok := <-ch:
			if !ok {
				return out, nil
			}
			if r.IsErr() {
				return out, r.Err
			}
			out = append(out, r.Value)
		}
	}
}

// pipe spawns a goroutine that reads from ch, passes items matching accept
// to the returned channel, and closes it when ch closes or ctx is
// cancelled. Callers must either drain the returned channel or cancel ctx
// to avoid goroutine leaks. Accepted items may be silently dropped if ctx
// is cancelled mid-send.
func pipe[R any](ctx context.Context, ch <-chan duplexlink.Result[R], accept func(duplexlink.Result[R]) bool) <-chan duplexlink.Result[R] {
	out := make(chan duplexlink.Result[R])
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case r, ok := <-ch:
				if !ok {
					return
				}
				if accept(r) && !trySend(ctx, out, r) {
					return
				}
			}
		}
	}()
	return out
}

// trySend sends r on out, returning true on success. Returns false if ctx
// is cancelled before the send completes.
func trySend[R any](ctx context.Context, out chan<- duplexlink.Result[R], r duplexlink.Result[R]) bool {
	select {
	case out <- r:
		return true
	case <-ctx.Done():
		return false
	}
}
