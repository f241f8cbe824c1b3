package conformance

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dmora/duplexlink"
)

// Client is the minimal surface RunServiceTests needs from a transport's
// generated client: both stdio.Client and httptransport.Client satisfy it
// without modification.
type Client[Req, Resp any] interface {
	Call(ctx context.Context, req Req) (duplexlink.ServiceResponse[Resp], error)
}

// Request is the canonical conformance request: Mode selects which of
// [Handler]'s behaviors to exercise.
type Request struct {
	// Mode is one of "echo" (default), "stream", "fail", or "hang".
	Mode string

	// Echo is returned verbatim by the "echo" mode.
	Echo string

	// Items is emitted, in order, as successive stream values by the
	// "stream" mode.
	Items []string

	// Category names the ErrorCategory the "fail" mode returns, by its
	// wire name (e.g. "not_found").
	Category string
}

// Response is the canonical conformance response.
type Response struct {
	Echo string
}

var categoryByWireName = map[string]duplexlink.ErrorCategory{
	duplexlink.CategoryNotFound.String():         duplexlink.CategoryNotFound,
	duplexlink.CategoryMethodNotAllowed.String(): duplexlink.CategoryMethodNotAllowed,
	duplexlink.CategoryBadRequest.String():       duplexlink.CategoryBadRequest,
	duplexlink.CategoryUnauthorized.String():     duplexlink.CategoryUnauthorized,
	duplexlink.CategoryInternal.String():         duplexlink.CategoryInternal,
}

// Handler is the single canonical service definition every transport-under-
// test's server wires up; the subtests in RunServiceTests all dispatch
// through it via a factory-supplied Client.
func Handler(ctx context.Context, req Request) (duplexlink.ServiceResponse[Response], error) {
	switch req.Mode {
	case "stream":
		ch := make(chan duplexlink.Result[Response], len(req.Items))
		for _, item := range req.Items {
			ch <- duplexlink.Ok(Response{Echo: item})
		}
		close(ch)
		return duplexlink.Multiple[Response](ch), nil
	case "fail":
		category, ok := categoryByWireName[req.Category]
		if !ok {
			category = duplexlink.CategoryInternal
		}
		return duplexlink.ServiceResponse[Response]{}, duplexlink.Errorf(category, "synthetic failure: %s", req.Category)
	case "hang":
		<-ctx.Done()
		return duplexlink.ServiceResponse[Response]{}, ctx.Err()
	default:
		return duplexlink.Single(Response{Echo: req.Echo}), nil
	}
}

// Factory builds a Client wired, over the transport under test, to a server
// dispatching to [Handler]. The returned teardown func releases any
// resources the factory allocated (subprocess, listener, ...). The client's
// own configured call timeout must be short (a few hundred milliseconds is
// typical) for the Timeout subtest to complete promptly.
type Factory func(t *testing.T) (client Client[Request, Response], teardown func())

// Config parameterises RunServiceTests over a transport under test.
type Config struct {
	Factory Factory

	// ExpectedCategory maps the category a "fail" request was tagged with to
	// the category the transport under test is expected to reconstruct.
	// nil means the identity mapping (the transport carries all five
	// categories losslessly). A lossy transport (spec §6) supplies the
	// collapse its wire format actually performs.
	ExpectedCategory func(duplexlink.ErrorCategory) duplexlink.ErrorCategory
}

// RunServiceTests exercises P2-P6 and P9 (spec §8) against cfg.Factory. Properties
// specific to one transport (P1 id monotonicity on stdio; P7/P8 auth and
// routing on HTTP) belong in that transport's own package tests instead —
// this suite covers only what both transports share.
func RunServiceTests(t *testing.T, cfg Config) {
	t.Run("Correlation", func(t *testing.T) { testCorrelation(t, cfg.Factory) })
	t.Run("StreamOrdering", func(t *testing.T) { testStreamOrdering(t, cfg.Factory) })
	t.Run("CategoryRoundTrip", func(t *testing.T) { testCategoryRoundTrip(t, cfg) })
	t.Run("Timeout", func(t *testing.T) { testTimeout(t, cfg.Factory) })
}

// testCorrelation exercises P2 (correlation) and P5 (at-most-once single
// delivery): N concurrent calls, each carrying a distinct echo payload, must
// each receive exactly its own response.
func testCorrelation(t *testing.T, factory Factory) {
	client, teardown := factory(t)
	defer teardown()

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			want := fmt.Sprintf("payload-%d", i)
			resp, err := client.Call(context.Background(), Request{Echo: want})
			if err != nil {
				errs[i] = err
				return
			}
			got, ok := resp.Single()
			if !ok {
				errs[i] = fmt.Errorf("response was not Single")
				return
			}
			if got.Echo != want {
				errs[i] = fmt.Errorf("got echo %q, want %q", got.Echo, want)
			}
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Errorf("call %d: %v", i, err)
		}
	}
}

// testStreamOrdering exercises P3 (stream ordering) and P4 (stream
// termination): the consumer must see the handler's items in order,
// followed by channel close.
func testStreamOrdering(t *testing.T, factory Factory) {
	client, teardown := factory(t)
	defer teardown()

	want := []string{"a", "b", "c", "d"}
	resp, err := client.Call(context.Background(), Request{Mode: "stream", Items: want})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	ch, ok := resp.Stream()
	if !ok {
		t.Fatal("response was not Multiple")
	}
	var got []string
	for r := range ch {
		if r.IsErr() {
			t.Fatalf("unexpected stream error: %v", r.Err)
		}
		got = append(got, r.Value.Echo)
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

// testCategoryRoundTrip exercises P6: for each of the five categories, a
// handler error tagged with category C must be reconstructed by the client as
// cfg.ExpectedCategory(C) (C itself when ExpectedCategory is nil).
func testCategoryRoundTrip(t *testing.T, cfg Config) {
	client, teardown := cfg.Factory(t)
	defer teardown()

	expect := cfg.ExpectedCategory
	if expect == nil {
		expect = func(c duplexlink.ErrorCategory) duplexlink.ErrorCategory { return c }
	}

	categories := []duplexlink.ErrorCategory{
		duplexlink.CategoryNotFound,
		duplexlink.CategoryMethodNotAllowed,
		duplexlink.CategoryBadRequest,
		duplexlink.CategoryUnauthorized,
		duplexlink.CategoryInternal,
	}
	for _, category := range categories {
		_, err := client.Call(context.Background(), Request{Mode: "fail", Category: category.String()})
		if err == nil {
			t.Errorf("category %s: expected an error", category)
			continue
		}
		want := expect(category)
		pe := duplexlink.AsProtocolError(err)
		if pe.Category != want {
			t.Errorf("category %s: got %s, want %s", category, pe.Category, want)
		}
	}
}

// testTimeout exercises P9: a call whose handler never responds completes
// with an Internal error within the client's configured timeout, and the
// same client continues to function for a subsequent ordinary call.
func testTimeout(t *testing.T, factory Factory) {
	client, teardown := factory(t)
	defer teardown()

	start := time.Now()
	_, err := client.Call(context.Background(), Request{Mode: "hang"})
	if err == nil {
		t.Fatal("expected the hanging call to fail")
	}
	if pe := duplexlink.AsProtocolError(err); pe.Category != duplexlink.CategoryInternal {
		t.Errorf("hanging call: got category %s, want %s", pe.Category, duplexlink.CategoryInternal)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("hanging call took %s, want it bounded by the client's own timeout", elapsed)
	}

	resp, err := client.Call(context.Background(), Request{Echo: "still alive"})
	if err != nil {
		t.Fatalf("call after timeout: %v", err)
	}
	if got, ok := resp.Single(); !ok || got.Echo != "still alive" {
		t.Errorf("call after timeout: got %+v, ok=%v", got, ok)
	}
}
