package stream

import (
	"context"
	"testing"

	"github.com/dmora/duplexlink"
)

func fill(ch chan<- duplexlink.Result[string], items ...duplexlink.Result[string]) {
	for _, it := range items {
		ch <- it
	}
	close(ch)
}

func TestFilter_PassesAcceptedAndErrors(t *testing.T) {
	ctx := context.Background()
	in := make(chan duplexlink.Result[string], 4)
	go fill(in,
		duplexlink.Ok("H"),
		duplexlink.Ok("skip"),
		duplexlink.Ok("i"),
		duplexlink.Errored[string](duplexlink.NewProtocolError(duplexlink.CategoryInternal, nil)),
	)

	out := Filter(ctx, in, func(v string) bool { return v != "skip" })
	var got []string
	var sawErr bool
	for r := range out {
		if r.IsErr() {
			sawErr = true
			continue
		}
		got = append(got, r.Value)
	}
	if len(got) != 2 || got[0] != "H" || got[1] != "i" {
		t.Errorf("got = %v, want [H i]", got)
	}
	if !sawErr {
		t.Error("expected the terminal error to pass through Filter")
	}
}

func TestCollect_StopsAtFirstError(t *testing.T) {
	ctx := context.Background()
	in := make(chan duplexlink.Result[string], 4)
	wantErr := duplexlink.NewProtocolError(duplexlink.CategoryBadRequest, nil)
	go fill(in, duplexlink.Ok("H"), duplexlink.Ok("i"), duplexlink.Errored[string](wantErr), duplexlink.Ok("never"))

	vals, err := Collect(ctx, in)
	if len(vals) != 2 || vals[0] != "H" || vals[1] != "i" {
		t.Errorf("vals = %v, want [H i]", vals)
	}
	if err == nil || err.Category != duplexlink.CategoryBadRequest {
		t.Errorf("err = %v, want CategoryBadRequest", err)
	}
}

func TestCollect_NoErrorOnCleanClose(t *testing.T) {
	ctx := context.Background()
	in := make(chan duplexlink.Result[string], 2)
	go fill(in, duplexlink.Ok("a"), duplexlink.Ok("b"))

	vals, err := Collect(ctx, in)
	if err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
	if len(vals) != 2 {
		t.Errorf("vals = %v, want 2 items", vals)
	}
}
