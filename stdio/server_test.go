package stdio

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/dmora/duplexlink"
)

type mapResult struct {
	ID     *int64          `json:"id"`
	Method string          `json:"method"`
	Result json.RawMessage `json:"result"`
	Params json.RawMessage `json:"params"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func parseLines(t *testing.T, data []byte) []mapResult {
	t.Helper()
	var out []mapResult
	for _, line := range bytes.Split(bytes.TrimSpace(data), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m mapResult
		if err := json.Unmarshal(line, &m); err != nil {
			t.Fatalf("unmarshal line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestServer_SingleResponse(t *testing.T) {
	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"do","params":"foo"}` + "\n")
	var out bytes.Buffer

	handler := func(_ context.Context, req string) (duplexlink.ServiceResponse[string], error) {
		return duplexlink.Single("hi " + req), nil
	}
	srv := NewServer[string, string](in, &out, handler, echoConv{}, echoRespConv{})

	if err := srv.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	srv.Wait()

	lines := parseLines(t, out.Bytes())
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %v", len(lines), lines)
	}
	if lines[0].ID == nil || *lines[0].ID != 1 {
		t.Errorf("id = %v, want 1", lines[0].ID)
	}
	var result string
	if err := json.Unmarshal(lines[0].Result, &result); err != nil || result != "hi foo" {
		t.Errorf("result = %s, err = %v, want \"hi foo\"", lines[0].Result, err)
	}
}

func TestServer_StreamEmitsItemsThenEndOfStream(t *testing.T) {
	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"do","params":"foo"}` + "\n")
	var out bytes.Buffer

	handler := func(_ context.Context, req string) (duplexlink.ServiceResponse[string], error) {
		ch := make(chan duplexlink.Result[string], 2)
		ch <- duplexlink.Ok("a")
		ch <- duplexlink.Ok("b")
		close(ch)
		return duplexlink.Multiple[string](ch), nil
	}
	srv := NewServer[string, string](in, &out, handler, echoConv{}, echoRespConv{})

	if err := srv.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	srv.Wait()

	lines := parseLines(t, out.Bytes())
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3: %v", len(lines), lines)
	}
	for i, l := range lines[:2] {
		if l.Method != "1" {
			t.Errorf("line %d method = %q, want \"1\"", i, l.Method)
		}
		if len(l.Params) == 0 {
			t.Errorf("line %d has no params", i)
		}
	}
	last := lines[2]
	if last.Method != "1" {
		t.Errorf("final line method = %q, want \"1\"", last.Method)
	}
	if len(last.Params) != 0 {
		t.Errorf("final line params = %s, want empty (end-of-stream sentinel)", last.Params)
	}
}

type strictConv struct{}

func (strictConv) FromJSONRPCRequest(method string, params json.RawMessage) (string, bool) {
	if method != "do" {
		return "", false
	}
	return method, true
}
func (strictConv) ToJSONRPCRequest(req string) (string, any, bool) { return "do", req, true }

func TestServer_UnknownMethodIsIgnoredNotErrored(t *testing.T) {
	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"not-a-thing","params":"foo"}` + "\n")
	var out bytes.Buffer

	handler := func(_ context.Context, req string) (duplexlink.ServiceResponse[string], error) {
		return duplexlink.Single(req), nil
	}
	srv := NewServer[string, string](in, &out, handler, strictConv{}, echoRespConv{})

	if err := srv.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	srv.Wait()

	if out.Len() != 0 {
		t.Errorf("out = %q, want no reply for an unrecognized method", out.String())
	}
}

func TestServer_HandlerErrorBecomesErrorResponse(t *testing.T) {
	in := strings.NewReader(`{"jsonrpc":"2.0","id":7,"method":"do","params":"foo"}` + "\n")
	var out bytes.Buffer

	handler := func(_ context.Context, _ string) (duplexlink.ServiceResponse[string], error) {
		return duplexlink.ServiceResponse[string]{}, duplexlink.Errorf(duplexlink.CategoryNotFound, "no such thing")
	}
	srv := NewServer[string, string](in, &out, handler, echoConv{}, echoRespConv{})

	if err := srv.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	srv.Wait()

	lines := parseLines(t, out.Bytes())
	if len(lines) != 1 || lines[0].Error == nil {
		t.Fatalf("lines = %v, want one error response", lines)
	}
	if lines[0].ID == nil || *lines[0].ID != 7 {
		t.Errorf("id = %v, want 7", lines[0].ID)
	}
}
