package httptransport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmora/duplexlink"
)

type httpEchoConv struct{}

func (httpEchoConv) FromHTTPRequest(r *http.Request) (string, bool) {
	if r.URL.Path != "/do" {
		return "", false
	}
	var body string
	_ = json.NewDecoder(r.Body).Decode(&body)
	return body, true
}
func (httpEchoConv) ToHTTPRequest(req string) (string, string, any, bool) {
	return http.MethodPost, "/do", req, true
}

type httpEchoRespConv struct{}

func (httpEchoRespConv) FromHTTPResult(_ int, body json.RawMessage, _ string) (string, error) {
	var s string
	if err := json.Unmarshal(body, &s); err != nil {
		return "", err
	}
	return s, nil
}
func (httpEchoRespConv) FromHTTPEvent(payload json.RawMessage, _ string) (string, error) {
	var s string
	if err := json.Unmarshal(payload, &s); err != nil {
		return "", err
	}
	return s, nil
}
func (httpEchoRespConv) ToHTTPResult(resp string) (int, any, error)  { return http.StatusOK, resp, nil }
func (httpEchoRespConv) ToHTTPEventPayload(resp string) (any, error) { return resp, nil }

func TestClient_SingleResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body string
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode("hi " + body)
	}))
	defer srv.Close()

	c := NewClient[string, string](httpEchoConv{}, httpEchoRespConv{}, WithBaseURL(srv.URL))
	resp, err := c.Call(context.Background(), "foo")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	val, ok := resp.Single()
	if !ok || val != "hi foo" {
		t.Fatalf("resp = %+v, ok=%v, want Single(\"hi foo\")", resp, ok)
	}
}

func TestClient_NonSuccessStatusMapsToCategory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "no such thing"})
	}))
	defer srv.Close()

	c := NewClient[string, string](httpEchoConv{}, httpEchoRespConv{}, WithBaseURL(srv.URL))
	_, err := c.Call(context.Background(), "foo")
	if err == nil {
		t.Fatal("expected an error")
	}
	if got := duplexlink.AsProtocolError(err).Category; got != duplexlink.CategoryNotFound {
		t.Errorf("category = %s, want %s", got, duplexlink.CategoryNotFound)
	}
}

func TestClient_SSEStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSSEHeaders(w)
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"result\":\"a\"}\n\n")
		flusher.Flush()
		fmt.Fprint(w, "data: {\"result\":\"b\"}\n\n")
		flusher.Flush()
	}))
	defer srv.Close()

	c := NewClient[string, string](httpEchoConv{}, httpEchoRespConv{}, WithBaseURL(srv.URL))
	resp, err := c.Call(context.Background(), "foo")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	ch, ok := resp.Stream()
	if !ok {
		t.Fatal("expected a Multiple response")
	}
	var got []string
	for r := range ch {
		if r.IsErr() {
			t.Fatalf("unexpected stream error: %v", r.Err)
		}
		got = append(got, r.Value)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("got = %v, want [a b]", got)
	}
}

func TestClient_CircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	srv.Close() // close immediately so every dial fails

	c := NewClient[string, string](httpEchoConv{}, httpEchoRespConv{},
		WithBaseURL(srv.URL), WithBreakerFailureThreshold(1), WithBreakerOpenDuration(time.Minute))

	_, err := c.Call(context.Background(), "foo")
	if err == nil {
		t.Fatal("expected the first call to fail")
	}
	_, err = c.Call(context.Background(), "foo")
	if err == nil {
		t.Fatal("expected the breaker-open call to fail")
	}
	if got := duplexlink.AsProtocolError(err).Cause.Error(); got != "circuit open" {
		t.Errorf("second call error = %q, want %q", got, "circuit open")
	}
}
