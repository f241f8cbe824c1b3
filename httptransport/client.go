package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/dmora/duplexlink"
)

// Client is the HTTP client of spec §4.4: it converts each Req into an HTTP
// request, performs it under a circuit breaker, and converts the response
// back — consuming it as an SSE stream when the response declares
// Content-Type: text/event-stream.
//
// Grounded in scrypster-memento's internal/llm/circuit_breaker.go for the
// gobreaker wiring.
type Client[Req, Resp any] struct {
	reqConv  RequestConverter[Req]
	respConv ResponseConverter[Req, Resp]
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker
	cfg      HttpClientConfig
}

// NewClient builds an HTTP Client.
func NewClient[Req, Resp any](reqConv RequestConverter[Req], respConv ResponseConverter[Req, Resp], opts ...HttpClientOption) *Client[Req, Resp] {
	cfg := ResolveHttpClientConfig(opts...)
	return &Client[Req, Resp]{
		reqConv:  reqConv,
		respConv: respConv,
		http:     &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "duplexlink-http-client",
			MaxRequests: 1,
			Timeout:     cfg.BreakerOpenDuration,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.BreakerFailureThreshold
			},
		}),
		cfg: cfg,
	}
}

// Call converts req to an HTTP request, performs it, and converts the
// response back into a [duplexlink.ServiceResponse].
func (c *Client[Req, Resp]) Call(ctx context.Context, req Req) (duplexlink.ServiceResponse[Resp], error) {
	method, path, body, ok := c.reqConv.ToHTTPRequest(req)
	if !ok {
		return duplexlink.ServiceResponse[Resp]{}, duplexlink.Errorf(duplexlink.CategoryBadRequest, "request not representable over http")
	}

	var bodyReader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return duplexlink.ServiceResponse[Resp]{}, duplexlink.NewProtocolError(duplexlink.CategoryInternal, err)
		}
		bodyReader = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.cfg.BaseURL, "/")+path, bodyReader)
	if err != nil {
		return duplexlink.ServiceResponse[Resp]{}, duplexlink.NewProtocolError(duplexlink.CategoryInternal, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("X-API-Key", c.cfg.APIKey)
	}

	result, err := c.breaker.Execute(func() (any, error) {
		return c.http.Do(httpReq)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			return duplexlink.ServiceResponse[Resp]{}, duplexlink.Errorf(duplexlink.CategoryInternal, "circuit open")
		}
		return duplexlink.ServiceResponse[Resp]{}, duplexlink.NewProtocolError(duplexlink.CategoryInternal, err)
	}
	httpResp := result.(*http.Response)

	if isSSE(httpResp.Header.Get("Content-Type")) {
		return duplexlink.Multiple(c.consumeSSE(httpResp, req)), nil
	}

	defer httpResp.Body.Close()
	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return duplexlink.ServiceResponse[Resp]{}, duplexlink.NewProtocolError(duplexlink.CategoryInternal, err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(raw, &body)
		return duplexlink.ServiceResponse[Resp]{}, duplexlink.NewProtocolError(
			duplexlink.CategoryFromHTTPStatus(httpResp.StatusCode),
			fmt.Errorf("%s", body.Error),
		)
	}

	val, err := c.respConv.FromHTTPResult(httpResp.StatusCode, raw, req)
	if err != nil {
		return duplexlink.ServiceResponse[Resp]{}, duplexlink.AsProtocolError(err)
	}
	return duplexlink.Single(val), nil
}

func (c *Client[Req, Resp]) consumeSSE(httpResp *http.Response, original Req) <-chan duplexlink.Result[Resp] {
	ch := make(chan duplexlink.Result[Resp], c.cfg.OutputBuffer)
	go func() {
		defer close(ch)
		defer httpResp.Body.Close()
		err := scanSSE(httpResp.Body, func(payload NotificationPayload) error {
			if payload.Error != nil {
				ch <- duplexlink.Errored[Resp](duplexlink.ProtocolErrorFromPayload(*payload.Error))
				return nil
			}
			val, err := c.respConv.FromHTTPEvent(payload.Result, original)
			if err != nil {
				ch <- duplexlink.Errored[Resp](duplexlink.AsProtocolError(err))
				return nil
			}
			ch <- duplexlink.Ok(val)
			return nil
		})
		if err != nil {
			ch <- duplexlink.Errored[Resp](duplexlink.NewProtocolError(duplexlink.CategoryInternal, err))
		}
	}()
	return ch
}
