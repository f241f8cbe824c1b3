package httptransport

import (
	"encoding/json"
	"net/http"

	"github.com/dmora/duplexlink"
)

// NotificationPayload is the SSE frame payload (spec §6): exactly one of
// Result or Error is set. Shares its shape with jsonrpc.NotificationResultParams
// by design (both transports stream the same ServiceResponse Multiple items)
// but is declared separately so this package has no import-time dependency
// on jsonrpc's wire model.
type NotificationPayload struct {
	Result json.RawMessage          `json:"result,omitempty"`
	Error  *duplexlink.ErrorPayload `json:"error,omitempty"`
}

// RequestConverter converts between a user Req type and an HTTP request
// (spec §4.1). FromHTTPRequest returns ok=false for a method/path the
// converter doesn't recognise — the server boundary translates that to
// NotFound. ToHTTPRequest returns the method, the path to append to the
// client's configured base URL, and the JSON-encodable body (nil for none).
type RequestConverter[Req any] interface {
	FromHTTPRequest(r *http.Request) (req Req, ok bool)
	ToHTTPRequest(req Req) (method, path string, body any, ok bool)
}

// ResponseConverter converts between a user Resp type and the two shapes an
// HTTP exchange can carry: a single JSON response, or one SSE event. Kept as
// two pairs of methods for the same reason jsonrpc.ResponseConverter is:
// Go's type system has no terse way to express the original "modal
// response" duality, so the wire semantics are split into named methods
// instead.
type ResponseConverter[Req, Resp any] interface {
	// FromHTTPResult decodes a non-streaming response body.
	FromHTTPResult(status int, body json.RawMessage, original Req) (Resp, error)
	// FromHTTPEvent decodes one SSE event's result payload.
	FromHTTPEvent(payload json.RawMessage, original Req) (Resp, error)
	// ToHTTPResult encodes a Single response: status (0 means 200) and a
	// JSON-encodable body.
	ToHTTPResult(resp Resp) (status int, body any, err error)
	// ToHTTPEventPayload encodes one stream item's SSE result payload.
	ToHTTPEventPayload(resp Resp) (any, error)
}
