// Package jsonrpc implements the JSON-RPC 2.0 message model used by the
// stdio transport: tagged Request/Response/Notification variants, the
// error-code/ErrorCategory mapping, and the conversion-contract interfaces
// a caller's Request/Response types implement to ride on JSON-RPC.
//
// Grounded in engine/acp/conn.go's rpcRequest/rpcMessage/rpcResponse/rpcError
// wire types from the teacher repository, generalized from the Agent Client
// Protocol's fixed method set to an arbitrary user-supplied request/response
// pair, and extended with the notification-as-stream-item convention this
// protocol fixes (method = stringified correlation id).
package jsonrpc

import (
	"encoding/json"
	"fmt"

	"github.com/dmora/duplexlink"
	"github.com/dmora/duplexlink/internal/errfmt"
)

const Version = "2.0"

// Kind discriminates a parsed Message.
type Kind int

const (
	KindRequest Kind = iota
	KindResponse
	KindNotification
)

// Request is an outbound or inbound JSON-RPC 2.0 request.
type Request struct {
	ID     int64
	Method string
	Params json.RawMessage
}

// Response is a terminal JSON-RPC 2.0 response: exactly one of Result or
// Error is set.
type Response struct {
	ID     int64
	Result json.RawMessage
	Error  *ErrorObject
}

// Notification is a JSON-RPC 2.0 notification. On this protocol's stdio
// wire, Method is always the decimal string of the originating call's id;
// Params carries a NotificationResultParams payload, or is absent/null to
// signal end-of-stream.
type Notification struct {
	Method string
	Params json.RawMessage
}

// IsEndOfStream reports whether n is the end-of-stream sentinel: its params
// are absent or the JSON literal null.
func (n Notification) IsEndOfStream() bool {
	return len(n.Params) == 0 || string(n.Params) == "null"
}

// NotificationResultParams is the payload carried by a stream-item
// Notification: exactly one of Result or Error is set. Error uses the
// ProtocolError wire projection (error_type/description), distinct from the
// JSON-RPC code/message ErrorObject a terminal Response's error carries
// (spec §6): a stream item's error must still decode back to the same five
// ErrorCategory values a client-side AsProtocolError elsewhere relies on,
// which a lossy JSON-RPC code cannot roundtrip.
type NotificationResultParams struct {
	Result json.RawMessage          `json:"result,omitempty"`
	Error  *duplexlink.ErrorPayload `json:"error,omitempty"`
}

// ErrorObject is the wire form of a JSON-RPC error.
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// CodeForCategory implements the forward mapping in spec §6: BadRequest and
// Unauthorized both collapse to InvalidRequest; NotFound and
// MethodNotAllowed both collapse to InternalError (JSON-RPC has no "not
// found" or "method not allowed" code of its own); Internal maps to
// InternalError.
func CodeForCategory(c duplexlink.ErrorCategory) int {
	switch c {
	case duplexlink.CategoryBadRequest, duplexlink.CategoryUnauthorized:
		return CodeInvalidRequest
	default:
		return CodeInternalError
	}
}

// CategoryForCode implements the reverse mapping in spec §6:
// ParseError/InvalidRequest/MethodNotFound/InvalidParams collapse to
// BadRequest; everything else, including InternalError, collapses to
// Internal.
func CategoryForCode(code int) duplexlink.ErrorCategory {
	switch code {
	case CodeParseError, CodeInvalidRequest, CodeMethodNotFound, CodeInvalidParams:
		return duplexlink.CategoryBadRequest
	default:
		return duplexlink.CategoryInternal
	}
}

// ErrorObjectFor builds the wire ErrorObject for a ProtocolError. Message is
// capped by errfmt.Truncate for the same reason ProtocolError.Payload caps
// Description.
func ErrorObjectFor(err *duplexlink.ProtocolError) *ErrorObject {
	return &ErrorObject{Code: CodeForCategory(err.Category), Message: errfmt.Truncate(err.Error())}
}

// ProtocolErrorFor reconstructs a ProtocolError from a wire ErrorObject.
func ProtocolErrorFor(obj *ErrorObject) *duplexlink.ProtocolError {
	return duplexlink.NewProtocolError(CategoryForCode(obj.Code), fmt.Errorf("%s", obj.Message))
}

// --- wire envelope ---

// envelope is the generic inbound shape used to discriminate Request vs
// Response vs Notification (spec §3): presence of "method" selects
// Request/Notification by presence of "id"; absence of "method" means
// Response.
type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// Message is a parsed inbound JSON-RPC 2.0 message, tagged by Kind.
type Message struct {
	Kind         Kind
	Request      Request
	Response     Response
	Notification Notification
}

// Parse discriminates and decodes a single line of JSON-RPC wire data.
func Parse(line []byte) (Message, error) {
	var e envelope
	if err := json.Unmarshal(line, &e); err != nil {
		return Message{}, err
	}
	switch {
	case e.Method != "" && e.ID != nil:
		return Message{Kind: KindRequest, Request: Request{ID: *e.ID, Method: e.Method, Params: e.Params}}, nil
	case e.Method != "":
		return Message{Kind: KindNotification, Notification: Notification{Method: e.Method, Params: e.Params}}, nil
	default:
		id := int64(0)
		if e.ID != nil {
			id = *e.ID
		}
		return Message{Kind: KindResponse, Response: Response{ID: id, Result: e.Result, Error: e.Error}}, nil
	}
}

// MarshalRequest serialises a Request as a wire envelope.
func MarshalRequest(r Request) ([]byte, error) {
	return json.Marshal(envelope{JSONRPC: Version, ID: &r.ID, Method: r.Method, Params: r.Params})
}

// MarshalResponse serialises a Response as a wire envelope.
func MarshalResponse(r Response) ([]byte, error) {
	return json.Marshal(envelope{JSONRPC: Version, ID: &r.ID, Result: r.Result, Error: r.Error})
}

// MarshalNotification serialises a Notification as a wire envelope.
func MarshalNotification(n Notification) ([]byte, error) {
	return json.Marshal(envelope{JSONRPC: Version, Method: n.Method, Params: n.Params})
}

// --- conversion contracts (spec §4.1) ---

// RequestConverter converts between a user Req type and JSON-RPC wire
// requests. FromJSONRPCRequest returns ok=false for an unsupported method
// (the stdio server logs it and sends no reply). ToJSONRPCRequest
// returns the method name and params to serialise; the stdio client assigns
// the id.
type RequestConverter[Req any] interface {
	FromJSONRPCRequest(method string, params json.RawMessage) (req Req, ok bool)
	ToJSONRPCRequest(req Req) (method string, params any, ok bool)
}

// ResponseConverter converts between a user Resp type and the two shapes a
// JSON-RPC message can carry: a terminal Response result, or one
// Notification stream item. Kept as two pairs of methods (rather than a
// single "modal message" decode) because Go's type system does not give a
// terse way to express the original Rust duality; the wire semantics are
// unchanged.
type ResponseConverter[Req, Resp any] interface {
	// FromJSONRPCResult decodes a terminal Response's result payload.
	FromJSONRPCResult(result json.RawMessage, original Req) (Resp, error)
	// FromJSONRPCNotification decodes one stream item's notification params.
	FromJSONRPCNotification(params json.RawMessage, original Req) (Resp, error)
	// ToJSONRPCResult encodes a Single response's result payload.
	ToJSONRPCResult(resp Resp) (any, error)
	// ToJSONRPCNotificationParams encodes one stream item's notification params.
	ToJSONRPCNotificationParams(resp Resp) (any, error)
}
