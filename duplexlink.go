// Package duplexlink provides a dual-transport request/response engine for
// exposing one service definition, written once in a protocol-agnostic form,
// over two interchangeable transports: a stdio transport in which a parent
// process spawns a child and exchanges line-delimited JSON-RPC 2.0 messages
// over its standard input and output, and an HTTP transport in which
// streaming responses are carried as Server-Sent Events.
//
// The primary types defined in this package are:
//
//   - [ProtocolError] — the single error type that can cross either wire
//   - [ServiceResponse] — a single value or a finite stream of values
//   - [Result] — one stream item, successful or failed
//
// A caller supplies a request/response pair and implements the conversion
// contracts in [github.com/dmora/duplexlink/jsonrpc] and
// [github.com/dmora/duplexlink/httptransport]; duplexlink transports the
// requests, dispatches them to a handler, and returns either a [Single]
// response or a [Multiple] stream of [Result] values.
//
// Quick start:
//
//	client, err := stdio.Dial[Req, Resp](reqConv, respConv, "./child-binary", nil)
//	resp, err := client.Call(ctx, req)
//	if v, ok := resp.Single(); ok { ... }
package duplexlink
