// Package httptransport implements the HTTP/SSE transport (spec §4.4, §4.5):
// a [Client] that issues HTTP requests (optionally consuming a
// Server-Sent-Events response as a stream) and a [Server] that answers them
// through the same [duplexlink.Handler] abstraction the stdio transport
// uses.
//
// Grounded in jinterlante1206-AleutianLocal's services/orchestrator/handlers/sse_writer.go
// (the SSE write side) and services/llm/anthropic_llm.go (the SSE read
// side) from the example pack, and in scrypster-memento's
// internal/llm/circuit_breaker.go and web/handlers/middleware.go for the
// gobreaker-wrapped round trip and the per-key rate limiter. Routing
// scaffolding is gin, per spec.md §4.5's note that gin supplies connection
// handling and graceful shutdown, not route dispatch — dispatch stays the
// conversion contract's job via a single catch-all handler.
package httptransport
