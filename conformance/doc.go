// Package conformance exercises the transport-independent testable
// properties of spec §8 (P2-P6 and P9; P1, P7 and P8 are tested in the stdio
// and httptransport packages) generically against any transport
// implementation, so the stdio and HTTP transports are checked against one
// shared property suite instead of duplicating assertions per transport.
//
// Grounded in the teacher repository's enginetest/clitest compliance-suite
// idiom (a RunXTests(t, factory) entry point parameterised over a
// transport-constructing factory), generalized from the Agent Client
// Protocol's CLI-only transport to an arbitrary Client[Req, Resp].
package conformance
