// Package stdio implements the symmetric stdio transport (spec §4.2, §4.3):
// a [Client] that spawns a child process and multiplexes calls over its
// stdin/stdout via a single comm task, and a [Server] that runs the
// symmetric main loop inside that child.
//
// Grounded in engine/acp/conn.go, engine/acp/process.go, and
// engine/acp/engine.go from the teacher repository: the mutex+map
// correlation model, the SIGTERM→grace→SIGKILL subprocess lifecycle, and
// the bufio.Scanner line-reading idiom are kept; the Agent Client
// Protocol's fixed method set and handshake are replaced by the
// generic [jsonrpc.RequestConverter]/[jsonrpc.ResponseConverter] contracts
// and the pending/streams migration spec.md §4.2 and §9 require.
package stdio

import "errors"

// ErrSpawnFailed indicates the child binary could not be resolved or
// started.
var ErrSpawnFailed = errors.New("stdio: spawn child process")
