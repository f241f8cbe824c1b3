//go:build !windows

package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmora/duplexlink"
	"github.com/dmora/duplexlink/jsonrpc"
)

// Client is the stdio client of spec §4.2: it spawns a child process and
// multiplexes calls over its stdin/stdout. A single background goroutine
// (the read loop) owns the child's stdout and dispatches every inbound
// message; the two correlation maps (pending, streams) are guarded by mu,
// which Call also takes to register and abandon its own entry. Call may be
// invoked concurrently from any number of goroutines.
//
// Grounded in engine/acp/conn.go's Conn from the teacher repository: the
// mutex-protected pending map and atomic id counter are kept verbatim in
// spirit; generalized here to the pending→streams migration spec.md §4.2
// and §9 require (ACP has no notification-stream concept to migrate to).
type Client[Req, Resp any] struct {
	reqConv  jsonrpc.RequestConverter[Req]
	respConv jsonrpc.ResponseConverter[Req, Resp]

	child   *childProcess
	scanner *bufio.Scanner

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  atomic.Int64
	pending map[int64]pendingCall[Req, Resp]
	streams map[int64]streamEntry[Req, Resp]

	cfg  ClientConfig
	done chan struct{}

	readErr atomic.Value
}

type pendingCall[Req, Resp any] struct {
	original Req
	outcome  chan callOutcome[Resp]
}

type streamEntry[Req, Resp any] struct {
	original Req
	ch       chan duplexlink.Result[Resp]
}

type callOutcome[Resp any] struct {
	resp duplexlink.ServiceResponse[Resp]
	err  *duplexlink.ProtocolError
}

// Dial spawns the child program (with args) and returns a ready Client. The
// child's stdin/stdout are piped; its stderr is inherited.
func Dial[Req, Resp any](
	reqConv jsonrpc.RequestConverter[Req],
	respConv jsonrpc.ResponseConverter[Req, Resp],
	program string,
	args []string,
	opts ...ClientOption,
) (*Client[Req, Resp], error) {
	cfg := ResolveClientConfig(opts...)

	child, stdout, err := spawnChild(cfg.BinPath, program, args, cfg.GracePeriod)
	if err != nil {
		return nil, err
	}

	c := &Client[Req, Resp]{
		reqConv:  reqConv,
		respConv: respConv,
		child:    child,
		cfg:      cfg,
		pending:  make(map[int64]pendingCall[Req, Resp]),
		streams:  make(map[int64]streamEntry[Req, Resp]),
		done:     make(chan struct{}),
	}
	c.scanner = newScanner(stdout, cfg.MaxMessageSize)
	go c.readLoop()
	return c, nil
}

func newScanner(r io.Reader, maxSize int) *bufio.Scanner {
	s := bufio.NewScanner(r)
	initial := maxSize
	if initial > 4096 {
		initial = 4096
	}
	s.Buffer(make([]byte, 0, initial), maxSize)
	return s
}

// Call converts req, assigns it the next monotonically increasing id, and
// writes it to the child's stdin (P1). It blocks until a terminal response
// or the first stream item arrives, the configured timeout elapses, or ctx
// is cancelled.
func (c *Client[Req, Resp]) Call(ctx context.Context, req Req) (duplexlink.ServiceResponse[Resp], error) {
	method, params, ok := c.reqConv.ToJSONRPCRequest(req)
	if !ok {
		return duplexlink.ServiceResponse[Resp]{}, duplexlink.Errorf(duplexlink.CategoryBadRequest, "request not representable over stdio")
	}
	paramsRaw, err := json.Marshal(params)
	if err != nil {
		return duplexlink.ServiceResponse[Resp]{}, duplexlink.NewProtocolError(duplexlink.CategoryInternal, err)
	}

	outcome := make(chan callOutcome[Resp], 1)

	// writeMu is held from id assignment through the write, so requests
	// reach the child in id order.
	c.writeMu.Lock()
	id := c.nextID.Add(1)
	c.mu.Lock()
	c.pending[id] = pendingCall[Req, Resp]{original: req, outcome: outcome}
	c.mu.Unlock()
	data, err := jsonrpc.MarshalRequest(jsonrpc.Request{ID: id, Method: method, Params: paramsRaw})
	if err == nil {
		_, err = c.child.stdin.Write(append(data, '\n'))
	}
	c.writeMu.Unlock()

	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return duplexlink.ServiceResponse[Resp]{}, duplexlink.NewProtocolError(duplexlink.CategoryInternal, fmt.Errorf("write request: %w", err))
	}

	timer := time.NewTimer(c.cfg.Timeout)
	defer timer.Stop()

	select {
	case o := <-outcome:
		return o.resp, errOf(o.err)
	case <-ctx.Done():
		return c.abandon(id, outcome, ctx.Err())
	case <-timer.C:
		return c.abandon(id, outcome, errors.New("timed out"))
	}
}

func errOf(pe *duplexlink.ProtocolError) error {
	if pe == nil {
		return nil
	}
	return pe
}

// abandon drops id from pending (a no-op if it already migrated to
// streams), then makes a last attempt to receive an outcome that raced
// with the timeout/cancellation before reporting failure.
func (c *Client[Req, Resp]) abandon(id int64, outcome chan callOutcome[Resp], cause error) (duplexlink.ServiceResponse[Resp], error) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
	select {
	case o := <-outcome:
		return o.resp, errOf(o.err)
	default:
		return duplexlink.ServiceResponse[Resp]{}, duplexlink.NewProtocolError(duplexlink.CategoryInternal, cause)
	}
}

// Close kills the child (SIGTERM, grace period, SIGKILL) and waits for the
// read loop to drain outstanding correlation state.
func (c *Client[Req, Resp]) Close() error {
	err := c.child.close()
	<-c.done
	return err
}

// Err returns the read loop's terminal error, if any, after Close or after
// the child has exited on its own.
func (c *Client[Req, Resp]) Err() error {
	if v := c.readErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

func (c *Client[Req, Resp]) sendResponse(r jsonrpc.Response) error {
	data, err := jsonrpc.MarshalResponse(r)
	if err != nil {
		return err
	}
	return c.writeLine(data)
}

func (c *Client[Req, Resp]) writeLine(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	data = append(data, '\n')
	_, err := c.child.stdin.Write(data)
	return err
}

// readLoop is the comm task's read side: it owns the stdout scanner and is
// the only goroutine that resolves pending entries, migrates them to streams,
// and closes streams; Call only inserts and deletes its own pending entry,
// under mu.
func (c *Client[Req, Resp]) readLoop() {
	defer func() {
		c.child.wait()
		c.drainPending()
		close(c.done)
	}()

	for c.scanner.Scan() {
		line := c.scanner.Bytes()
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		msg, err := jsonrpc.Parse(append([]byte(nil), line...))
		if err != nil {
			c.cfg.Logger.Warn("stdio client: parse error", "error", err)
			continue
		}
		c.dispatch(msg)
	}
	if err := c.scanner.Err(); err != nil {
		c.readErr.Store(err)
	}
}

func (c *Client[Req, Resp]) dispatch(msg jsonrpc.Message) {
	switch msg.Kind {
	case jsonrpc.KindResponse:
		c.handleResponse(msg.Response)
	case jsonrpc.KindNotification:
		c.handleNotification(msg.Notification)
	case jsonrpc.KindRequest:
		// Unsolicited request from the child: this client does not serve
		// requests (spec §4.2, §6).
		_ = c.sendResponse(jsonrpc.Response{
			ID:    msg.Request.ID,
			Error: jsonrpc.ErrorObjectFor(duplexlink.Errorf(duplexlink.CategoryBadRequest, "client does not support serving requests")),
		})
	}
}

func (c *Client[Req, Resp]) handleResponse(resp jsonrpc.Response) {
	c.mu.Lock()
	pc, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.mu.Unlock()
	if !ok {
		c.cfg.Logger.Warn("stdio client: response for unknown id", "id", resp.ID)
		return
	}

	if resp.Error != nil {
		pc.outcome <- callOutcome[Resp]{err: jsonrpc.ProtocolErrorFor(resp.Error)}
		return
	}
	val, err := c.respConv.FromJSONRPCResult(resp.Result, pc.original)
	if err != nil {
		pc.outcome <- callOutcome[Resp]{err: duplexlink.AsProtocolError(err)}
		return
	}
	pc.outcome <- callOutcome[Resp]{resp: duplexlink.Single(val)}
}

func (c *Client[Req, Resp]) handleNotification(n jsonrpc.Notification) {
	id, err := strconv.ParseInt(n.Method, 10, 64)
	if err != nil {
		c.cfg.Logger.Warn("stdio client: notification method is not a correlation id", "method", n.Method)
		return
	}

	c.mu.Lock()
	if pc, ok := c.pending[id]; ok {
		delete(c.pending, id)
		ch := make(chan duplexlink.Result[Resp], c.cfg.OutputBuffer)
		c.streams[id] = streamEntry[Req, Resp]{original: pc.original, ch: ch}
		c.mu.Unlock()

		// Critical ordering (spec §9): build the channel and resolve the
		// single-shot with Multiple(ch) BEFORE forwarding the first item —
		// otherwise the first item is lost if the caller hasn't yet
		// observed the stream.
		pc.outcome <- callOutcome[Resp]{resp: duplexlink.Multiple(ch)}
		c.forwardNotification(id, ch, n, pc.original)
		return
	}
	se, ok := c.streams[id]
	c.mu.Unlock()
	if !ok {
		c.cfg.Logger.Warn("stdio client: notification for unknown id", "id", id)
		return
	}
	c.forwardNotification(id, se.ch, n, se.original)
}

func (c *Client[Req, Resp]) forwardNotification(id int64, ch chan duplexlink.Result[Resp], n jsonrpc.Notification, original Req) {
	if n.IsEndOfStream() {
		c.mu.Lock()
		delete(c.streams, id)
		c.mu.Unlock()
		close(ch)
		return
	}

	var params jsonrpc.NotificationResultParams
	if err := json.Unmarshal(n.Params, &params); err != nil {
		ch <- duplexlink.Errored[Resp](duplexlink.NewProtocolError(duplexlink.CategoryInternal, err))
		return
	}
	if params.Error != nil {
		ch <- duplexlink.Errored[Resp](duplexlink.ProtocolErrorFromPayload(*params.Error))
		return
	}
	val, err := c.respConv.FromJSONRPCNotification(params.Result, original)
	if err != nil {
		ch <- duplexlink.Errored[Resp](duplexlink.AsProtocolError(err))
		return
	}
	ch <- duplexlink.Ok(val)
}

// drainPending unblocks every outstanding Call and closes every open stream
// so consumers don't hang when the child exits or the client closes.
func (c *Client[Req, Resp]) drainPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, pc := range c.pending {
		pc.outcome <- callOutcome[Resp]{err: duplexlink.Errorf(duplexlink.CategoryInternal, "stdio client: connection closed")}
		delete(c.pending, id)
	}
	for id, se := range c.streams {
		close(se.ch)
		delete(c.streams, id)
	}
}
