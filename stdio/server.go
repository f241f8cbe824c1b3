package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dmora/duplexlink"
	"github.com/dmora/duplexlink/jsonrpc"
)

// Server is the stdio transport's symmetric counterpart to [Client]: it
// reads JSON-RPC requests line-by-line from in, dispatches each to handler
// on its own goroutine (tracked by an [errgroup.Group], which sets no
// concurrency limit and does not recover panics, so a slow handler never
// blocks the main loop reading the next line), and writes terminal
// responses or notification-stream items back to out.
//
// Grounded in original_source/src/stdio/server.rs's StdioServer: the
// tokio::select! over stdin-read / notification-stream-next / new-stream
// registration becomes a Go select over a line-reader channel and a shared,
// tagged notification channel that every active stream's forwarder
// goroutine writes into — the Go analogue of futures::stream::SelectAll.
type Server[Req, Resp any] struct {
	handler  duplexlink.Handler[Req, Resp]
	reqConv  jsonrpc.RequestConverter[Req]
	respConv jsonrpc.ResponseConverter[Req, Resp]
	cfg      ServerConfig

	in io.Reader

	writeMu sync.Mutex
	out     io.Writer

	group errgroup.Group
}

// NewServer builds a stdio Server reading requests from in and writing
// responses to out.
func NewServer[Req, Resp any](
	in io.Reader,
	out io.Writer,
	handler duplexlink.Handler[Req, Resp],
	reqConv jsonrpc.RequestConverter[Req],
	respConv jsonrpc.ResponseConverter[Req, Resp],
	opts ...ServerOption,
) *Server[Req, Resp] {
	return &Server[Req, Resp]{
		handler:  handler,
		reqConv:  reqConv,
		respConv: respConv,
		cfg:      ResolveServerConfig(opts...),
		in:       in,
		out:      out,
	}
}

type lineOrErr struct {
	line []byte
	err  error
}

type identifiedNotification[Resp any] struct {
	id    int64
	item  duplexlink.Result[Resp]
	ended bool
}

// Run executes the main loop until in reaches EOF (returning nil), a read
// error occurs, or ctx is cancelled. Per-request handler dispatch runs on
// its own goroutine and may still be writing to out after Run returns — the
// mutex-guarded writer makes that safe, matching the detached-task
// semantics of the original tokio::spawn.
func (s *Server[Req, Resp]) Run(ctx context.Context) error {
	lines := make(chan lineOrErr)
	go s.readLines(lines)

	notify := make(chan identifiedNotification[Resp])

	for {
		select {
		case le, ok := <-lines:
			if !ok {
				return s.drainAndWait(notify)
			}
			if le.err != nil {
				return le.err
			}
			if len(le.line) == 0 {
				continue
			}
			s.handleLine(ctx, le.line, notify)
		case n := <-notify:
			s.emit(n)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// drainAndWait keeps servicing notify — on which still-running dispatch
// goroutines may be blocked sending — until every dispatched handler has
// returned. Without this, a handler racing EOF on its stream's last item
// would block forever once the main loop stopped reading notify.
func (s *Server[Req, Resp]) drainAndWait(notify chan identifiedNotification[Resp]) error {
	waitDone := make(chan error, 1)
	go func() { waitDone <- s.group.Wait() }()
	for {
		select {
		case n := <-notify:
			s.emit(n)
		case err := <-waitDone:
			for {
				select {
				case n := <-notify:
					s.emit(n)
				default:
					return err
				}
			}
		}
	}
}

// Wait blocks until every dispatched handler goroutine has returned. Tests
// use this to observe a request's output deterministically; production
// callers generally don't need it since Run already drives the main loop
// for the process's lifetime.
func (s *Server[Req, Resp]) Wait() error {
	return s.group.Wait()
}

func (s *Server[Req, Resp]) readLines(out chan<- lineOrErr) {
	defer close(out)
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 4096), 4<<20)
	for scanner.Scan() {
		out <- lineOrErr{line: append([]byte(nil), scanner.Bytes()...)}
	}
	if err := scanner.Err(); err != nil {
		out <- lineOrErr{err: err}
	}
}

func (s *Server[Req, Resp]) handleLine(ctx context.Context, line []byte, notify chan<- identifiedNotification[Resp]) {
	if line[0] != '{' {
		return
	}
	msg, err := jsonrpc.Parse(line)
	if err != nil {
		s.cfg.Logger.Warn("stdio server: parse error", "error", err)
		return
	}
	if msg.Kind != jsonrpc.KindRequest {
		s.cfg.Logger.Warn("stdio server: ignoring non-request message")
		return
	}

	req, ok := s.reqConv.FromJSONRPCRequest(msg.Request.Method, msg.Request.Params)
	if !ok {
		// Resolved open question (spec §9): an unrecognized method is
		// logged and otherwise ignored rather than answered with an error
		// reply, matching the original Rust server's behavior.
		s.cfg.Logger.Warn("stdio server: unrecognized method", "method", msg.Request.Method)
		return
	}

	id := msg.Request.ID
	s.group.Go(func() error {
		s.dispatch(ctx, id, req, notify)
		return nil
	})
}

func (s *Server[Req, Resp]) dispatch(ctx context.Context, id int64, req Req, notify chan<- identifiedNotification[Resp]) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ServiceTimeout)
	defer cancel()

	var (
		resp duplexlink.ServiceResponse[Resp]
		err  error
	)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		resp, err = s.handler(callCtx, req)
	}()
	select {
	case <-finished:
	case <-callCtx.Done():
		s.writeResult(id, *new(Resp), duplexlink.NewProtocolError(duplexlink.CategoryInternal, callCtx.Err()))
		return
	}
	if err != nil {
		s.writeResult(id, *new(Resp), duplexlink.AsProtocolError(err))
		return
	}
	if single, ok := resp.Single(); ok {
		s.writeResult(id, single, nil)
		return
	}
	stream, _ := resp.Stream()
	for item := range stream {
		notify <- identifiedNotification[Resp]{id: id, item: item}
	}
	notify <- identifiedNotification[Resp]{id: id, ended: true}
}

func (s *Server[Req, Resp]) emit(n identifiedNotification[Resp]) {
	if n.ended {
		s.writeNotification(jsonrpc.Notification{Method: strconv.FormatInt(n.id, 10)})
		return
	}
	if n.item.IsErr() {
		payload := n.item.Err.Payload()
		raw, _ := json.Marshal(jsonrpc.NotificationResultParams{Error: &payload})
		s.writeNotification(jsonrpc.Notification{Method: strconv.FormatInt(n.id, 10), Params: raw})
		return
	}
	payload, err := s.respConv.ToJSONRPCNotificationParams(n.item.Value)
	if err != nil {
		errPayload := duplexlink.AsProtocolError(err).Payload()
		raw, _ := json.Marshal(jsonrpc.NotificationResultParams{Error: &errPayload})
		s.writeNotification(jsonrpc.Notification{Method: strconv.FormatInt(n.id, 10), Params: raw})
		return
	}
	resultRaw, err := json.Marshal(payload)
	if err != nil {
		errPayload := duplexlink.NewProtocolError(duplexlink.CategoryInternal, err).Payload()
		raw, _ := json.Marshal(jsonrpc.NotificationResultParams{Error: &errPayload})
		s.writeNotification(jsonrpc.Notification{Method: strconv.FormatInt(n.id, 10), Params: raw})
		return
	}
	raw, _ := json.Marshal(jsonrpc.NotificationResultParams{Result: resultRaw})
	s.writeNotification(jsonrpc.Notification{Method: strconv.FormatInt(n.id, 10), Params: raw})
}

func (s *Server[Req, Resp]) writeResult(id int64, value Resp, protoErr *duplexlink.ProtocolError) {
	if protoErr != nil {
		s.writeResponse(jsonrpc.Response{ID: id, Error: jsonrpc.ErrorObjectFor(protoErr)})
		return
	}
	payload, err := s.respConv.ToJSONRPCResult(value)
	if err != nil {
		s.writeResponse(jsonrpc.Response{ID: id, Error: jsonrpc.ErrorObjectFor(duplexlink.AsProtocolError(err))})
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		s.writeResponse(jsonrpc.Response{ID: id, Error: jsonrpc.ErrorObjectFor(duplexlink.NewProtocolError(duplexlink.CategoryInternal, err))})
		return
	}
	s.writeResponse(jsonrpc.Response{ID: id, Result: raw})
}

func (s *Server[Req, Resp]) writeResponse(r jsonrpc.Response) {
	data, err := jsonrpc.MarshalResponse(r)
	if err != nil {
		s.cfg.Logger.Error("stdio server: marshal response", "error", err)
		return
	}
	s.writeLine(data)
}

func (s *Server[Req, Resp]) writeNotification(n jsonrpc.Notification) {
	data, err := jsonrpc.MarshalNotification(n)
	if err != nil {
		s.cfg.Logger.Error("stdio server: marshal notification", "error", err)
		return
	}
	s.writeLine(data)
}

func (s *Server[Req, Resp]) writeLine(data []byte) {
	data = append(data, '\n')
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.out.Write(data)
	if err != nil {
		s.cfg.Logger.Error("stdio server: write", "error", err)
	}
}
