package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/dmora/duplexlink"
)

// Server is the HTTP server of spec §4.5: gin supplies connection handling
// and graceful shutdown behind a single catch-all handler, since routing
// itself is the request converter's job (spec.md §4.1).
type Server[Req, Resp any] struct {
	handler  duplexlink.Handler[Req, Resp]
	reqConv  RequestConverter[Req]
	respConv ResponseConverter[Req, Resp]
	cfg      HttpServerConfig
	engine   *gin.Engine

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
}

// NewServer builds an HTTP Server dispatching to handler.
func NewServer[Req, Resp any](
	handler duplexlink.Handler[Req, Resp],
	reqConv RequestConverter[Req],
	respConv ResponseConverter[Req, Resp],
	opts ...HttpServerOption,
) *Server[Req, Resp] {
	gin.SetMode(gin.ReleaseMode)
	s := &Server[Req, Resp]{
		handler:  handler,
		reqConv:  reqConv,
		respConv: respConv,
		cfg:      ResolveHttpServerConfig(opts...),
		limiters: make(map[string]*rate.Limiter),
	}
	s.engine = gin.New()
	s.engine.Use(gin.Recovery())
	s.engine.NoRoute(s.handleRequest)
	return s
}

// BindAddr is the address Run listens on: loopback by default (resolved
// Open Question, spec §9), or all interfaces when configured with
// [WithAllInterfaces].
func (s *Server[Req, Resp]) BindAddr() string {
	host := "127.0.0.1"
	if s.cfg.AllInterfaces {
		host = "0.0.0.0"
	}
	return fmt.Sprintf("%s:%d", host, s.cfg.Port)
}

// Run listens on BindAddr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server[Req, Resp]) Run(ctx context.Context) error {
	httpSrv := &http.Server{Addr: s.BindAddr(), Handler: s.engine}
	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server[Req, Resp]) handleRequest(c *gin.Context) {
	requestID := c.GetHeader("X-Request-Id")
	if requestID == "" {
		requestID = uuid.New().String()
	}
	logger := s.cfg.Logger.With("request_id", requestID)

	if len(s.cfg.APIKeys) > 0 {
		key := c.GetHeader("X-API-Key")
		if !s.allow(key) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "429 Too Many Requests"})
			return
		}
		if !s.cfg.APIKeys[key] {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "401 Unauthorized"})
			return
		}
	}

	req, ok := s.reqConv.FromHTTPRequest(c.Request)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "404 Not Found"})
		return
	}

	callCtx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.ServiceTimeout)
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
		c.JSON(http.StatusInternalServerError, gin.H{"error": callCtx.Err().Error()})
		return
	}
	if err != nil {
		pe := duplexlink.AsProtocolError(err)
		logger.Error("duplexlink: handler error", "category", pe.Category.String(), "error", pe.Cause)
		c.JSON(pe.Category.HTTPStatus(), gin.H{"error": pe.Cause.Error()})
		return
	}

	if single, ok := resp.Single(); ok {
		status, body, err := s.respConv.ToHTTPResult(single)
		if err != nil {
			pe := duplexlink.AsProtocolError(err)
			c.JSON(pe.Category.HTTPStatus(), gin.H{"error": pe.Cause.Error()})
			return
		}
		if status == 0 {
			status = http.StatusOK
		}
		c.JSON(status, body)
		return
	}

	stream, _ := resp.Stream()
	s.writeSSE(c.Writer, stream)
}

func (s *Server[Req, Resp]) writeSSE(w http.ResponseWriter, stream <-chan duplexlink.Result[Resp]) {
	setSSEHeaders(w)
	sw, ok := newSSEWriter(w)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	for item := range stream {
		if item.IsErr() {
			payload := item.Err.Payload()
			_ = sw.writeFrame(NotificationPayload{Error: &payload})
			continue
		}
		body, err := s.respConv.ToHTTPEventPayload(item.Value)
		if err != nil {
			payload := duplexlink.AsProtocolError(err).Payload()
			_ = sw.writeFrame(NotificationPayload{Error: &payload})
			continue
		}
		raw, err := json.Marshal(body)
		if err != nil {
			payload := duplexlink.NewProtocolError(duplexlink.CategoryInternal, err).Payload()
			_ = sw.writeFrame(NotificationPayload{Error: &payload})
			continue
		}
		_ = sw.writeFrame(NotificationPayload{Result: raw})
	}
}

// allow throttles admission per API key (spec §4.5, [ADDED]): the limiter
// is created lazily so an unrecognised key doesn't pre-allocate state for
// every invalid guess forever (the subsequent APIKeys membership check
// still rejects it).
func (s *Server[Req, Resp]) allow(key string) bool {
	if !s.cfg.APIKeys[key] {
		return true
	}
	s.limiterMu.Lock()
	lim, ok := s.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(s.cfg.RateLimitPerSecond), s.cfg.RateBurst)
		s.limiters[key] = lim
	}
	s.limiterMu.Unlock()
	return lim.Allow()
}
