package wrshare

import (
	"context"
	"net"
	"net/http"

	"github.com/sammck-go/asyncobj"
	"github.com/sammck-go/logger"
)

// HTTPServer wraps net/http's Server with asynchronous graceful shutdown, so
// it composes with the rest of the relay's lifecycle objects. The broker and
// the ingress adapter both listen through it.
type HTTPServer struct {
	*asyncobj.Helper
	srv      *http.Server
	listener net.Listener
}

// NewHTTPServer creates an HTTPServer that is not yet listening.
func NewHTTPServer(log logger.Logger) *HTTPServer {
	h := &HTTPServer{
		srv: &http.Server{},
	}
	h.Helper = asyncobj.NewHelper(log.ForkLogStr("httpserver"), h)
	return h
}

// HandleOnceShutdown will be called exactly once, in its own goroutine. It
// should take completionError as an advisory completion value, actually shut
// down, then return the real completion value.
func (h *HTTPServer) HandleOnceShutdown(completionErr error) error {
	var err error
	if h.listener != nil {
		err = h.listener.Close()
		if err != nil {
			h.DLogf("close of listener failed, ignoring: %s", err)
		}
	}
	if completionErr == nil {
		completionErr = err
	}
	return completionErr
}

// Addr returns the bound listen address, useful when the configured port was
// 0. Only valid after Listen has succeeded.
func (h *HTTPServer) Addr() string {
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}

// Listen binds the listen address without serving yet. Failing to bind is the
// one startup error that is fatal to a relay process, so callers surface it
// directly.
func (h *HTTPServer) Listen(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return h.Errorf("listen on %s failed: %s", addr, err)
	}
	h.listener = l
	return nil
}

// Serve runs the server on the previously bound listener, invoking handler
// for each request. It returns after shutdown, triggered either by cancelling
// ctx or by calling Close.
func (h *HTTPServer) Serve(ctx context.Context, handler http.Handler) error {
	err := h.DoOnceActivate(func() error {
		if h.listener == nil {
			return h.Errorf("serve called before listen")
		}
		shutdownOnContext(ctx, h)
		h.srv.Handler = handler
		go func() {
			h.StartShutdown(h.srv.Serve(h.listener))
		}()
		return nil
	}, true)
	if err != nil {
		return err
	}
	err = h.WaitShutdown()
	if err == http.ErrServerClosed {
		err = nil
	}
	return err
}

// ListenAndServe binds addr and serves until shutdown.
func (h *HTTPServer) ListenAndServe(ctx context.Context, addr string, handler http.Handler) error {
	if err := h.Listen(addr); err != nil {
		return err
	}
	return h.Serve(ctx, handler)
}

// Close completely shuts down the server, then returns the final completion
// code.
func (h *HTTPServer) Close() error {
	return h.Helper.Close()
}

// shutdownOnContext starts shutdown of s when ctx is cancelled, unless s has
// already finished shutting down by then.
func shutdownOnContext(ctx context.Context, s asyncobj.AsyncShutdowner) {
	go func() {
		select {
		case <-ctx.Done():
			s.StartShutdown(ctx.Err())
		case <-s.ShutdownDoneChan():
		}
	}()
}
