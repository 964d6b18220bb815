package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/BanderoLio/PyMoviesAndCurrencies/internal/pages"
	"github.com/BanderoLio/PyMoviesAndCurrencies/internal/request"
	"github.com/BanderoLio/PyMoviesAndCurrencies/internal/response"
	"github.com/BanderoLio/PyMoviesAndCurrencies/internal/router"
)

// Failure names the ways a connection can end other than a normal response.
// It is attached to log records as the "failure" attribute.
type Failure string

const (
	ConnectionClosedEarly Failure = "ConnectionClosedEarly"
	MalformedEncoding     Failure = "MalformedEncoding"
	MalformedRequestLine  Failure = "MalformedRequestLine"
	RouteNotFound         Failure = "RouteNotFound"
	HandlerFailure        Failure = "HandlerFailure"
	WriteFailure          Failure = "WriteFailure"
	BindFailure           Failure = "BindFailure"
)

// session serves exactly one request on one connection. It is owned by a
// single goroutine and never shared.
type session struct {
	conn       net.Conn
	dispatcher Dispatcher
	logger     *slog.Logger
	buf        []byte
	start      time.Time

	req       *request.Request
	res       router.Result
	responded bool
	closed    bool
}

// connState is one step of the connection state machine; it returns the
// next step, or nil once the connection is closed.
type connState func(*session) connState

func newSession(conn net.Conn, dispatcher Dispatcher, bufferSize int, logger *slog.Logger) *session {
	return &session{
		conn:       conn,
		dispatcher: dispatcher,
		logger: logger.With(
			"conn", uuid.NewString(),
			"peer", peerAddr(conn),
		),
		buf:   make([]byte, bufferSize),
		start: time.Now(),
	}
}

func peerAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}

// run drives the state machine. Whatever happens, the connection is closed
// exactly once before run returns.
func (s *session) run() {
	defer s.close()
	defer s.recoverPanic()

	s.logger.Debug("client connected")
	for state := readRequest; state != nil; {
		state = state(s)
	}
}

// readRequest does a single read. A request larger than the buffer is
// truncated; a peer that sends nothing gets no response.
func readRequest(s *session) connState {
	n, err := s.conn.Read(s.buf)
	if n == 0 {
		attrs := []any{"failure", ConnectionClosedEarly}
		if err != nil && !errors.Is(err, io.EOF) {
			attrs = append(attrs, "error", err)
		}
		s.logger.Debug("connection closed before request", attrs...)
		return closeConn
	}
	if err != nil && !errors.Is(err, io.EOF) {
		s.logger.Debug("read returned data and an error", "bytes", n, "error", err)
	}
	s.buf = s.buf[:n]
	return parseRequest
}

func parseRequest(s *session) connState {
	req, err := request.Parse(s.buf)
	if err != nil {
		s.logger.Warn("cannot decode request", "failure", MalformedEncoding, "error", err)
		s.res = router.Result{
			StatusCode: response.StatusBadRequest,
			StatusText: response.StatusText(response.StatusBadRequest),
			Body:       pages.BadRequest,
		}
		return writeResponse
	}
	if req.IsEmpty() {
		s.logger.Info("malformed request line", "failure", MalformedRequestLine)
	}
	s.req = req
	return routeRequest
}

func routeRequest(s *session) connState {
	res, err := s.dispatcher.Dispatch(context.Background(), s.req)
	if err != nil {
		s.logger.Error("handler failed", "failure", HandlerFailure, "path", s.req.Path, "error", err)
		s.res = internalError()
		return writeResponse
	}
	if res.StatusCode == response.StatusNotFound {
		s.logger.Info("route not found", "failure", RouteNotFound, "path", s.req.Path)
	}
	s.res = res
	return writeResponse
}

func writeResponse(s *session) connState {
	s.responded = true
	if _, err := s.conn.Write(response.Build(s.res.StatusCode, s.res.StatusText, s.res.Body)); err != nil {
		s.logger.Warn("cannot write response", "failure", WriteFailure, "error", err)
		return closeConn
	}

	attrs := []any{"status", int(s.res.StatusCode), "duration", time.Since(s.start)}
	if s.req != nil {
		attrs = append(attrs, "method", s.req.Method, "path", s.req.Path)
	}
	s.logger.Info("response sent", attrs...)
	return closeConn
}

func closeConn(s *session) connState {
	s.close()
	return nil
}

// recoverPanic is the backstop for anything that escapes the states. If no
// response went out yet it makes one attempt at a 500; a failure of that
// write is dropped because the connection is unusable anyway.
func (s *session) recoverPanic() {
	p := recover()
	if p == nil {
		return
	}
	s.logger.Error("panic while serving connection",
		"failure", HandlerFailure,
		"panic", p,
		"stack", string(debug.Stack()),
	)
	if s.responded || s.closed {
		return
	}
	s.responded = true
	res := internalError()
	if _, err := s.conn.Write(response.Build(res.StatusCode, res.StatusText, res.Body)); err != nil {
		s.logger.Debug("cannot write error response", "failure", WriteFailure, "error", err)
	}
}

func (s *session) close() {
	if s.closed {
		return
	}
	s.closed = true
	if err := s.conn.Close(); err != nil {
		s.logger.Debug("close failed", "error", err)
		return
	}
	s.logger.Debug("client disconnected")
}

func internalError() router.Result {
	return router.Result{
		StatusCode: response.StatusInternalServerError,
		StatusText: response.StatusText(response.StatusInternalServerError),
		Body:       pages.InternalError,
	}
}
