package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BanderoLio/PyMoviesAndCurrencies/internal/config"
	"github.com/BanderoLio/PyMoviesAndCurrencies/internal/request"
	"github.com/BanderoLio/PyMoviesAndCurrencies/internal/router"
)

// ErrBind is returned by Serve when the listening socket cannot be set up.
var ErrBind = errors.New("cannot bind listening socket")

// Dispatcher turns a parsed request into a result. *router.Router
// implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *request.Request) (router.Result, error)
}

// Server holds the state for our http server
type Server struct {
	listener   net.Listener
	dispatcher Dispatcher
	logger     *slog.Logger
	bufferSize int

	// sem bounds concurrent workers; nil leaves them unbounded.
	sem     chan struct{}
	workers sync.WaitGroup

	closed    atomic.Bool
	closeOnce sync.Once
	quit      chan struct{}
	done      chan struct{}
}

// Serve binds cfg's address and starts accepting connections in the
// background. Each connection is served by its own goroutine.
func Serve(cfg config.ServerConfig, dispatcher Dispatcher, logger *slog.Logger) (*Server, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	listener, err := listen(addr, cfg.Backlog)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrBind, addr, err)
	}

	s := &Server{
		listener:   listener,
		dispatcher: dispatcher,
		logger:     logger,
		bufferSize: cfg.BufferSize,
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	if cfg.MaxWorkers > 0 {
		s.sem = make(chan struct{}, cfg.MaxWorkers)
	}

	go s.listen()

	return s, nil
}

// Addr is the address the server is listening on.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Close stops the accept loop and closes the listening socket. Workers that
// are already running are not waited for.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.quit)
		err = s.listener.Close()
		<-s.done
	})
	return err
}

// Shutdown closes the server and then waits for running workers until ctx
// is done.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.Close()

	drained := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return err
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
}

// listen is the main accept loop
func (s *Server) listen() {
	defer close(s.done)

	var delay time.Duration
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				s.logger.Info("listener closed, server shutting down")
				return
			}
			delay = backoff(delay)
			s.logger.Warn("error accepting connection", "error", err, "retry_in", delay)
			select {
			case <-time.After(delay):
			case <-s.quit:
				return
			}
			continue
		}
		delay = 0

		if !s.acquire() {
			conn.Close()
			return
		}
		s.workers.Add(1)
		go s.handle(conn)
	}
}

func (s *Server) acquire() bool {
	if s.sem == nil {
		return true
	}
	select {
	case s.sem <- struct{}{}:
		return true
	case <-s.quit:
		return false
	}
}

func (s *Server) release() {
	if s.sem != nil {
		<-s.sem
	}
}

func (s *Server) handle(conn net.Conn) {
	defer s.workers.Done()
	defer s.release()

	newSession(conn, s.dispatcher, s.bufferSize, s.logger).run()
}

func backoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	if d *= 2; d > time.Second {
		d = time.Second
	}
	return d
}
