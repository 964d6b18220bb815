package server

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BanderoLio/PyMoviesAndCurrencies/internal/config"
	"github.com/BanderoLio/PyMoviesAndCurrencies/internal/request"
	"github.com/BanderoLio/PyMoviesAndCurrencies/internal/router"
	"github.com/BanderoLio/PyMoviesAndCurrencies/internal/slogutil"
)

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		Host:       "127.0.0.1",
		Port:       0,
		BufferSize: 4096,
		Backlog:    5,
	}
}

func startServer(t *testing.T, cfg config.ServerConfig, d Dispatcher) *Server {
	t.Helper()
	s, err := Serve(cfg, d, slogutil.NewDiscardLogger())
	if err != nil {
		t.Fatalf("Serve() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// send writes raw on a fresh connection and reads until the server closes it.
func send(addr, raw string) (string, error) {
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	if _, err := io.WriteString(conn, raw); err != nil {
		return "", err
	}
	out, err := io.ReadAll(conn)
	return string(out), err
}

func roundTrip(t *testing.T, addr, raw string) string {
	t.Helper()
	out, err := send(addr, raw)
	if err != nil {
		t.Fatalf("round trip %q: %v", raw, err)
	}
	return out
}

func TestServeOverTCP(t *testing.T) {
	s := startServer(t, testServerConfig(), testRouter())
	addr := s.Addr().String()

	tests := []struct {
		raw    string
		status string
		body   string
	}{
		{"GET / HTTP/1.1\r\n\r\n", "HTTP/1.1 200 OK", "<!DOCTYPE html>"},
		{"GET /nope HTTP/1.1\r\n\r\n", "HTTP/1.1 404 Not Found", "/nope"},
		{"GET /exchange?currency=EUR HTTP/1.1\r\n\r\n", "HTTP/1.1 200 OK", "<p>1 EUR = 100 RUB</p>"},
		{"GET /\xff HTTP/1.1\r\n\r\n", "HTTP/1.1 400 Bad Request", "400 - Bad Request"},
	}

	for _, tt := range tests {
		out := roundTrip(t, addr, tt.raw)
		if !strings.HasPrefix(out, tt.status+"\r\n") {
			t.Errorf("%q: response starts %q, want %q", tt.raw, firstLine(out), tt.status)
		}
		if !strings.Contains(out, tt.body) {
			t.Errorf("%q: response missing %q", tt.raw, tt.body)
		}
	}
}

func TestServeConcurrentClients(t *testing.T) {
	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(2)

	slow := renderFunc(func(context.Context, request.Query) string {
		started.Done()
		<-release
		return "slow"
	})
	s := startServer(t, testServerConfig(), router.New(slow, slow))
	addr := s.Addr().String()

	results := make(chan string, 2)
	for i := 0; i < 2; i++ {
		go func() {
			out, _ := send(addr, "GET /movie HTTP/1.1\r\n\r\n")
			results <- out
		}()
	}

	// Both slow workers are parked; a third client must still be served.
	waitOrFail(t, &started)
	fast := roundTrip(t, addr, "GET /movies HTTP/1.1\r\n\r\n")
	if !strings.HasPrefix(fast, "HTTP/1.1 200 OK") {
		t.Errorf("fast response = %q", firstLine(fast))
	}

	close(release)
	for i := 0; i < 2; i++ {
		if out := <-results; !strings.HasSuffix(out, "slow") {
			t.Errorf("slow response = %q", out)
		}
	}
}

func TestServeEmptyConnection(t *testing.T) {
	s := startServer(t, testServerConfig(), testRouter())

	conn, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.(*net.TCPConn).CloseWrite()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	out, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("got %q, want no response", out)
	}
}

func TestCloseStopsAccepting(t *testing.T) {
	s, err := Serve(testServerConfig(), testRouter(), slogutil.NewDiscardLogger())
	if err != nil {
		t.Fatal(err)
	}
	addr := s.Addr().String()

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	if conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond); err == nil {
		conn.Close()
		t.Error("dial succeeded after Close")
	}
}

func TestServeBindFailure(t *testing.T) {
	first := startServer(t, testServerConfig(), testRouter())
	_, port, _ := net.SplitHostPort(first.Addr().String())

	// A listening port cannot be bound twice even with SO_REUSEADDR.
	cfg := testServerConfig()
	cfg.Port = mustAtoi(t, port)
	_, err := Serve(cfg, testRouter(), slogutil.NewDiscardLogger())
	if !errors.Is(err, ErrBind) {
		t.Errorf("Serve() error = %v, want ErrBind", err)
	}
}

func TestServeRebindAfterClose(t *testing.T) {
	first, err := Serve(testServerConfig(), testRouter(), slogutil.NewDiscardLogger())
	if err != nil {
		t.Fatal(err)
	}
	addr := first.Addr().String()
	_, port, _ := net.SplitHostPort(addr)

	// Leave a connection in TIME_WAIT on the server side.
	roundTrip(t, addr, "GET / HTTP/1.1\r\n\r\n")
	first.Close()

	cfg := testServerConfig()
	cfg.Port = mustAtoi(t, port)
	second, err := Serve(cfg, testRouter(), slogutil.NewDiscardLogger())
	if err != nil {
		t.Fatalf("rebind failed: %v", err)
	}
	second.Close()
}

func TestShutdownDrainsBoundedWorkers(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	slow := renderFunc(func(context.Context, request.Query) string {
		entered <- struct{}{}
		<-release
		return "done"
	})

	cfg := testServerConfig()
	cfg.MaxWorkers = 1
	s, err := Serve(cfg, router.New(slow, slow), slogutil.NewDiscardLogger())
	if err != nil {
		t.Fatal(err)
	}

	result := make(chan string, 1)
	go func() {
		out, _ := send(s.Addr().String(), "GET /exchange HTTP/1.1\r\n\r\n")
		result <- out
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Shutdown() with a busy worker = %v, want deadline exceeded", err)
	}

	close(release)
	if err := s.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() after release = %v", err)
	}
	if out := <-result; !strings.HasSuffix(out, "done") {
		t.Errorf("in-flight response = %q", out)
	}
}

func TestBackoff(t *testing.T) {
	d := backoff(0)
	if d != 5*time.Millisecond {
		t.Errorf("first backoff = %v", d)
	}
	for i := 0; i < 20; i++ {
		d = backoff(d)
	}
	if d != time.Second {
		t.Errorf("backoff cap = %v, want 1s", d)
	}
}

func waitOrFail(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for workers")
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\r\n")
	return line
}

func mustAtoi(t *testing.T, s string) int {
	t.Helper()
	n, err := strconv.Atoi(s)
	if err != nil {
		t.Fatalf("bad port %q: %v", s, err)
	}
	return n
}
