package wire

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/federated-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/metrics"
)

// Handler answers one request payload with one reply payload. The reply is
// always sent, so errors are expressed in the reply itself.
type Handler interface {
	ServeFrame(ctx context.Context, request []byte) []byte
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, request []byte) []byte

func (f HandlerFunc) ServeFrame(ctx context.Context, request []byte) []byte {
	return f(ctx, request)
}

// Server accepts TCP connections and runs a request/reply loop per
// connection until the peer disconnects or the server stops.
type Server struct {
	name     string
	handler  Handler
	metrics  *metrics.Metrics
	logger   *slog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
	stopped  bool
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics counts requests and open connections.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer creates a server named for logging and metrics.
func NewServer(name string, handler Handler, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		name:    name,
		handler: handler,
		logger:  slog.Default().With("component", name+"-server"),
		ctx:     ctx,
		cancel:  cancel,
		conns:   make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve listens on addr and blocks until Stop is called.
func (s *Server) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.ServeListener(ln)
}

// ServeListener accepts connections on ln and blocks until Stop is called.
func (s *Server) ServeListener(ln net.Listener) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.listener = ln
	s.mu.Unlock()
	s.logger.Info(s.name+" service listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("accept error", "error", err)
			continue
		}
		if !s.track(conn) {
			conn.Close()
			return nil
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// Addr returns the listening address once Serve has started, else nil.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.conns[conn] = struct{}{}
	if s.metrics != nil {
		s.metrics.WireConnections.Inc()
	}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conns[conn]; ok {
		delete(s.conns, conn)
		if s.metrics != nil {
			s.metrics.WireConnections.Dec()
		}
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)
	defer conn.Close()

	reader := bufio.NewReader(conn)
	for {
		request, err := ReadFrame(reader)
		if err != nil {
			if !errors.Is(err, apperrors.ErrConnectionClosed) || errors.Is(err, apperrors.ErrTruncatedFrame) {
				if s.ctx.Err() == nil {
					s.logger.Warn("reading request", "remote", conn.RemoteAddr().String(), "error", err)
				}
			}
			return
		}

		reply := s.handler.ServeFrame(s.ctx, request)
		if s.metrics != nil && len(reply) > 0 {
			s.metrics.WireRequestsTotal.WithLabelValues(s.name, string(reply[:1])).Inc()
		}
		if err := WriteFrame(conn, reply); err != nil {
			s.logger.Warn("writing reply", "remote", conn.RemoteAddr().String(), "error", err)
			return
		}
	}
}

// Stop closes the listener and every open connection, then waits for the
// connection goroutines to exit. Requests being handled see their context
// cancelled.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info(s.name + " service stopped")
}
