// Package server is the nREPL connection manager: it accepts TCP
// connections, runs one receive/dispatch/send loop per connection, and owns
// the startup signature line and port file that tooling uses to discover
// the endpoint.
package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"runtime/debug"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/xid"
	"pkt.systems/pslog"

	"github.com/zylisp/nrepl/operations"
	"github.com/zylisp/nrepl/protocol"
	"github.com/zylisp/nrepl/runtime"
	"github.com/zylisp/nrepl/session"
)

// Version is the server version reported by the describe operation.
const Version = "0.2.0"

const (
	// DefaultHost is the loopback bind address.
	DefaultHost = "127.0.0.1"
	// DefaultRecvBufferSize is the number of bytes requested per socket read.
	DefaultRecvBufferSize = 1024
	// DefaultPortFile is where the bound port is written for tooling.
	DefaultPortFile = ".nrepl-port"
)

// Config configures a server.
type Config struct {
	// Host is the bind address; defaults to loopback.
	Host string
	// Port is the bind port; 0 asks the OS for an ephemeral one.
	Port int
	// RecvBufferSize is the size of each socket read; defaults to 1024.
	RecvBufferSize int
	// PortFile is where the bound port number is written as plain text.
	// Empty selects DefaultPortFile; "-" disables the file.
	PortFile string
	// Runtime evaluates code on behalf of the operation handlers.
	Runtime runtime.Runtime
	// Logger receives structured server logs; nil means no logging.
	Logger pslog.Logger
	// Started, when non-nil, receives the server once it is listening.
	Started chan<- *Server
	// Announce receives the startup signature line; nil means stdout.
	// IDE tooling parses this line to discover the endpoint.
	Announce io.Writer
}

// Server is a thread-per-connection nREPL server. Each accepted connection
// gets its own goroutine, session, and framer; requests on one connection
// are processed strictly in arrival order.
type Server struct {
	cfg      Config
	logger   pslog.Logger
	handler  operations.Handler
	ops      *operations.Ops
	listener net.Listener
	conns    map[net.Conn]struct{}
	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New validates cfg and builds a server. The operation table and middleware
// chain are composed here, once.
func New(cfg Config) (*Server, error) {
	if cfg.Runtime == nil {
		return nil, errors.New("server: config requires a Runtime")
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.RecvBufferSize <= 0 {
		cfg.RecvBufferSize = DefaultRecvBufferSize
	}
	if cfg.PortFile == "" {
		cfg.PortFile = DefaultPortFile
	}
	logger := cfg.Logger
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	ops := operations.New(cfg.Runtime, Version)
	return &Server{
		cfg:     cfg,
		logger:  logger,
		ops:     ops,
		handler: operations.Chain(ops, logger),
		conns:   make(map[net.Conn]struct{}),
	}, nil
}

// Start binds the listener, announces the endpoint, and serves until ctx is
// cancelled. The announcement line on stdout has the exact shape IDE
// tooling parses:
//
//	nREPL server started on port <port> on host <host> - nrepl://<host>:<port>
func (s *Server) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	listener, err := net.Listen("tcp", net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)))
	if err != nil {
		return errors.Wrap(err, "nrepl: listen")
	}
	s.listener = listener
	port := listener.Addr().(*net.TCPAddr).Port

	if err := s.writePortFile(port); err != nil {
		listener.Close()
		return err
	}
	announce := s.cfg.Announce
	if announce == nil {
		announce = os.Stdout
	}
	fmt.Fprintf(announce, "nREPL server started on port %d on host %s - nrepl://%s:%d\n",
		port, s.cfg.Host, s.cfg.Host, port)
	s.logger.Info("server.started", "host", s.cfg.Host, "port", port)

	if s.cfg.Started != nil {
		s.cfg.Started <- s
	}

	s.wg.Add(1)
	go s.acceptLoop()

	<-s.ctx.Done()
	return s.ctx.Err()
}

// Stop closes the listener and all live connections, removes the port
// file, and waits for the connection goroutines to drain or ctx to expire.
func (s *Server) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.conns = make(map[net.Conn]struct{})
	s.mu.Unlock()

	s.removePortFile()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("server.stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

// Port returns the bound port, 0 before Start.
func (s *Server) Port() int {
	if s.listener == nil {
		return 0
	}
	return s.listener.Addr().(*net.TCPAddr).Port
}

func (s *Server) writePortFile(port int) error {
	if s.cfg.PortFile == "-" {
		return nil
	}
	if err := os.WriteFile(s.cfg.PortFile, []byte(strconv.Itoa(port)), 0o644); err != nil {
		return errors.Wrap(err, "nrepl: write port file")
	}
	return nil
}

func (s *Server) removePortFile() {
	if s.cfg.PortFile == "-" {
		return
	}
	os.Remove(s.cfg.PortFile)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				s.logger.Warn("server.accept_error", "error", err)
				continue
			}
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection owns one connection's receive/decode/dispatch/send
// cycle. The socket, framer, and session live exactly as long as the
// connection; the deferred cleanup closes the socket exactly once, whether
// the peer shut down, a read failed, or a fault escaped the loop.
func (s *Server) handleConnection(conn net.Conn) {
	logger := s.logger.With("conn", xid.New().String(), "peer", conn.RemoteAddr().String())
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("conn.fatal", "panic", r, "stack", string(debug.Stack()))
		}
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		logger.Debug("conn.closed")
	}()
	logger.Debug("conn.accepted")

	sess := session.New(s.cfg.Runtime.DefaultNS())
	framer := &protocol.Framer{}
	buf := make([]byte, s.cfg.RecvBufferSize)

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			for _, req := range framer.Feed(buf[:n]) {
				s.handleMessage(logger, conn, req, sess)
			}
		}
		if err == io.EOF {
			// Orderly shutdown from the peer. A partial frame still
			// sitting in the framer is dropped silently; this server
			// accepts that data loss.
			if framer.Pending() > 0 {
				framer.Discard()
			}
			return
		}
		if err != nil {
			select {
			case <-s.ctx.Done():
			default:
				logger.Error("conn.read_error", "error", err)
			}
			return
		}
	}
}

// handleMessage dispatches one request. A panic out of a handler is caught
// here so a single poisoned message cannot take the connection down with
// it; later messages on the same connection still run.
func (s *Server) handleMessage(logger pslog.Logger, conn net.Conn, req protocol.Message, sess *session.Session) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("conn.request_panic",
				"op", req.Op(),
				"id", req.ID(),
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	s.handler(req, sess, func(resp protocol.Message) {
		s.sendResponse(logger, conn, resp)
	})
}

// sendResponse encodes and writes one response. An unencodable response is
// logged and dropped; the connection keeps going.
func (s *Server) sendResponse(logger pslog.Logger, conn net.Conn, resp protocol.Message) {
	frame, err := protocol.Encode(resp)
	if err != nil {
		logger.Warn("conn.encode_error", "error", err)
		return
	}
	if _, err := conn.Write(frame); err != nil {
		logger.Warn("conn.write_error", "error", err)
	}
}
