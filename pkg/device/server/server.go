// Package server exposes a device.Device over TCP using the JBOD wire
// protocol.
//
// Every accepted connection is an independent session: it gets its own
// device.Device (mount state, write permission, seek cursor) over the
// store shared by all connections. Each connection is served by one
// goroutine in strict request/response alternation.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/marmos91/dittoraid/internal/logger"
	"github.com/marmos91/dittoraid/internal/telemetry"
	"github.com/marmos91/dittoraid/pkg/device"
	"github.com/marmos91/dittoraid/pkg/device/store"
	"github.com/marmos91/dittoraid/pkg/jbod"
	"github.com/marmos91/dittoraid/pkg/transport"
)

// Config holds the device server settings.
type Config struct {
	// Address is the "host:port" to listen on. Port 0 picks a free port.
	Address string

	// MaxConnections limits concurrent sessions. 0 means unlimited.
	MaxConnections int

	// ShutdownTimeout bounds how long Stop waits for sessions to drain
	// before closing their connections.
	ShutdownTimeout time.Duration
}

// Metrics records device server activity. A nil Metrics disables recording.
type Metrics interface {
	// ObserveRequest records one executed opcode.
	ObserveRequest(cmd jbod.Command, failed bool, duration time.Duration)

	// RecordConnections records the number of open sessions.
	RecordConnections(active int)
}

// Server is a TCP front end for the reference device.
type Server struct {
	cfg     Config
	store   store.Store
	metrics Metrics

	listenerMu sync.RWMutex
	listener   net.Listener
	ready      chan struct{}

	shutdownOnce sync.Once
	shutdown     chan struct{}
	done         chan struct{}

	conns     sync.Map // connection id -> net.Conn
	connCount atomic.Int32
}

// New creates a stopped server over s. Call Serve to start it.
func New(cfg Config, s store.Store, m Metrics) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	return &Server{
		cfg:      cfg,
		store:    s,
		metrics:  m,
		ready:    make(chan struct{}),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Serve listens on the configured address and serves until ctx is
// cancelled or Stop is called. It returns nil on a clean shutdown.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Address, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves sessions accepted from ln. The server takes
// ownership of ln.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	defer close(s.done)

	s.listenerMu.Lock()
	s.listener = ln
	s.listenerMu.Unlock()
	close(s.ready)
	if s.isShuttingDown() {
		// Stop ran before the listener was published.
		_ = ln.Close()
	}

	logger.Info("Device server listening", logger.KeyListenAddr, ln.Addr().String(),
		"max_connections", s.cfg.MaxConnections)

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("Device server shutdown signal received", logger.Err(ctx.Err()))
			s.initiateShutdown()
		case <-s.shutdown:
		}
	}()

	// Sessions do not see ctx; shutdown reaches them through read deadlines.
	var g errgroup.Group
	if s.cfg.MaxConnections > 0 {
		g.SetLimit(s.cfg.MaxConnections)
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return s.drain(&g)
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				s.initiateShutdown()
				return s.drain(&g)
			}
			logger.Debug("Error accepting device connection", logger.Err(err))
			continue
		}

		if tcp, ok := conn.(*net.TCPConn); ok {
			if err := tcp.SetNoDelay(true); err != nil {
				logger.Debug("Failed to set TCP_NODELAY", logger.Err(err))
			}
		}

		id := uuid.NewString()
		s.conns.Store(id, conn)
		s.recordConnections(s.connCount.Add(1))
		if s.isShuttingDown() {
			_ = conn.SetReadDeadline(time.Now())
		}

		logger.Debug("Device connection accepted",
			logger.ConnectionID(id), logger.KeyRemoteAddr, conn.RemoteAddr().String(),
			"active", s.connCount.Load())

		// Blocks while MaxConnections sessions are open.
		g.Go(func() error {
			defer func() {
				_ = conn.Close()
				s.conns.Delete(id)
				s.recordConnections(s.connCount.Add(-1))
				logger.Debug("Device connection closed", logger.ConnectionID(id), "active", s.connCount.Load())
			}()
			s.serveConn(id, conn)
			return nil
		})
	}
}

// serveConn runs one session until the peer disconnects, a protocol error
// occurs or the server shuts down.
func (s *Server) serveConn(id string, conn net.Conn) {
	lc := logger.NewLogContext(id)
	ctx := logger.WithContext(context.Background(), lc)
	dev := device.New(s.store)

	var in, out jbod.Block
	for {
		hdr, err := transport.ReadRequest(conn, &in)
		if err != nil {
			s.logReadError(ctx, err)
			return
		}

		start := time.Now()
		reqCtx, span := telemetry.StartDeviceSpan(ctx, hdr.Opcode.Command.String(), hdr.Word,
			telemetry.ConnectionID(id), telemetry.Disk(hdr.Opcode.Disk), telemetry.Block(hdr.Opcode.Block))

		var payloadIn *jbod.Block
		if hdr.HasPayload() {
			payloadIn = &in
		}
		var (
			payload bool
			execErr error
		)
		telemetry.ProfileOperation(reqCtx, hdr.Opcode.Command.String(), id, func(ctx context.Context) {
			payload, execErr = dev.Execute(ctx, hdr.Opcode, payloadIn, &out)
		})

		var payloadOut *jbod.Block
		if execErr == nil && payload {
			payloadOut = &out
		}
		failed := execErr != nil
		span.SetAttributes(telemetry.Failed(failed))

		if failed {
			logger.DebugCtx(ctx, "Opcode rejected",
				logger.Command(hdr.Opcode.Command.String()), logger.Opcode(hdr.Word), logger.Err(execErr))
		} else {
			logger.DebugCtx(ctx, "Opcode executed",
				logger.Command(hdr.Opcode.Command.String()), logger.Opcode(hdr.Word),
				logger.KeyPayload, payloadOut != nil)
		}

		err = transport.WriteResponse(conn, hdr.Word, failed, payloadOut)
		if err != nil {
			telemetry.RecordError(reqCtx, err)
		}
		span.End()

		if s.metrics != nil {
			s.metrics.ObserveRequest(hdr.Opcode.Command, failed, time.Since(start))
		}
		if err != nil {
			logger.WarnCtx(ctx, "Failed to send device response", logger.Err(err))
			return
		}
	}
}

func (s *Server) logReadError(ctx context.Context, err error) {
	switch {
	case errors.Is(err, io.EOF):
		logger.DebugCtx(ctx, "Device connection closed by peer")
	case s.isShuttingDown() && (errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, net.ErrClosed)):
		logger.DebugCtx(ctx, "Device connection interrupted by shutdown")
	default:
		logger.WarnCtx(ctx, "Failed to read device request", logger.Err(err))
	}
}

func (s *Server) isShuttingDown() bool {
	select {
	case <-s.shutdown:
		return true
	default:
		return false
	}
}

func (s *Server) recordConnections(active int32) {
	if s.metrics != nil {
		s.metrics.RecordConnections(int(active))
	}
}

// initiateShutdown stops accepting and interrupts blocked reads. Safe to
// call more than once.
func (s *Server) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdown)

		s.listenerMu.RLock()
		if s.listener != nil {
			if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				logger.Debug("Error closing device listener", logger.Err(err))
			}
		}
		s.listenerMu.RUnlock()

		// Sessions idle in ReadRequest wake up with a deadline error.
		deadline := time.Now().Add(100 * time.Millisecond)
		s.conns.Range(func(_, value any) bool {
			if conn, ok := value.(net.Conn); ok {
				_ = conn.SetReadDeadline(deadline)
			}
			return true
		})
	})
}

// drain waits for sessions to finish, closing their connections once the
// shutdown timeout expires.
func (s *Server) drain(g *errgroup.Group) error {
	logger.Info("Device server draining sessions", "active", s.connCount.Load())

	waited := make(chan error, 1)
	go func() { waited <- g.Wait() }()

	select {
	case err := <-waited:
		logger.Info("Device server stopped")
		return err
	case <-time.After(s.cfg.ShutdownTimeout):
		remaining := s.connCount.Load()
		logger.Warn("Device server shutdown timeout exceeded, closing connections", "active", remaining)
		s.conns.Range(func(_, value any) bool {
			if conn, ok := value.(net.Conn); ok {
				_ = conn.Close()
			}
			return true
		})
		<-waited
		return fmt.Errorf("device server shutdown timeout: %d sessions force-closed", remaining)
	}
}

// Stop shuts the server down and waits for Serve to return or ctx to
// expire.
func (s *Server) Stop(ctx context.Context) error {
	s.initiateShutdown()

	select {
	case <-s.ready:
	default:
		// Serve was never started.
		return nil
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready is closed once the server is accepting connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the listening address, or nil before Serve has started.
func (s *Server) Addr() net.Addr {
	s.listenerMu.RLock()
	defer s.listenerMu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ActiveConnections returns the number of open sessions.
func (s *Server) ActiveConnections() int {
	return int(s.connCount.Load())
}
