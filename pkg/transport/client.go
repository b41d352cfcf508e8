package transport

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/dittoraid/internal/logger"
	"github.com/marmos91/dittoraid/internal/telemetry"
	"github.com/marmos91/dittoraid/pkg/jbod"
)

// Metrics records client round trips. A nil Metrics disables recording.
type Metrics interface {
	// ObserveRoundTrip records one request/response exchange. err is nil
	// on success and carries the jbod error code otherwise.
	ObserveRoundTrip(cmd jbod.Command, duration time.Duration, err error)

	// RecordBytes records bytes put on and taken off the wire by one exchange.
	RecordBytes(sent, received int)
}

// Client is one session with a device server. Exchanges are strictly
// request then response; the mutex keeps concurrent callers from
// interleaving packets on the stream.
type Client struct {
	mu      sync.Mutex
	conn    io.ReadWriteCloser
	id      string
	remote  string
	metrics Metrics
}

// NewClient wraps an established stream.
func NewClient(conn io.ReadWriteCloser, metrics Metrics) *Client {
	c := &Client{conn: conn, id: uuid.NewString(), metrics: metrics}
	if nc, ok := conn.(net.Conn); ok {
		c.remote = nc.RemoteAddr().String()
	}
	return c
}

// Dial connects to the device server at addr ("host:port").
func Dial(ctx context.Context, addr string, timeout time.Duration, metrics Metrics) (*Client, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanTransportDial)
	defer span.End()
	span.SetAttributes(telemetry.PeerAddr(addr))

	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		telemetry.RecordError(ctx, err)
		logger.ErrorCtx(ctx, "Device server connection failed", logger.KeyRemoteAddr, addr, logger.Err(err))
		return nil, jbod.WrapError(jbod.CodeConnectionAbsent, "dial", err, "connect to %s", addr)
	}

	c := NewClient(conn, metrics)
	logger.DebugCtx(ctx, "Connected to device server", logger.KeyRemoteAddr, addr, logger.ConnectionID(c.id))
	return c, nil
}

// ID returns the identifier logged with this connection.
func (c *Client) ID() string { return c.id }

// Connected reports whether the client holds an open stream.
func (c *Client) Connected() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close closes the stream. Later operations fail with ConnectionAbsent.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropLocked()
}

// dropLocked closes the stream and forgets it. Once an exchange is cut
// short the peer's reply may still arrive, so the stream cannot carry
// another request.
func (c *Client) dropLocked() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Operation performs one round trip: op (plus block for WriteBlock) goes
// out, one response comes back. When the response carries a block and
// block is non-nil the payload is copied into it. A response with the
// failure flag set yields a RemoteFailure error. A send or receive error,
// or a reply for a different opcode, closes the connection; later
// operations fail with ConnectionAbsent.
func (c *Client) Operation(ctx context.Context, op jbod.Opcode, block *jbod.Block) (err error) {
	start := time.Now()
	ctx, span := telemetry.StartTransportSpan(ctx, op.Command.String(), op.Pack(),
		telemetry.Disk(op.Disk), telemetry.Block(op.Block))
	defer func() {
		if err != nil {
			telemetry.RecordError(ctx, err)
		}
		span.End()
		if c != nil && c.metrics != nil {
			c.metrics.ObserveRoundTrip(op.Command, time.Since(start), err)
		}
	}()

	if c == nil {
		logger.ErrorCtx(ctx, "No device connection", logger.Command(op.Command.String()))
		return jbod.NewError(jbod.CodeConnectionAbsent, "operation", "no connection")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		logger.ErrorCtx(ctx, "No device connection", logger.Command(op.Command.String()))
		return jbod.NewError(jbod.CodeConnectionAbsent, "operation", "no connection")
	}
	if err := ctx.Err(); err != nil {
		return jbod.WrapError(jbod.CodeRemoteFailure, "operation", err, "%s", op.Command)
	}

	if nc, ok := c.conn.(net.Conn); ok {
		deadline, _ := ctx.Deadline()
		_ = nc.SetDeadline(deadline)
	}

	if err := SendRequest(c.conn, op, block); err != nil {
		logger.ErrorCtx(ctx, "Failed to send request",
			logger.Command(op.Command.String()), logger.Opcode(op.Pack()),
			logger.ConnectionID(c.id), logger.Err(err))
		_ = c.dropLocked()
		return jbod.WrapError(jbod.CodeRemoteFailure, "operation", err, "%s", op.Command)
	}

	var payload jbod.Block
	h, err := RecvResponse(c.conn, &payload)
	if err != nil {
		logger.ErrorCtx(ctx, "Failed to receive response",
			logger.Command(op.Command.String()), logger.Opcode(op.Pack()),
			logger.ConnectionID(c.id), logger.Err(err))
		_ = c.dropLocked()
		return jbod.WrapError(jbod.CodeRemoteFailure, "operation", err, "%s", op.Command)
	}
	if h.Word != op.Pack() {
		logger.ErrorCtx(ctx, "Response does not match request",
			logger.Command(op.Command.String()), logger.Opcode(op.Pack()),
			"response_opcode", h.Word, logger.ConnectionID(c.id))
		_ = c.dropLocked()
		return jbod.NewError(jbod.CodeRemoteFailure, "operation",
			"response opcode %#x does not match request %#x", h.Word, op.Pack())
	}

	if c.metrics != nil {
		c.metrics.RecordBytes(requestSize(op, block), responseSize(h))
	}

	span.SetAttributes(telemetry.Failed(h.Failed()))
	if h.HasPayload() && block != nil {
		*block = payload
	}
	if h.Failed() {
		logger.DebugCtx(ctx, "Device rejected opcode",
			logger.Command(op.Command.String()), logger.Disk(op.Disk), logger.Block(op.Block))
		return jbod.NewError(jbod.CodeRemoteFailure, "operation", "device rejected %s", op.Command)
	}
	return nil
}

func requestSize(op jbod.Opcode, block *jbod.Block) int {
	if op.CarriesPayload() && block != nil {
		return HeaderSize + jbod.BlockSize
	}
	return HeaderSize
}

func responseSize(h Header) int {
	if h.HasPayload() {
		return HeaderSize + jbod.BlockSize
	}
	return HeaderSize
}
