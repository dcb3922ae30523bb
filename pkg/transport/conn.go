package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/denysvitali/filexchange/internal/models"
	"github.com/denysvitali/filexchange/pkg/wire"
)

// State is the lifecycle stage of a connection
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// ErrNotOpen is returned when sending on a connection that is not OPEN
var ErrNotOpen = errors.New("connection is not open")

// Handler receives each decoded command in arrival order
type Handler func(ctx context.Context, cmd models.Command) error

// Conn carries framed commands over a net.Conn
type Conn struct {
	id     string
	raw    net.Conn
	reader *wire.Reader
	logger *logrus.Entry

	state atomic.Int32

	wmu    sync.Mutex
	writer *wire.Writer

	closeOnce sync.Once
	closeErr  error

	// Observer hooks, used for metrics
	OnReceive func(cmd models.Command)
	OnSend    func(cmd models.Command, n int64)
}

// NewConn wraps an established raw connection; the result is OPEN
func NewConn(raw net.Conn, maxFrameSize int64, logger *logrus.Logger) *Conn {
	id := uuid.NewString()
	c := &Conn{
		id:     id,
		raw:    raw,
		reader: wire.NewReader(bufio.NewReader(raw), maxFrameSize),
		writer: wire.NewWriter(raw, maxFrameSize),
		logger: logger.WithFields(logrus.Fields{
			"conn":   id,
			"remote": raw.RemoteAddr().String(),
		}),
	}
	c.state.Store(int32(StateOpen))
	return c
}

// ID returns the connection identifier used in logs
func (c *Conn) ID() string {
	return c.id
}

// RemoteAddr returns the peer address
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}

// Logger returns the connection-scoped logger
func (c *Conn) Logger() *logrus.Entry {
	return c.logger
}

// State returns the current lifecycle state
func (c *Conn) State() State {
	return State(c.state.Load())
}

// Send writes cmd as one frame. Concurrent calls are serialized.
func (c *Conn) Send(cmd models.Command) error {
	if c.State() != StateOpen {
		return ErrNotOpen
	}

	c.wmu.Lock()
	n, err := c.writer.WriteCommand(cmd)
	c.wmu.Unlock()
	if err != nil {
		if errors.Is(err, wire.ErrFrameTooLarge) {
			return err
		}
		c.logger.Warnf("Failed to send %s: %v", cmd.Kind(), err)
		_ = c.Close()
		return fmt.Errorf("failed to send %s: %w", cmd.Kind(), err)
	}

	if c.OnSend != nil {
		c.OnSend(cmd, n)
	}
	c.logger.Debugf("Sent %s (%d bytes)", cmd.Kind(), n)
	return nil
}

// ReadLoop decodes frames until the peer disconnects, a protocol error
// occurs or ctx is cancelled, and hands each command to handler before
// reading the next frame. Handler errors are logged and do not stop the
// loop. The connection is closed when ReadLoop returns; a clean disconnect
// returns nil.
func (c *Conn) ReadLoop(ctx context.Context, handler Handler) error {
	defer c.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = c.Close()
	})
	defer stop()

	for {
		cmd, err := c.reader.ReadCommand()
		if err != nil {
			if c.State() != StateOpen && ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
				c.logger.Debug("Peer disconnected")
				return nil
			}
			c.logger.Warnf("Closing connection: %v", err)
			return err
		}

		if c.OnReceive != nil {
			c.OnReceive(cmd)
		}
		c.logger.Debugf("Received %s", cmd.Kind())

		if err := handler(ctx, cmd); err != nil {
			c.logger.Errorf("Failed to handle %s: %v", cmd.Kind(), err)
		}
	}
}

// Close moves the connection through CLOSING to CLOSED and releases the
// socket. It is safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosing))
		c.closeErr = c.raw.Close()
		c.state.Store(int32(StateClosed))
	})
	return c.closeErr
}
