// Package client holds the single outbound connection of an interactive
// session and hands received commands to the presentation goroutine.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"

	"github.com/denysvitali/filexchange/internal/models"
	"github.com/denysvitali/filexchange/pkg/config"
	"github.com/denysvitali/filexchange/pkg/transport"
)

var (
	// ErrNotConnected is returned by Send before Connect or after Close
	ErrNotConnected = errors.New("client is not connected")
	// ErrAlreadyConnected is returned by a second Connect
	ErrAlreadyConnected = errors.New("client is already connected")
)

// Handler is the single callback invoked for every received command
type Handler func(cmd models.Command)

// Client owns one connection to a server
type Client struct {
	config config.ClientConfig
	logger *logrus.Logger

	queue chan models.Command
	done  chan struct{}

	mu      sync.Mutex
	conn    *transport.Conn
	cancel  context.CancelFunc
	readErr error
}

// New creates a client; nothing is dialed until Connect
func New(cfg config.ClientConfig, logger *logrus.Logger) *Client {
	size := cfg.QueueSize
	if size <= 0 {
		size = 1
	}
	return &Client{
		config: cfg,
		logger: logger,
		queue:  make(chan models.Command, size),
		done:   make(chan struct{}),
	}
}

// Connect dials the server, retrying with exponential backoff up to the
// configured number of attempts, and starts the read loop. ctx bounds the
// dial only.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.mu.Unlock()

	dialer := &net.Dialer{Timeout: c.config.DialTimeout}
	attempts := c.config.DialAttempts
	if attempts <= 0 {
		attempts = 1
	}

	raw, err := backoff.Retry(ctx,
		func() (net.Conn, error) {
			return dialer.DialContext(ctx, "tcp", c.config.Address)
		},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warnf("Dial %s failed: %v; retrying in %s", c.config.Address, err, next)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.config.Address, err)
	}

	conn := transport.NewConn(raw, c.config.MaxFrameBytes, c.logger)
	loopCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		cancel()
		_ = conn.Close()
		return ErrAlreadyConnected
	}
	c.conn = conn
	c.cancel = cancel
	c.mu.Unlock()

	conn.Logger().Info("Connected")
	go c.readLoop(loopCtx, conn)
	return nil
}

func (c *Client) readLoop(ctx context.Context, conn *transport.Conn) {
	defer close(c.done)
	defer close(c.queue)

	err := conn.ReadLoop(ctx, func(ctx context.Context, cmd models.Command) error {
		select {
		case c.queue <- cmd:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		conn.Logger().Warnf("Connection lost: %v", err)
	} else {
		conn.Logger().Info("Disconnected")
	}

	c.mu.Lock()
	c.readErr = err
	c.mu.Unlock()
}

// Send writes cmd to the server
func (c *Client) Send(cmd models.Command) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	if err := conn.Send(cmd); err != nil {
		if errors.Is(err, transport.ErrNotOpen) {
			return ErrNotConnected
		}
		return err
	}
	return nil
}

// Commands exposes the ordered hand-off queue. It is closed when the
// connection ends.
func (c *Client) Commands() <-chan models.Command {
	return c.queue
}

// Run drains the queue on the calling goroutine, invoking handler once per
// command in arrival order. It returns when ctx is done or the connection
// ends; a clean disconnect returns nil.
func (c *Client) Run(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd, ok := <-c.queue:
			if !ok {
				return c.Err()
			}
			handler(cmd)
		}
	}
}

// Err returns the error that ended the read loop, if any
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if errors.Is(c.readErr, context.Canceled) {
		return nil
	}
	return c.readErr
}

// Done is closed once the read loop has exited
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// State reports the lifecycle state of the connection
func (c *Client) State() transport.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return transport.StateConnecting
	}
	return c.conn.State()
}

// Close tears the connection down and waits for the read loop to exit
func (c *Client) Close() error {
	c.mu.Lock()
	conn, cancel := c.conn, c.cancel
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	cancel()
	err := conn.Close()
	<-c.done
	return err
}
