package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"github.com/denysvitali/filexchange/internal/models"
	"github.com/denysvitali/filexchange/pkg/config"
	"github.com/denysvitali/filexchange/pkg/metrics"
	"github.com/denysvitali/filexchange/pkg/storage"
	"github.com/denysvitali/filexchange/pkg/telemetry"
	"github.com/denysvitali/filexchange/pkg/transport"
	"github.com/denysvitali/filexchange/pkg/wire"
)

// ErrServerClosed is returned by Serve after Shutdown
var ErrServerClosed = errors.New("server closed")

// Server accepts connections and runs one read loop per connection
type Server struct {
	config     *config.Config
	logger     *logrus.Logger
	root       *storage.Root
	dispatcher *Dispatcher
	workers    *pool.Pool
	startTime  time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	listener  net.Listener
	conns     map[string]*transport.Conn
	closed    bool
	serving   bool
	serveDone chan struct{}
}

// New creates a new server instance
func New(cfg *config.Config, logger *logrus.Logger) (*Server, error) {
	root, err := storage.Open(cfg.Server.RootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open root directory: %w", err)
	}

	workers := pool.New()
	if cfg.Server.Workers > 0 {
		workers = workers.WithMaxGoroutines(cfg.Server.Workers)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		config:     cfg,
		logger:     logger,
		root:       root,
		dispatcher: NewDispatcher(root, cfg.Server.ReportErrors),
		workers:    workers,
		startTime:  time.Now(),
		ctx:        ctx,
		cancel:     cancel,
		conns:      make(map[string]*transport.Conn),
		serveDone:  make(chan struct{}),
	}, nil
}

// Start binds the listening socket and serves until Shutdown
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Listen binds the configured address
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.config.Server.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Server.Addr(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = ln.Close()
		return ErrServerClosed
	}
	s.listener = ln
	s.logger.Infof("Listening on %s, serving %s", ln.Addr(), s.root.Path())
	return nil
}

// Addr returns the bound address, or nil before Listen
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until the listener is closed
func (s *Server) Serve() error {
	defer close(s.serveDone)

	s.mu.Lock()
	ln := s.listener
	if s.closed {
		s.mu.Unlock()
		return ErrServerClosed
	}
	s.serving = ln != nil
	s.mu.Unlock()
	if ln == nil {
		return fmt.Errorf("server is not listening")
	}

	for {
		raw, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.logger.Warnf("Accept error: %v; retrying", err)
				time.Sleep(50 * time.Millisecond)
				continue
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		conn := transport.NewConn(raw, s.config.Server.MaxFrameBytes, s.logger)
		conn.OnReceive = metrics.RecordFrameReceived
		conn.OnSend = metrics.RecordFrameSent
		if !s.track(conn) {
			_ = conn.Close()
			continue
		}

		s.workers.Go(func() {
			s.handleConn(conn)
		})
	}
}

func (s *Server) handleConn(conn *transport.Conn) {
	defer s.untrack(conn)

	metrics.ConnectionOpened()
	defer metrics.ConnectionClosed()

	log := conn.Logger()
	log.Info("Connection opened")

	report := s.config.Telemetry.Enabled
	err := conn.ReadLoop(s.ctx, func(ctx context.Context, cmd models.Command) error {
		if report {
			telemetry.ReportCommand(ctx, log, "received", cmd)
		}
		resp, err := s.dispatcher.Dispatch(ctx, cmd)
		if resp != nil {
			if report {
				telemetry.ReportCommand(ctx, log, "sent", resp)
			}
			if sendErr := conn.Send(resp); sendErr != nil {
				if errors.Is(sendErr, wire.ErrFrameTooLarge) {
					s.replyFailure(conn, cmd, sendErr)
				}
				return errors.Join(err, sendErr)
			}
		}
		return err
	})

	switch {
	case err == nil, errors.Is(err, context.Canceled):
		log.Info("Connection closed")
	case errors.Is(err, wire.ErrFrameTooLarge), errors.Is(err, wire.ErrMalformedFrame), errors.Is(err, wire.ErrUnknownCommand):
		metrics.RecordProtocolError()
		log.Warnf("Connection closed on protocol error: %v", err)
	default:
		log.Warnf("Connection closed: %v", err)
	}
}

// replyFailure answers cmd after its reply could not be framed
func (s *Server) replyFailure(conn *transport.Conn, cmd models.Command, cause error) {
	reply := s.dispatcher.Reject(cmd, cause)
	if reply == nil {
		return
	}
	if err := conn.Send(reply); err != nil {
		conn.Logger().Warnf("Failed to report %s failure: %v", cmd.Kind(), err)
	}
}

func (s *Server) track(conn *transport.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn.ID()] = conn
	return true
}

func (s *Server) untrack(conn *transport.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn.ID())
}

// ActiveConnections returns the number of open connections
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// StartTime returns when the server was created
func (s *Server) StartTime() time.Time {
	return s.startTime
}

// RootDir returns the served directory
func (s *Server) RootDir() string {
	return s.root.Path()
}

// Shutdown stops accepting, closes every connection and waits for the
// connection workers to finish or ctx to expire
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ln := s.listener
	serving := s.serving
	conns := make([]*transport.Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	s.cancel()
	if ln == nil {
		return nil
	}
	_ = ln.Close()
	for _, c := range conns {
		_ = c.Close()
	}

	done := make(chan struct{})
	go func() {
		if serving {
			<-s.serveDone
		}
		s.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
