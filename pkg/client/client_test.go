package client

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denysvitali/filexchange/internal/models"
	"github.com/denysvitali/filexchange/pkg/config"
	"github.com/denysvitali/filexchange/pkg/transport"
	"github.com/denysvitali/filexchange/pkg/wire"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testConfig(addr string) config.ClientConfig {
	return config.ClientConfig{
		Address:        addr,
		RequestTimeout: 2 * time.Second,
		DialTimeout:    time.Second,
		DialAttempts:   1,
		QueueSize:      4,
		MaxFrameBytes:  wire.DefaultMaxFrameSize,
	}
}

// startPeer accepts one connection and answers every FileRequest with the
// given replies, in order
func startPeer(t *testing.T, replies ...models.Command) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		raw, err := ln.Accept()
		if err != nil {
			return
		}
		conn := transport.NewConn(raw, wire.DefaultMaxFrameSize, testLogger())
		_ = conn.ReadLoop(context.Background(), func(ctx context.Context, cmd models.Command) error {
			if _, ok := cmd.(models.FileRequest); !ok {
				return nil
			}
			for _, r := range replies {
				if err := conn.Send(r); err != nil {
					return err
				}
			}
			return nil
		})
	}()

	return ln.Addr().String()
}

func TestSendBeforeConnect(t *testing.T) {
	c := New(testConfig("127.0.0.1:1"), testLogger())

	assert.ErrorIs(t, c.Send(models.FilesListRequest{}), ErrNotConnected)
	assert.Equal(t, transport.StateConnecting, c.State())
	assert.NoError(t, c.Close())
}

func TestConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	cfg := testConfig(addr)
	cfg.DialAttempts = 2
	c := New(cfg, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = c.Connect(ctx)
	assert.Error(t, err)
	assert.ErrorIs(t, c.Send(models.FilesListRequest{}), ErrNotConnected)
}

func TestRunDeliversInOrder(t *testing.T) {
	replies := []models.Command{
		models.FileMessage{Name: "a.txt", Content: []byte("a")},
		models.FilesListResponse{},
		models.FileMessage{Name: "b.txt", Content: []byte("b")},
	}
	addr := startPeer(t, replies...)

	c := New(testConfig(addr), testLogger())
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Close() })

	assert.Equal(t, transport.StateOpen, c.State())
	assert.ErrorIs(t, c.Connect(context.Background()), ErrAlreadyConnected)
	require.NoError(t, c.Send(models.FileRequest{Name: "x"}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var got []models.Command
	runCtx, stop := context.WithCancel(ctx)
	err := c.Run(runCtx, func(cmd models.Command) {
		got = append(got, cmd)
		if len(got) == len(replies) {
			stop()
		}
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, replies, got)
}

func TestCloseEndsRun(t *testing.T) {
	addr := startPeer(t)

	c := New(testConfig(addr), testLogger())
	require.NoError(t, c.Connect(context.Background()))

	result := make(chan error, 1)
	go func() {
		result <- c.Run(context.Background(), func(models.Command) {})
	}()

	require.NoError(t, c.Close())

	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Close")
	}
	assert.Equal(t, transport.StateClosed, c.State())
	assert.ErrorIs(t, c.Send(models.FilesListRequest{}), ErrNotConnected)
}

func TestPeerDisconnectEndsRun(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		raw, err := ln.Accept()
		if err == nil {
			_ = raw.Close()
		}
	}()

	c := New(testConfig(ln.Addr().String()), testLogger())
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	assert.NoError(t, c.Run(ctx, func(models.Command) {}))
	<-c.Done()
}
