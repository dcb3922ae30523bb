package browser

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denysvitali/filexchange/internal/models"
	"github.com/denysvitali/filexchange/pkg/storage"
)

// loopbackSender answers requests from an in-memory remote root by calling
// the browser's callback on another goroutine, like the client read loop
type loopbackSender struct {
	remote  *storage.Root
	browser *Browser
	silent  bool
}

func (s *loopbackSender) Send(cmd models.Command) error {
	ctx := context.Background()
	var resp models.Command

	switch c := cmd.(type) {
	case models.FilesListRequest:
		entries, err := s.remote.List(ctx)
		if err != nil {
			return err
		}
		resp = models.FilesListResponse{Entries: entries}
	case models.FileRequest:
		msg, err := s.remote.FileMessage(ctx, c.Name)
		if err != nil {
			if s.silent {
				return nil
			}
			resp = models.NewErrorResponse(c, err)
		} else {
			resp = msg
		}
	case models.FileMessage:
		return s.remote.Write(ctx, c.Name, c.Content)
	}

	go s.browser.Handle(resp)
	return nil
}

func newTestShell(t *testing.T, silent bool) (*Shell, *bytes.Buffer, *storage.Root, *storage.Root) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	local := storage.New(afero.NewMemMapFs())
	remote := storage.New(afero.NewMemMapFs())
	sender := &loopbackSender{remote: remote, silent: silent}
	b := New(local, sender, logger, 8)
	sender.browser = b

	var out bytes.Buffer
	return NewShell(b, &out, 200*time.Millisecond), &out, local, remote
}

func TestShellListAndGet(t *testing.T) {
	sh, out, local, remote := newTestShell(t, false)
	ctx := context.Background()
	require.NoError(t, remote.Write(ctx, "a.txt", []byte("0123456789")))

	require.NoError(t, sh.Exec(ctx, "ls"))
	assert.Contains(t, out.String(), "Remote:")
	assert.Contains(t, out.String(), "a.txt")
	assert.Contains(t, out.String(), "10 bytes")

	out.Reset()
	require.NoError(t, sh.Exec(ctx, "get a.txt"))
	assert.Contains(t, out.String(), "Downloaded a.txt")

	content, err := local.Read(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("0123456789"), content)
}

func TestShellPut(t *testing.T) {
	sh, out, local, remote := newTestShell(t, false)
	ctx := context.Background()
	require.NoError(t, local.Write(ctx, "my notes.txt", []byte("notes")))

	require.NoError(t, sh.Exec(ctx, "put my notes.txt"))
	assert.Contains(t, out.String(), "Uploaded my notes.txt")
	assert.Contains(t, out.String(), "Remote:")

	content, err := remote.Read(ctx, "my notes.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("notes"), content)
}

func TestShellGetMissing(t *testing.T) {
	sh, out, _, _ := newTestShell(t, false)

	require.NoError(t, sh.Exec(context.Background(), "get missing.txt"))
	assert.Contains(t, out.String(), "missing.txt")
	assert.Contains(t, out.String(), "error:")
}

func TestShellGetMissingSilentServer(t *testing.T) {
	sh, _, _, _ := newTestShell(t, true)

	err := sh.Exec(context.Background(), "get missing.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no response from server")
}

func TestShellUsageErrors(t *testing.T) {
	sh, out, _, _ := newTestShell(t, false)
	ctx := context.Background()

	assert.Error(t, sh.Exec(ctx, "get"))
	assert.Error(t, sh.Exec(ctx, "put"))
	assert.Error(t, sh.Exec(ctx, "rm a.txt"))
	assert.NoError(t, sh.Exec(ctx, "   "))
	assert.ErrorIs(t, sh.Exec(ctx, "exit"), ErrQuit)

	require.NoError(t, sh.Exec(ctx, "help"))
	assert.Contains(t, out.String(), "get NAME")
}

func TestShellRun(t *testing.T) {
	sh, out, _, remote := newTestShell(t, false)
	ctx := context.Background()
	require.NoError(t, remote.Write(ctx, "a.txt", []byte("a")))

	in := strings.NewReader("ls\nlls\nbogus\nexit\nls\n")
	require.NoError(t, sh.Run(ctx, in, nil))

	assert.Contains(t, out.String(), "a.txt")
	assert.Contains(t, out.String(), `unknown command "bogus"`)
}

func TestShellRunStopsOnClose(t *testing.T) {
	sh, out, _, _ := newTestShell(t, false)

	closed := make(chan struct{})
	close(closed)

	pr, pw := io.Pipe()
	defer pw.Close()

	require.NoError(t, sh.Run(context.Background(), pr, closed))
	assert.Contains(t, out.String(), "Connection closed")
}
