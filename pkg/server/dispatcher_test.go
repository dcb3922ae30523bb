package server

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denysvitali/filexchange/internal/models"
	"github.com/denysvitali/filexchange/pkg/storage"
)

func newTestDispatcher(t *testing.T, reportErrors bool) (*Dispatcher, *storage.Root) {
	t.Helper()
	root := storage.New(afero.NewMemMapFs())
	return NewDispatcher(root, reportErrors), root
}

func TestDispatchFilesListRequest(t *testing.T) {
	d, root := newTestDispatcher(t, true)
	ctx := context.Background()

	resp, err := d.Dispatch(ctx, models.FilesListRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.FilesListResponse{Entries: []models.FileEntry{}}, resp)

	require.NoError(t, root.Write(ctx, "a.txt", []byte("0123456789")))
	resp, err = d.Dispatch(ctx, models.FilesListRequest{})
	require.NoError(t, err)

	list, ok := resp.(models.FilesListResponse)
	require.True(t, ok)
	require.Len(t, list.Entries, 1)
	assert.Equal(t, "a.txt", list.Entries[0].Name)
	assert.Equal(t, int64(10), list.Entries[0].Size)
}

func TestDispatchFileRequest(t *testing.T) {
	d, root := newTestDispatcher(t, true)
	ctx := context.Background()
	require.NoError(t, root.Write(ctx, "a.txt", []byte("hello")))

	resp, err := d.Dispatch(ctx, models.FileRequest{Name: "a.txt"})
	require.NoError(t, err)
	assert.Equal(t, models.FileMessage{Name: "a.txt", Content: []byte("hello")}, resp)
}

func TestDispatchFileMessageWritesWithoutReply(t *testing.T) {
	d, root := newTestDispatcher(t, true)
	ctx := context.Background()

	resp, err := d.Dispatch(ctx, models.FileMessage{Name: "b.txt", Content: []byte("first version")})
	require.NoError(t, err)
	assert.Nil(t, resp)

	resp, err = d.Dispatch(ctx, models.FileMessage{Name: "b.txt", Content: []byte("second")})
	require.NoError(t, err)
	assert.Nil(t, resp)

	content, err := root.Read(ctx, "b.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), content)
}

func TestDispatchFailures(t *testing.T) {
	tests := []struct {
		name    string
		cmd     models.Command
		wantErr error
	}{
		{"missing file", models.FileRequest{Name: "missing.txt"}, os.ErrNotExist},
		{"traversal read", models.FileRequest{Name: "../etc/passwd"}, storage.ErrInvalidName},
		{"traversal write", models.FileMessage{Name: "../x", Content: []byte("x")}, storage.ErrInvalidName},
	}

	for _, tt := range tests {
		t.Run(tt.name+" reported", func(t *testing.T) {
			d, _ := newTestDispatcher(t, true)

			resp, err := d.Dispatch(context.Background(), tt.cmd)
			assert.ErrorIs(t, err, tt.wantErr)

			errResp, ok := resp.(models.ErrorResponse)
			require.True(t, ok, "expected ErrorResponse, got %T", resp)
			assert.Equal(t, tt.cmd.Kind(), errResp.Request)
			assert.NotEmpty(t, errResp.Message)
		})

		t.Run(tt.name+" silent", func(t *testing.T) {
			d, _ := newTestDispatcher(t, false)

			resp, err := d.Dispatch(context.Background(), tt.cmd)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, resp)
		})
	}
}

func TestDispatchMissingFileNamesRequest(t *testing.T) {
	d, _ := newTestDispatcher(t, true)

	resp, err := d.Dispatch(context.Background(), models.FileRequest{Name: "missing.txt"})
	require.Error(t, err)
	errResp, ok := resp.(models.ErrorResponse)
	require.True(t, ok)
	assert.Equal(t, "missing.txt", errResp.Name)
	assert.Equal(t, models.KindFileRequest, errResp.Request)
}

func TestDispatchRejectsResponses(t *testing.T) {
	d, _ := newTestDispatcher(t, true)

	for _, cmd := range []models.Command{
		models.FilesListResponse{},
		models.ErrorResponse{Request: models.KindFileRequest},
	} {
		resp, err := d.Dispatch(context.Background(), cmd)
		assert.ErrorIs(t, err, ErrUnexpectedCommand)
		assert.Nil(t, resp)
	}
}

func TestReject(t *testing.T) {
	cause := errors.New("reply too large")

	d, _ := newTestDispatcher(t, true)
	reply := d.Reject(models.FileRequest{Name: "big.bin"}, cause)
	assert.Equal(t, models.ErrorResponse{
		Request: models.KindFileRequest,
		Name:    "big.bin",
		Message: "reply too large",
	}, reply)

	d, _ = newTestDispatcher(t, false)
	assert.Nil(t, d.Reject(models.FileRequest{Name: "big.bin"}, cause))
}
