package models

import (
	"fmt"
	"os"
	"path/filepath"
)

// CommandKind identifies a Command variant on the wire and in logs.
type CommandKind uint8

const (
	KindFilesListRequest  CommandKind = 1
	KindFilesListResponse CommandKind = 2
	KindFileRequest       CommandKind = 3
	KindFileMessage       CommandKind = 4
	KindErrorResponse     CommandKind = 5
)

// String returns the variant name
func (k CommandKind) String() string {
	switch k {
	case KindFilesListRequest:
		return "FilesListRequest"
	case KindFilesListResponse:
		return "FilesListResponse"
	case KindFileRequest:
		return "FileRequest"
	case KindFileMessage:
		return "FileMessage"
	case KindErrorResponse:
		return "ErrorResponse"
	default:
		return fmt.Sprintf("CommandKind(%d)", uint8(k))
	}
}

// Valid reports whether k names one of the known variants
func (k CommandKind) Valid() bool {
	return k >= KindFilesListRequest && k <= KindErrorResponse
}

// Command is one message exchanged over a connection. The set of
// implementations is closed: only the types in this package satisfy it.
type Command interface {
	Kind() CommandKind
	command()
}

// FilesListRequest asks the peer for a snapshot of its root directory
type FilesListRequest struct{}

// FilesListResponse carries the entries of a root directory at response time
type FilesListResponse struct {
	Entries []FileEntry
}

// FileRequest asks the peer for the content of one file
type FileRequest struct {
	Name string
}

// FileMessage carries a whole file. It answers a FileRequest and is also
// sent unprompted by the client to upload a file.
type FileMessage struct {
	Name    string
	Content []byte
}

// ErrorResponse is sent by the server when a request could not be served
type ErrorResponse struct {
	Request CommandKind
	Name    string
	Message string
}

func (FilesListRequest) Kind() CommandKind  { return KindFilesListRequest }
func (FilesListResponse) Kind() CommandKind { return KindFilesListResponse }
func (FileRequest) Kind() CommandKind       { return KindFileRequest }
func (FileMessage) Kind() CommandKind       { return KindFileMessage }
func (ErrorResponse) Kind() CommandKind     { return KindErrorResponse }

func (FilesListRequest) command()  {}
func (FilesListResponse) command() {}
func (FileRequest) command()       {}
func (FileMessage) command()       {}
func (ErrorResponse) command()     {}

// NewFileMessageFromPath reads the whole file at path into memory. Only the
// base name travels with the content.
func NewFileMessageFromPath(path string) (FileMessage, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return FileMessage{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return FileMessage{
		Name:    filepath.Base(path),
		Content: content,
	}, nil
}

// NewErrorResponse builds the failure reply for req
func NewErrorResponse(req Command, err error) ErrorResponse {
	resp := ErrorResponse{Request: req.Kind()}
	switch r := req.(type) {
	case FileRequest:
		resp.Name = r.Name
	case FileMessage:
		resp.Name = r.Name
	}
	if err != nil {
		resp.Message = err.Error()
	}
	return resp
}

// Error makes ErrorResponse usable as an error on the receiving side
func (e ErrorResponse) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s %q failed: %s", e.Request, e.Name, e.Message)
	}
	return fmt.Sprintf("%s failed: %s", e.Request, e.Message)
}
