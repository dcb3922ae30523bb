// Package wire frames commands on a byte stream.
//
// A frame is a big-endian uint32 length followed by that many bytes: one tag
// byte naming the command variant and a MessagePack body.
//
// Empty and nil byte slices are the same on the wire: a FileMessage with no
// content decodes with a nil Content.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/ugorji/go/codec"

	"github.com/denysvitali/filexchange/internal/models"
)

// DefaultMaxFrameSize bounds a single frame (tag plus body)
const DefaultMaxFrameSize int64 = 200 * 1024 * 1024

const headerSize = 4

var (
	ErrFrameTooLarge  = errors.New("frame exceeds maximum size")
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownCommand = errors.New("unknown command tag")
)

var mh = newHandle()

func newHandle() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{}
	h.WriteExt = true
	return h
}

type wireEntry struct {
	Name    string `codec:"name"`
	Kind    uint8  `codec:"kind"`
	Size    int64  `codec:"size"`
	ModTime int64  `codec:"mtime"`
}

type wireFilesList struct {
	Entries []wireEntry `codec:"entries"`
}

type wireFileRequest struct {
	Name string `codec:"name"`
}

type wireFileMessage struct {
	Name    string `codec:"name"`
	Content []byte `codec:"content"`
}

type wireError struct {
	Request uint8  `codec:"request"`
	Name    string `codec:"name"`
	Message string `codec:"message"`
}

// Marshal encodes the body of cmd. The tag is returned separately so
// callers can write header, tag and body without copying the body.
func Marshal(cmd models.Command) (models.CommandKind, []byte, error) {
	var v interface{}
	switch c := cmd.(type) {
	case models.FilesListRequest:
		return c.Kind(), nil, nil
	case models.FilesListResponse:
		list := wireFilesList{Entries: make([]wireEntry, 0, len(c.Entries))}
		for _, e := range c.Entries {
			list.Entries = append(list.Entries, wireEntry{
				Name:    e.Name,
				Kind:    uint8(e.Kind),
				Size:    e.Size,
				ModTime: toUnixNano(e.ModTime),
			})
		}
		v = list
	case models.FileRequest:
		v = wireFileRequest{Name: c.Name}
	case models.FileMessage:
		v = wireFileMessage{Name: c.Name, Content: c.Content}
	case models.ErrorResponse:
		v = wireError{Request: uint8(c.Request), Name: c.Name, Message: c.Message}
	default:
		return 0, nil, fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}

	var body []byte
	if err := codec.NewEncoderBytes(&body, mh).Encode(v); err != nil {
		return 0, nil, fmt.Errorf("failed to encode %s: %w", cmd.Kind(), err)
	}
	return cmd.Kind(), body, nil
}

// Unmarshal decodes a command from its tag and body
func Unmarshal(kind models.CommandKind, body []byte) (models.Command, error) {
	switch kind {
	case models.KindFilesListRequest:
		if len(body) != 0 {
			return nil, fmt.Errorf("%w: %s carries %d unexpected bytes", ErrMalformedFrame, kind, len(body))
		}
		return models.FilesListRequest{}, nil
	case models.KindFilesListResponse:
		var list wireFilesList
		if err := decode(body, &list); err != nil {
			return nil, err
		}
		resp := models.FilesListResponse{}
		if len(list.Entries) > 0 {
			resp.Entries = make([]models.FileEntry, 0, len(list.Entries))
		}
		for _, e := range list.Entries {
			if !models.FileKind(e.Kind).Valid() {
				return nil, fmt.Errorf("%w: entry %q has unknown kind %d", ErrMalformedFrame, e.Name, e.Kind)
			}
			resp.Entries = append(resp.Entries, models.FileEntry{
				Name:    e.Name,
				Kind:    models.FileKind(e.Kind),
				Size:    e.Size,
				ModTime: fromUnixNano(e.ModTime),
			})
		}
		return resp, nil
	case models.KindFileRequest:
		var req wireFileRequest
		if err := decode(body, &req); err != nil {
			return nil, err
		}
		return models.FileRequest{Name: req.Name}, nil
	case models.KindFileMessage:
		var msg wireFileMessage
		if err := decode(body, &msg); err != nil {
			return nil, err
		}
		if len(msg.Content) == 0 {
			msg.Content = nil
		}
		return models.FileMessage{Name: msg.Name, Content: msg.Content}, nil
	case models.KindErrorResponse:
		var e wireError
		if err := decode(body, &e); err != nil {
			return nil, err
		}
		return models.ErrorResponse{
			Request: models.CommandKind(e.Request),
			Name:    e.Name,
			Message: e.Message,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCommand, uint8(kind))
	}
}

func decode(body []byte, v interface{}) error {
	if len(body) == 0 {
		return fmt.Errorf("%w: empty body", ErrMalformedFrame)
	}
	if err := codec.NewDecoderBytes(body, mh).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return nil
}

// Writer writes one frame per command. It is not safe for concurrent use.
type Writer struct {
	w   io.Writer
	max int64
}

func NewWriter(w io.Writer, maxFrameSize int64) *Writer {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Writer{w: w, max: maxFrameSize}
}

// WriteCommand encodes cmd and writes it as a single frame. Nothing is
// written if the frame would exceed the maximum size.
func (w *Writer) WriteCommand(cmd models.Command) (int64, error) {
	kind, body, err := Marshal(cmd)
	if err != nil {
		return 0, err
	}
	size := int64(len(body)) + 1
	if size > w.max {
		return 0, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrFrameTooLarge, kind, size, w.max)
	}

	var hdr [headerSize + 1]byte
	binary.BigEndian.PutUint32(hdr[:headerSize], uint32(size))
	hdr[headerSize] = byte(kind)

	bufs := net.Buffers{hdr[:], body}
	return bufs.WriteTo(w.w)
}

// Reader reads frames and returns decoded commands. A frame is fully
// buffered before it is decoded.
type Reader struct {
	r   io.Reader
	max int64
	hdr [headerSize]byte
}

func NewReader(r io.Reader, maxFrameSize int64) *Reader {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Reader{r: r, max: maxFrameSize}
}

// ReadCommand blocks until one full frame has arrived. It returns io.EOF
// when the stream ends cleanly on a frame boundary.
func (r *Reader) ReadCommand() (models.Command, error) {
	if _, err := io.ReadFull(r.r, r.hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: truncated header", ErrMalformedFrame)
		}
		return nil, err
	}

	size := int64(binary.BigEndian.Uint32(r.hdr[:]))
	if size == 0 {
		return nil, fmt.Errorf("%w: zero length", ErrMalformedFrame)
	}
	if size > r.max {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrFrameTooLarge, size, r.max)
	}

	frame := make([]byte, size)
	if _, err := io.ReadFull(r.r, frame); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: truncated body: %v", ErrMalformedFrame, io.ErrUnexpectedEOF)
		}
		return nil, err
	}

	kind := models.CommandKind(frame[0])
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCommand, frame[0])
	}
	return Unmarshal(kind, frame[1:])
}

func toUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
