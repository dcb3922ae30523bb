package server

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/denysvitali/filexchange/internal/models"
	"github.com/denysvitali/filexchange/pkg/metrics"
	"github.com/denysvitali/filexchange/pkg/storage"
	"github.com/denysvitali/filexchange/pkg/wire"
)

// ErrUnexpectedCommand is returned for response variants sent to the server
var ErrUnexpectedCommand = errors.New("unexpected command")

// Dispatcher maps each request to its filesystem action
type Dispatcher struct {
	root         *storage.Root
	reportErrors bool
	tracer       trace.Tracer
}

// NewDispatcher creates a dispatcher serving root. When reportErrors is
// false a failed request gets no reply at all.
func NewDispatcher(root *storage.Root, reportErrors bool) *Dispatcher {
	return &Dispatcher{
		root:         root,
		reportErrors: reportErrors,
		tracer:       otel.Tracer("filexchange"),
	}
}

// Dispatch executes cmd and returns the reply to write back, or nil when
// the command has no reply. A non-nil error may come with an
// ErrorResponse reply.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd models.Command) (models.Command, error) {
	ctx, span := d.tracer.Start(ctx, "dispatch")
	defer span.End()

	span.SetAttributes(attribute.String("command", cmd.Kind().String()))

	resp, err := d.dispatch(ctx, cmd)
	if err == nil {
		return resp, nil
	}

	span.RecordError(err)
	if errors.Is(err, ErrUnexpectedCommand) || errors.Is(err, wire.ErrUnknownCommand) {
		return nil, err
	}

	return d.Reject(cmd, err), err
}

// Reject counts a failed request and returns its ErrorResponse, or nil when
// failures are not reported. It also covers failures found after Dispatch,
// such as a reply too large to frame.
func (d *Dispatcher) Reject(cmd models.Command, err error) models.Command {
	metrics.RecordDispatchError(cmd.Kind())
	if !d.reportErrors {
		return nil
	}
	return models.NewErrorResponse(cmd, err)
}

func (d *Dispatcher) dispatch(ctx context.Context, cmd models.Command) (models.Command, error) {
	switch c := cmd.(type) {
	case models.FilesListRequest:
		entries, err := d.root.List(ctx)
		if err != nil {
			return nil, err
		}
		return models.FilesListResponse{Entries: entries}, nil

	case models.FileRequest:
		msg, err := d.root.FileMessage(ctx, c.Name)
		if err != nil {
			return nil, err
		}
		metrics.RecordDownload(len(msg.Content))
		return msg, nil

	case models.FileMessage:
		if err := d.root.Write(ctx, c.Name, c.Content); err != nil {
			return nil, err
		}
		metrics.RecordUpload(len(c.Content))
		return nil, nil

	case models.FilesListResponse, models.ErrorResponse:
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedCommand, c.Kind())

	default:
		return nil, fmt.Errorf("%w: %T", wire.ErrUnknownCommand, cmd)
	}
}
