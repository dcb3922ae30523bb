// Package browser keeps the local and remote directory views of a client
// session and turns received commands into user-facing events.
package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/denysvitali/filexchange/internal/models"
	"github.com/denysvitali/filexchange/pkg/storage"
)

// EventKind tells what changed after a command was handled
type EventKind int

const (
	// EventRemoteListing means the remote view was replaced
	EventRemoteListing EventKind = iota
	// EventDownloaded means a file was stored locally and the local view refreshed
	EventDownloaded
	// EventNotice carries a failure for the user
	EventNotice
)

func (k EventKind) String() string {
	switch k {
	case EventRemoteListing:
		return "remote-listing"
	case EventDownloaded:
		return "downloaded"
	case EventNotice:
		return "notice"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is produced once per handled command
type Event struct {
	Kind    EventKind
	Name    string
	Entries []models.FileEntry
	Err     error
}

// Sender writes commands to the server
type Sender interface {
	Send(cmd models.Command) error
}

// Browser is the presentation side of a session. Handle is the callback
// given to the client; the other methods are called by the user-facing
// goroutine.
type Browser struct {
	local  *storage.Root
	sender Sender
	logger *logrus.Logger
	events chan Event

	mu     sync.Mutex
	remote []models.FileEntry
}

// New creates a browser over the local root. backlog bounds the number of
// events not yet consumed by Await before Handle blocks.
func New(local *storage.Root, sender Sender, logger *logrus.Logger, backlog int) *Browser {
	if backlog <= 0 {
		backlog = 1
	}
	return &Browser{
		local:  local,
		sender: sender,
		logger: logger,
		events: make(chan Event, backlog),
	}
}

// Handle applies one received command
func (b *Browser) Handle(cmd models.Command) {
	switch c := cmd.(type) {
	case models.FilesListResponse:
		b.mu.Lock()
		b.remote = c.Entries
		b.mu.Unlock()
		b.emit(Event{Kind: EventRemoteListing, Entries: c.Entries})

	case models.FileMessage:
		b.emit(b.store(c))

	case models.ErrorResponse:
		b.logger.Warnf("Server error: %v", c)
		b.emit(Event{Kind: EventNotice, Name: c.Name, Err: c})

	default:
		b.logger.Warnf("Ignoring unexpected %s from server", cmd.Kind())
	}
}

func (b *Browser) store(msg models.FileMessage) Event {
	ctx := context.Background()

	if err := b.local.Write(ctx, msg.Name, msg.Content); err != nil {
		b.logger.Errorf("Failed to store %s: %v", msg.Name, err)
		return Event{Kind: EventNotice, Name: msg.Name, Err: err}
	}

	entries, err := b.local.List(ctx)
	if err != nil {
		b.logger.Warnf("Stored %s but could not refresh the local view: %v", msg.Name, err)
	}
	return Event{Kind: EventDownloaded, Name: msg.Name, Entries: entries, Err: err}
}

func (b *Browser) emit(ev Event) {
	b.events <- ev
}

// Await returns the next event or ctx's error
func (b *Browser) Await(ctx context.Context) (Event, error) {
	select {
	case ev := <-b.events:
		return ev, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// Pending returns the events already produced without waiting
func (b *Browser) Pending() []Event {
	var out []Event
	for {
		select {
		case ev := <-b.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

// Refresh asks the server for its listing
func (b *Browser) Refresh() error {
	return b.sender.Send(models.FilesListRequest{})
}

// Download asks the server for name
func (b *Browser) Download(name string) error {
	if _, err := storage.ResolveName(name); err != nil {
		return err
	}
	return b.sender.Send(models.FileRequest{Name: name})
}

// Upload sends the local file name followed by a listing request so the
// remote view catches up
func (b *Browser) Upload(ctx context.Context, name string) error {
	msg, err := b.local.FileMessage(ctx, name)
	if err != nil {
		return err
	}
	if err := b.sender.Send(msg); err != nil {
		return err
	}
	return b.Refresh()
}

// LocalFiles lists the local root
func (b *Browser) LocalFiles(ctx context.Context) ([]models.FileEntry, error) {
	return b.local.List(ctx)
}

// RemoteFiles returns the last remote listing received
func (b *Browser) RemoteFiles() []models.FileEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.FileEntry, len(b.remote))
	copy(out, b.remote)
	return out
}
