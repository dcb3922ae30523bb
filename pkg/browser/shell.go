package browser

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

const shellHelp = `Commands:
  ls          refresh and show the remote directory
  lls         show the local directory
  get NAME    download NAME from the server
  put NAME    upload local NAME to the server
  help        show this help
  exit        leave the session
`

// ErrQuit is returned by Exec when the user asks to leave
var ErrQuit = errors.New("quit")

// Shell is a line-oriented front end over a Browser
type Shell struct {
	browser *Browser
	out     io.Writer
	timeout time.Duration
}

// NewShell writes to out and waits at most timeout for each server reply
func NewShell(b *Browser, out io.Writer, timeout time.Duration) *Shell {
	return &Shell{browser: b, out: out, timeout: timeout}
}

// Run reads commands from in until EOF, exit, ctx cancellation or the
// connection ending (closed is closed)
func (s *Shell) Run(ctx context.Context, in io.Reader, closed <-chan struct{}) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		s.flush()
		fmt.Fprint(s.out, "> ")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-closed:
			fmt.Fprintln(s.out, "\nConnection closed")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := s.Exec(ctx, line); err != nil {
				if errors.Is(err, ErrQuit) {
					return nil
				}
				fmt.Fprintf(s.out, "error: %v\n", err)
			}
		}
	}
}

// Exec runs one command line
func (s *Shell) Exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	// Names may contain spaces
	rest := strings.TrimSpace(line)
	name := strings.TrimSpace(strings.TrimPrefix(rest, fields[0]))

	switch fields[0] {
	case "ls":
		if err := s.browser.Refresh(); err != nil {
			return err
		}
		return s.awaitListing(ctx)

	case "lls":
		entries, err := s.browser.LocalFiles(ctx)
		if err != nil {
			return fmt.Errorf("failed to list local directory: %w", err)
		}
		return Render(s.out, entries)

	case "get":
		if name == "" {
			return fmt.Errorf("usage: get NAME")
		}
		if err := s.browser.Download(name); err != nil {
			return err
		}
		ev, err := s.await(ctx)
		if err != nil {
			return err
		}
		return s.show(ev)

	case "put":
		if name == "" {
			return fmt.Errorf("usage: put NAME")
		}
		if err := s.browser.Upload(ctx, name); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Uploaded %s\n", name)
		return s.awaitListing(ctx)

	case "help":
		fmt.Fprint(s.out, shellHelp)
		return nil

	case "exit", "quit":
		return ErrQuit

	default:
		return fmt.Errorf("unknown command %q, try help", fields[0])
	}
}

// awaitListing shows events until the remote listing arrives
func (s *Shell) awaitListing(ctx context.Context) error {
	for {
		ev, err := s.await(ctx)
		if err != nil {
			return err
		}
		if err := s.show(ev); err != nil {
			return err
		}
		if ev.Kind == EventRemoteListing {
			return nil
		}
	}
}

func (s *Shell) await(ctx context.Context) (Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ev, err := s.browser.Await(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return Event{}, fmt.Errorf("no response from server within %s", s.timeout)
	}
	return ev, err
}

// flush prints events that arrived while no command was waiting
func (s *Shell) flush() {
	for _, ev := range s.browser.Pending() {
		_ = s.show(ev)
	}
}

func (s *Shell) show(ev Event) error {
	switch ev.Kind {
	case EventRemoteListing:
		fmt.Fprintln(s.out, "Remote:")
		return Render(s.out, ev.Entries)
	case EventDownloaded:
		fmt.Fprintf(s.out, "Downloaded %s\n", ev.Name)
		if ev.Err != nil {
			fmt.Fprintf(s.out, "warning: local view not refreshed: %v\n", ev.Err)
			return nil
		}
		fmt.Fprintln(s.out, "Local:")
		return Render(s.out, ev.Entries)
	default:
		fmt.Fprintf(s.out, "error: %v\n", ev.Err)
		return nil
	}
}
