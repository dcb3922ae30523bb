// Package storage exposes a flat root directory for listing and whole-file
// transfer.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/denysvitali/filexchange/internal/models"
)

// ErrInvalidName is returned for names that do not denote a direct entry
// of the root directory
var ErrInvalidName = errors.New("invalid file name")

// Root is a flat directory. It does no locking: two concurrent writers to
// the same name race and the last one wins.
type Root struct {
	fs     afero.Fs
	path   string
	tracer trace.Tracer
}

// Open creates dir if needed and returns a Root confined to it
func Open(dir string) (*Root, error) {
	if dir == "" {
		return nil, fmt.Errorf("root directory is not specified")
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root directory %s: %w", dir, err)
	}

	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root directory %s: %w", abs, err)
	}

	r := New(afero.NewBasePathFs(afero.NewOsFs(), abs))
	r.path = abs
	return r, nil
}

// New wraps an existing filesystem whose "/" is the root directory
func New(fs afero.Fs) *Root {
	return &Root{
		fs:     fs,
		path:   "/",
		tracer: otel.Tracer("filexchange"),
	}
}

// Path returns the root directory on disk
func (r *Root) Path() string {
	return r.path
}

// ResolveName validates a bare file name carried by a command
func ResolveName(name string) (string, error) {
	switch {
	case name == "", name == ".", name == "..":
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\`):
		return "", fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	case strings.ContainsRune(name, 0):
		return "", fmt.Errorf("%w: %q contains NUL", ErrInvalidName, name)
	case filepath.IsAbs(name) || filepath.VolumeName(name) != "":
		return "", fmt.Errorf("%w: %q is absolute", ErrInvalidName, name)
	}
	return "/" + name, nil
}

// List returns the direct entries of the root sorted by name
func (r *Root) List(ctx context.Context) ([]models.FileEntry, error) {
	_, span := r.tracer.Start(ctx, "list_files")
	defer span.End()

	infos, err := afero.ReadDir(r.fs, "/")
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list root directory: %w", err)
	}

	entries := make([]models.FileEntry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, models.NewFileEntry(info))
	}
	span.SetAttributes(attribute.Int("entries", len(entries)))
	return entries, nil
}

// Read returns the whole content of name
func (r *Root) Read(ctx context.Context, name string) ([]byte, error) {
	_, span := r.tracer.Start(ctx, "read_file")
	defer span.End()

	span.SetAttributes(attribute.String("name", name))

	p, err := ResolveName(name)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	content, err := afero.ReadFile(r.fs, p)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}

	span.SetAttributes(attribute.Int("size", len(content)))
	return content, nil
}

// Write creates name or truncates it, then writes content. The write is
// neither atomic nor resumable.
func (r *Root) Write(ctx context.Context, name string, content []byte) error {
	_, span := r.tracer.Start(ctx, "write_file")
	defer span.End()

	span.SetAttributes(
		attribute.String("name", name),
		attribute.Int("size", len(content)),
	)

	p, err := ResolveName(name)
	if err != nil {
		span.RecordError(err)
		return err
	}

	if err := afero.WriteFile(r.fs, p, content, 0644); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// FileMessage loads name into a FileMessage ready to send
func (r *Root) FileMessage(ctx context.Context, name string) (models.FileMessage, error) {
	content, err := r.Read(ctx, name)
	if err != nil {
		return models.FileMessage{}, err
	}
	return models.FileMessage{Name: name, Content: content}, nil
}
