package models

import (
	"io/fs"
	"time"
)

// DirectorySize is the Size reported for directory entries
const DirectorySize int64 = -1

// FileKind distinguishes regular files from directories
type FileKind uint8

const (
	FileKindFile      FileKind = 0
	FileKindDirectory FileKind = 1
)

// Valid reports whether k is a known kind
func (k FileKind) Valid() bool {
	return k == FileKindFile || k == FileKindDirectory
}

func (k FileKind) String() string {
	if k == FileKindDirectory {
		return "DIR"
	}
	return "FILE"
}

// FileEntry represents one entry of a root directory listing
type FileEntry struct {
	Name    string
	Kind    FileKind
	Size    int64
	ModTime time.Time
}

// IsDir reports whether the entry is a directory
func (e FileEntry) IsDir() bool {
	return e.Kind == FileKindDirectory
}

// NewFileEntry builds an entry from file info. Directories get the
// DirectorySize sentinel.
func NewFileEntry(info fs.FileInfo) FileEntry {
	entry := FileEntry{
		Name:    info.Name(),
		Kind:    FileKindFile,
		Size:    info.Size(),
		ModTime: info.ModTime().UTC(),
	}
	if info.IsDir() {
		entry.Kind = FileKindDirectory
		entry.Size = DirectorySize
	}
	return entry
}
