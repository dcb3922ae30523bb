package browser

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/denysvitali/filexchange/internal/models"
)

// TimeLayout is the modification date format of listings
const TimeLayout = "2006-01-02 15:04:05"

// FormatSize renders an entry size: "[DIR]" for directories, whole KB from
// 1024 bytes up, bytes below.
func FormatSize(size int64) string {
	switch {
	case size == models.DirectorySize:
		return "[DIR]"
	case size >= 1024:
		return humanize.Comma(size/1024) + " KB"
	default:
		return humanize.Comma(size) + " bytes"
	}
}

// FormatTime renders a modification time in the local zone
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(TimeLayout)
}

// Render writes entries as an aligned table
func Render(w io.Writer, entries []models.FileEntry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tNAME\tSIZE\tMODIFIED")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Kind, e.Name, FormatSize(e.Size), FormatTime(e.ModTime))
	}
	return tw.Flush()
}
