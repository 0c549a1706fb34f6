// Package snapshot implements the working-copy snapshot policy: which
// files a snapshot may newly track, and the size guard protecting the
// store from accidentally committed large files.
package snapshot

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// FileInfo describes one candidate file for a snapshot.
type FileInfo struct {
	Path string
	Size uint64

	// Tracked is true if a previous snapshot already recorded this
	// path; tracked files bypass the size guard entirely.
	Tracked bool
}

// LargeFile is one file rejected by the size guard.
type LargeFile struct {
	Path string
	Size uint64
}

// NewFilesTooLargeError reports every new file over the configured
// limit, so the user sees the full list at once rather than fixing
// them one retry at a time.
type NewFilesTooLargeError struct {
	Files []LargeFile
	Limit uint64
}

func (e *NewFilesTooLargeError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "refusing to snapshot %d new file(s) larger than %s:",
		len(e.Files), humanize.Bytes(e.Limit))
	for _, f := range e.Files {
		fmt.Fprintf(&b, "\n  %s (%s)", f.Path, humanize.Bytes(f.Size))
	}
	b.WriteString("\nhint: set snapshot.max-new-file-size to raise the limit, or 0 to remove it")
	return b.String()
}

// CheckNewFiles applies the snapshot.max-new-file-size guard: new
// files strictly larger than limit are refused, all of them reported
// in one *NewFilesTooLargeError. A limit of zero admits everything,
// and files already tracked by an earlier snapshot are never refused,
// whatever their size.
func CheckNewFiles(files []FileInfo, limit uint64) error {
	if limit == 0 {
		return nil
	}

	var over []LargeFile
	for _, f := range files {
		if f.Tracked {
			continue
		}
		if f.Size > limit {
			over = append(over, LargeFile{Path: f.Path, Size: f.Size})
		}
	}
	if len(over) == 0 {
		return nil
	}
	return &NewFilesTooLargeError{Files: over, Limit: limit}
}
