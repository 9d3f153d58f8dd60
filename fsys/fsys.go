// Package fsys provides a read-only filesystem interface for salvaged
// content and the extent machinery that maps file offsets onto an image.
package fsys

import (
	"fmt"
	"io"
	"io/fs"
	"sort"
)

// Extent represents a mapping from logical file offset to physical image offset
type Extent struct {
	Logical  int64 `yaml:"logical"`  // Offset within the file
	Physical int64 `yaml:"physical"` // Offset within the image
	Length   int64 `yaml:"length"`   // Length of this extent
}

// End returns one past the last logical byte covered by the extent
func (e Extent) End() int64 {
	return e.Logical + e.Length
}

// FS represents a read-only filesystem built over a disk image.
// It embeds io/fs.FS and adds image-specific functionality.
type FS interface {
	fs.FS
	fs.ReadDirFS
	fs.StatFS

	// Type returns a short description of the filesystem
	Type() string

	// Close releases any resources held by the filesystem
	Close() error
}

// ExtentMapper is an optional interface for filesystems that can report
// the physical location of file data within the image
type ExtentMapper interface {
	// FileExtents returns the list of extents that map a file's logical
	// offsets to physical offsets in the image. Returns error if path
	// doesn't exist or is a directory.
	FileExtents(path string) ([]Extent, error)
}

// ExtentReaderAt wraps an io.ReaderAt and a list of extents to provide
// a view of a file's data without loading it entirely into memory.
// Offsets not covered by any extent read as zeros.
type ExtentReaderAt struct {
	r       io.ReaderAt
	extents []Extent
	size    int64
}

// NewExtentReaderAt creates a new ExtentReaderAt from a base reader and extents.
// Extents are expected not to overlap.
func NewExtentReaderAt(r io.ReaderAt, extents []Extent, size int64) *ExtentReaderAt {
	sorted := make([]Extent, len(extents))
	copy(sorted, extents)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Logical < sorted[j].Logical
	})

	return &ExtentReaderAt{r: r, extents: sorted, size: size}
}

// Size returns the logical size of the file
func (e *ExtentReaderAt) Size() int64 {
	return e.size
}

// Extents returns the sorted extent list
func (e *ExtentReaderAt) Extents() []Extent {
	return e.extents
}

// ReadAt implements io.ReaderAt
func (e *ExtentReaderAt) ReadAt(p []byte, off int64) (n int, err error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset")
	}
	if off >= e.size {
		return 0, io.EOF
	}

	// Limit read to file size
	short := false
	if off+int64(len(p)) > e.size {
		p = p[:e.size-off]
		short = true
	}

	totalRead := 0
	remaining := len(p)

	for remaining > 0 {
		ext, found := e.findExtent(off)
		if !found {
			// Gap in extents (block never seen) - fill with zeros
			gapEnd := e.nextExtentStart(off)
			if gapEnd > e.size {
				gapEnd = e.size
			}
			zeroLen := int(gapEnd - off)
			if zeroLen > remaining {
				zeroLen = remaining
			}
			clear(p[totalRead : totalRead+zeroLen])
			totalRead += zeroLen
			remaining -= zeroLen
			off += int64(zeroLen)
			continue
		}

		// Calculate how much we can read from this extent
		extentOffset := off - ext.Logical
		toRead := int(ext.Length - extentOffset)
		if toRead > remaining {
			toRead = remaining
		}

		nr, err := e.r.ReadAt(p[totalRead:totalRead+toRead], ext.Physical+extentOffset)
		totalRead += nr
		remaining -= nr
		off += int64(nr)

		if err != nil && err != io.EOF {
			return totalRead, err
		}
		if nr < toRead {
			return totalRead, io.EOF
		}
	}

	if short {
		return totalRead, io.EOF
	}
	return totalRead, nil
}

// findExtent finds the extent containing the given logical offset
func (e *ExtentReaderAt) findExtent(off int64) (Extent, bool) {
	for _, ext := range e.extents {
		if off >= ext.Logical && off < ext.End() {
			return ext, true
		}
	}
	return Extent{}, false
}

// nextExtentStart returns the start of the next extent after the given offset
func (e *ExtentReaderAt) nextExtentStart(off int64) int64 {
	for _, ext := range e.extents {
		if ext.Logical > off {
			return ext.Logical
		}
	}
	return e.size
}

// FileInfo provides extended file information
type FileInfo interface {
	fs.FileInfo

	// Inode returns the header sector that owns the entry (0 when synthesized)
	Inode() uint64
}
