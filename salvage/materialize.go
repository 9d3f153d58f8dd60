// Package salvage reassembles files from classified OFS sectors and writes
// them below an output root.
package salvage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lvdlvd/ofsrescue/ofs"
)

var (
	// ErrDirectoryCreate is returned when a destination directory cannot be created
	ErrDirectoryCreate = errors.New("directory create failed")

	// ErrFileOpen is returned when a destination file cannot be opened or created
	ErrFileOpen = errors.New("file open failed")

	// ErrFileWrite is returned when a payload cannot be written or the file closed
	ErrFileWrite = errors.New("file write failed")
)

// Materializer writes block payloads into files below a root directory.
// Every call builds the full destination path itself and opens and closes
// the file, so calls for different files may run concurrently.
type Materializer struct {
	root string
}

// NewMaterializer returns a materializer rooted at dir
func NewMaterializer(dir string) *Materializer {
	return &Materializer{root: dir}
}

// Root returns the output root
func (m *Materializer) Root() string { return m.root }

// Destination returns the host path for a file under the root
func (m *Materializer) Destination(dirs []string, name string) string {
	parts := make([]string, 0, len(dirs)+2)
	parts = append(parts, m.root)
	parts = append(parts, dirs...)
	parts = append(parts, name)
	return filepath.Join(parts...)
}

// Materialize makes sure dirs exist under the root and writes payload into
// name at the offset implied by seq. Existing content is preserved; holes
// left by blocks not yet written read back as zeros.
func (m *Materializer) Materialize(dirs []string, name string, seq uint32, payload []byte) (err error) {
	if seq < 1 {
		return fmt.Errorf("%w: %d", ofs.ErrBadSequence, seq)
	}

	dst := m.Destination(dirs, name)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrDirectoryCreate, err)
	}

	f, err := os.OpenFile(dst, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFileOpen, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: %w", ErrFileWrite, cerr)
		}
	}()

	off := int64(seq-1) * ofs.PayloadCapacity
	if _, err := f.WriteAt(payload, off); err != nil {
		return fmt.Errorf("%w: %w", ErrFileWrite, err)
	}
	return nil
}
