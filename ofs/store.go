package ofs

import (
	"fmt"
	"io"
)

// Store is a read-only, bounds-checked view over the sectors of an image.
// It covers sectors [0, End) so that header keys and parent links, which
// are absolute sector numbers, can be followed below the scan start.
type Store struct {
	data  []byte
	start int
	end   int
}

// Load copies the sectors needed for the window [start, end) out of image.
// It fails with ErrTruncatedImage when fewer sectors are available than the
// window is wide. A partially present window is clamped to the image.
func Load(image []byte, start, end int) (*Store, error) {
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: [%d, %d)", ErrInvalidWindow, start, end)
	}

	available := len(image) / SectorSize
	if available < end-start || (end > start && available <= start) {
		return nil, fmt.Errorf("%w: %d sectors available, window [%d, %d) needs %d",
			ErrTruncatedImage, available, start, end, end-start)
	}

	n := end
	if n > available {
		n = available
	}
	data := make([]byte, n*SectorSize)
	copy(data, image)

	return &Store{data: data, start: start, end: n}, nil
}

// Start returns the first sector of the scan window
func (s *Store) Start() int { return s.start }

// End returns one past the last sector of the scan window
func (s *Store) End() int { return s.end }

// Len returns the number of addressable sectors
func (s *Store) Len() int { return len(s.data) / SectorSize }

// Contains reports whether index addresses a sector in the store
func (s *Store) Contains(index int64) bool {
	return index >= 0 && index < int64(s.Len())
}

// Sector returns the sector at index
func (s *Store) Sector(index int) (Sector, error) {
	if !s.Contains(int64(index)) {
		return Sector{}, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, s.Len())
	}
	off := index * SectorSize
	return Sector{Index: index, raw: s.data[off : off+SectorSize : off+SectorSize]}, nil
}

// FileHeader decodes the header block at index
func (s *Store) FileHeader(index uint32) (*FileHeader, error) {
	sec, err := s.Sector(int(index))
	if err != nil {
		return nil, err
	}
	return sec.FileHeader()
}

// ReadAt implements io.ReaderAt over the stored sectors
func (s *Store) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset")
	}
	if off >= int64(len(s.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Size returns the number of stored bytes
func (s *Store) Size() int64 { return int64(len(s.data)) }

// Sector is one raw 512-byte block of the image
type Sector struct {
	Index int
	raw   []byte
}

// Bytes returns the raw sector contents. Callers must not modify them.
func (s Sector) Bytes() []byte { return s.raw }

// Header decodes the common block header
func (s Sector) Header() (BlockHeader, error) {
	var h BlockHeader
	if len(s.raw) < BlockHeaderSize {
		return h, fmt.Errorf("%w: sector %d holds %d bytes", ErrTruncatedImage, s.Index, len(s.raw))
	}
	err := unpack(s.raw[:BlockHeaderSize], &h)
	return h, err
}

// Kind classifies the sector
func (s Sector) Kind() BlockKind {
	return Classify(s)
}

// FileHeader decodes the sector as a header block
func (s Sector) FileHeader() (*FileHeader, error) {
	if s.Kind() != KindHeader {
		return nil, fmt.Errorf("%w: sector %d", ErrNotHeader, s.Index)
	}
	fh := new(FileHeader)
	if err := unpack(s.raw, fh); err != nil {
		return nil, err
	}
	return fh, nil
}

// DataBlock decodes the sector as a data block. DataSize is clamped to the
// payload capacity; the Clamped flag records that it happened.
func (s Sector) DataBlock() (*DataBlock, error) {
	h, err := s.Header()
	if err != nil {
		return nil, err
	}
	if KindOf(h.Type) != KindData {
		return nil, fmt.Errorf("%w: sector %d", ErrNotData, s.Index)
	}

	d := &DataBlock{Block: h}
	size := h.DataSize
	if size > PayloadCapacity {
		size = PayloadCapacity
		d.Clamped = true
	}
	d.Payload = s.raw[BlockHeaderSize : BlockHeaderSize+int(size)]
	return d, nil
}
