// Package ofs decodes the sector layouts of the Amiga Old File System and
// rebuilds file paths by following the parent links in file-header blocks.
//
// Nothing here trusts the volume's own bookkeeping (bitmaps, hash tables,
// checksums). Every sector is interpreted on its own through its type tag.
package ofs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/go-restruct/restruct"
)

// Geometry and layout constants
const (
	SectorSize      = 512
	BlockHeaderSize = 24
	PayloadCapacity = SectorSize - BlockHeaderSize // 488 bytes of file data per OFS data block
	MaxNameLength   = 30

	DefaultStartSector  = 513 // end of the Kickstart boot area
	DefaultEndSector    = 1760
	DefaultRootSector   = 880
	DefaultMaxPathDepth = 256
)

// Primary type tags stored in the first longword of a block
const (
	TypeHeader uint32 = 2
	TypeData   uint32 = 8
	TypeList   uint32 = 16
)

// Secondary type tags stored in the last longword of a header block
const (
	SecTypeRoot    int32 = 1
	SecTypeUserDir int32 = 2
	SecTypeFile    int32 = -3
)

// BlockKind is the semantic classification of a sector
type BlockKind int

const (
	KindOther BlockKind = iota
	KindHeader
	KindData
	KindList
)

func (k BlockKind) String() string {
	switch k {
	case KindHeader:
		return "header"
	case KindData:
		return "data"
	case KindList:
		return "list"
	default:
		return "other"
	}
}

// KindOf maps a primary type tag to a BlockKind. Unknown tags are KindOther.
func KindOf(tag uint32) BlockKind {
	switch tag {
	case TypeHeader:
		return KindHeader
	case TypeData:
		return KindData
	case TypeList:
		return KindList
	default:
		return KindOther
	}
}

// BlockHeader is the 24-byte prefix shared by header, data and list blocks.
// HeaderKey and SeqNum only mean something on data and list blocks.
type BlockHeader struct {
	Type      uint32
	HeaderKey uint32
	SeqNum    uint32
	DataSize  uint32
	NextData  uint32
	Checksum  uint32 // never validated
}

// FileHeader is the overlay of a header block (root, directory or file).
type FileHeader struct {
	Block      BlockHeader
	HashTable  [72]uint32
	Unused1    uint32
	UID        uint16
	GID        uint16
	Protect    uint32
	ByteSize   uint32
	CommentLen uint8
	Comment    [79]byte
	Unused2    [12]byte
	Days       uint32
	Mins       uint32
	Ticks      uint32
	NameLen    uint8
	RawName    [MaxNameLength]byte
	Unused3    uint8
	Unused4    uint32
	RealEntry  uint32
	NextLink   uint32
	Unused5    [5]uint32
	HashChain  uint32
	Parent     uint32
	Extension  uint32
	SecType    int32
}

// Name returns the raw node name. The length byte bounds it when it is
// plausible; either way the name ends at the first NUL, like the C string
// the on-disk field usually is.
func (h *FileHeader) Name() string {
	n := int(h.NameLen)
	if n < 1 || n > MaxNameLength {
		n = MaxNameLength
	}
	name := h.RawName[:n]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	return string(name)
}

// CommentText returns the file note, bounded by its length byte
func (h *FileHeader) CommentText() string {
	n := min(int(h.CommentLen), len(h.Comment))
	return string(h.Comment[:n])
}

// SafeName returns Name made usable as a single host path component.
// sector is used to synthesize a name when nothing usable is left.
func (h *FileHeader) SafeName(sector uint32) string {
	return sanitizeName(h.Name(), sector)
}

// ModTime decodes the AmigaDOS date stamp (days since 1978-01-01,
// minutes past midnight, ticks of 1/50 s).
func (h *FileHeader) ModTime() time.Time {
	t := amigaEpoch.AddDate(0, 0, int(h.Days))
	return t.Add(time.Duration(h.Mins)*time.Minute + time.Duration(h.Ticks)*(time.Second/50))
}

var amigaEpoch = time.Date(1978, time.January, 1, 0, 0, 0, 0, time.UTC)

func (h *FileHeader) String() string {
	return fmt.Sprintf("%q size=%d parent=%d sectype=%d", h.Name(), h.ByteSize, h.Parent, h.SecType)
}

// DataBlock is the overlay of an OFS data block.
type DataBlock struct {
	Block   BlockHeader
	Payload []byte // valid bytes only, aliases the store
	Clamped bool   // DataSize exceeded PayloadCapacity
}

// Offset is the byte position of the payload within its file.
func (d *DataBlock) Offset() int64 {
	return int64(d.Block.SeqNum-1) * PayloadCapacity
}

func sanitizeName(name string, sector uint32) string {
	b := []byte(name)
	for i, c := range b {
		if c == '/' || c < 0x20 || c == 0x7f {
			b[i] = '_'
		}
	}
	s := string(b)
	if s == "" || s == "." || s == ".." {
		return fmt.Sprintf("_%04d", sector)
	}
	return s
}

var byteOrder = binary.BigEndian

func unpack(raw []byte, v any) error {
	if err := restruct.Unpack(raw, byteOrder, v); err != nil {
		return fmt.Errorf("decoding block: %w", err)
	}
	return nil
}
