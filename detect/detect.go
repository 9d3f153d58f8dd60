// Package detect identifies Amiga disk images: the container they are
// stored in, the filesystem dialect named by the boot block and the
// floppy geometry implied by their size.
package detect

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/lvdlvd/ofsrescue/ofs"
)

// Type represents a boot block dialect
type Type int

const (
	Unknown Type = iota
	OFS
	FFS
	OFSIntl
	FFSIntl
	OFSDirCache
	FFSDirCache
	Kickstart // Kickstart disk for the A1000
)

func (t Type) String() string {
	switch t {
	case OFS:
		return "OFS"
	case FFS:
		return "FFS"
	case OFSIntl:
		return "OFS-INTL"
	case FFSIntl:
		return "FFS-INTL"
	case OFSDirCache:
		return "OFS-DIRCACHE"
	case FFSDirCache:
		return "FFS-DIRCACHE"
	case Kickstart:
		return "Kickstart"
	default:
		return "unknown"
	}
}

// IsOFS returns true for the dialects whose data blocks carry the OFS
// block header, which is what salvage needs
func (t Type) IsOFS() bool {
	return t == OFS || t == OFSIntl || t == OFSDirCache
}

// IsFFS returns true if the type is any FFS variant
func (t Type) IsFFS() bool {
	return t == FFS || t == FFSIntl || t == FFSDirCache
}

// Detect identifies the dialect from the boot block at the start of r.
// A boot block that is absent or overwritten yields Unknown without error;
// salvage does not depend on it.
func Detect(r io.ReaderAt) (Type, error) {
	header := make([]byte, 4)
	n, err := r.ReadAt(header, 0)
	if err != nil && err != io.EOF {
		return Unknown, fmt.Errorf("reading boot block: %w", err)
	}
	if n < len(header) {
		return Unknown, fmt.Errorf("file too small: %d bytes", n)
	}

	if bytes.Equal(header, []byte("KICK")) {
		return Kickstart, nil
	}
	if !bytes.Equal(header[:3], []byte("DOS")) {
		return Unknown, nil
	}

	// DOS\0 .. DOS\5
	switch header[3] {
	case 0:
		return OFS, nil
	case 1:
		return FFS, nil
	case 2:
		return OFSIntl, nil
	case 3:
		return FFSIntl, nil
	case 4:
		return OFSDirCache, nil
	case 5:
		return FFSDirCache, nil
	}
	return Unknown, nil
}

// Geometry describes a standard floppy layout
type Geometry struct {
	Name       string
	Sectors    int
	RootSector uint32
}

var (
	// DD is an 880 KiB double-density floppy
	DD = Geometry{Name: "DD", Sectors: 1760, RootSector: 880}
	// HD is a 1.76 MiB high-density floppy
	HD = Geometry{Name: "HD", Sectors: 3520, RootSector: 1760}
)

// Bytes returns the image size of the geometry
func (g Geometry) Bytes() int64 { return int64(g.Sectors) * ofs.SectorSize }

// GeometryForSize returns the floppy geometry an image of size bytes has
func GeometryForSize(size int64) (Geometry, bool) {
	switch size {
	case DD.Bytes():
		return DD, true
	case HD.Bytes():
		return HD, true
	}
	return Geometry{}, false
}

// HasRoot reports whether the sector at root holds a root block: a header
// block whose secondary type is root
func HasRoot(r io.ReaderAt, root uint32) bool {
	buf := make([]byte, ofs.SectorSize)
	if _, err := r.ReadAt(buf, int64(root)*ofs.SectorSize); err != nil {
		return false
	}
	return binary.BigEndian.Uint32(buf[0:4]) == ofs.TypeHeader &&
		int32(binary.BigEndian.Uint32(buf[ofs.SectorSize-4:])) == ofs.SecTypeRoot
}

// Container identifies how an image file is compressed
type Container int

const (
	Raw Container = iota
	Gzip
	Zstd
	LZ4
	Snappy
)

func (c Container) String() string {
	switch c {
	case Gzip:
		return "gzip"
	case Zstd:
		return "zstd"
	case LZ4:
		return "lz4"
	case Snappy:
		return "snappy"
	default:
		return "raw"
	}
}

var containerMagic = []struct {
	c     Container
	magic []byte
}{
	{Gzip, []byte{0x1f, 0x8b}},
	{Zstd, []byte{0x28, 0xb5, 0x2f, 0xfd}},
	{LZ4, []byte{0x04, 0x22, 0x4d, 0x18}},
	{Snappy, []byte("\xff\x06\x00\x00sNaPpY")},
}

// ContainerMagicLen is the number of leading bytes DetectContainer needs
const ContainerMagicLen = 10

// DetectContainer identifies the container from the first bytes of a file
func DetectContainer(header []byte) Container {
	for _, m := range containerMagic {
		if bytes.HasPrefix(header, m.magic) {
			return m.c
		}
	}
	return Raw
}
