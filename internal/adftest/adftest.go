// Package adftest builds synthetic OFS images for tests.
package adftest

import (
	"encoding/binary"
	"fmt"

	"github.com/go-restruct/restruct"

	"github.com/lvdlvd/ofsrescue/ofs"
)

// Builder assembles an image sector by sector. Methods panic on misuse
// since they are only driven by test code.
type Builder struct {
	data []byte
}

// New returns a builder for an image of the given number of sectors, all zero
func New(sectors int) *Builder {
	return &Builder{data: make([]byte, sectors*ofs.SectorSize)}
}

// NewDD returns a builder for a double-density floppy image
func NewDD() *Builder { return New(ofs.DefaultEndSector) }

// Bytes returns the image
func (b *Builder) Bytes() []byte { return b.data }

// Sector returns the raw bytes of a sector for direct manipulation
func (b *Builder) Sector(n int) []byte {
	off := n * ofs.SectorSize
	return b.data[off : off+ofs.SectorSize]
}

// Header writes a header block
func (b *Builder) Header(sector int, fh ofs.FileHeader) *Builder {
	fh.Block.Type = ofs.TypeHeader
	fh.Block.HeaderKey = uint32(sector)
	raw, err := restruct.Pack(binary.BigEndian, &fh)
	if err != nil {
		panic(fmt.Sprintf("adftest: packing header %d: %v", sector, err))
	}
	if len(raw) != ofs.SectorSize {
		panic(fmt.Sprintf("adftest: header packs to %d bytes", len(raw)))
	}
	copy(b.Sector(sector), raw)
	return b
}

// Root writes the root block
func (b *Builder) Root(sector int, name string) *Builder {
	return b.Header(sector, named(name, 0, ofs.SecTypeRoot, 0))
}

// Dir writes a user directory header
func (b *Builder) Dir(sector int, name string, parent int) *Builder {
	return b.Header(sector, named(name, parent, ofs.SecTypeUserDir, 0))
}

// FileHeader writes a file header declaring size bytes
func (b *Builder) FileHeader(sector int, name string, parent int, size int) *Builder {
	return b.Header(sector, named(name, parent, ofs.SecTypeFile, uint32(size)))
}

// Data writes a data block owned by headerKey
func (b *Builder) Data(sector int, headerKey int, seq uint32, payload []byte) *Builder {
	if len(payload) > ofs.PayloadCapacity {
		panic("adftest: payload too large")
	}
	s := b.Sector(sector)
	binary.BigEndian.PutUint32(s[0:4], ofs.TypeData)
	binary.BigEndian.PutUint32(s[4:8], uint32(headerKey))
	binary.BigEndian.PutUint32(s[8:12], seq)
	binary.BigEndian.PutUint32(s[12:16], uint32(len(payload)))
	copy(s[ofs.BlockHeaderSize:], payload)
	return b
}

// File writes a file header at sector and spreads content over the data
// sectors given, one block each, in sequence order. It returns content so
// tests can compare against it.
func (b *Builder) File(sector int, name string, parent int, content []byte, dataSectors ...int) []byte {
	need := (len(content) + ofs.PayloadCapacity - 1) / ofs.PayloadCapacity
	if need != len(dataSectors) {
		panic(fmt.Sprintf("adftest: %d bytes need %d data sectors, got %d", len(content), need, len(dataSectors)))
	}
	b.FileHeader(sector, name, parent, len(content))
	for i, ds := range dataSectors {
		end := (i + 1) * ofs.PayloadCapacity
		if end > len(content) {
			end = len(content)
		}
		b.Data(ds, sector, uint32(i+1), content[i*ofs.PayloadCapacity:end])
		if i+1 < len(dataSectors) {
			binary.BigEndian.PutUint32(b.Sector(ds)[16:20], uint32(dataSectors[i+1]))
		}
	}
	return content
}

// Pattern returns n bytes of deterministic, seed-dependent content
func Pattern(n int, seed byte) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i*7) + seed
	}
	return p
}

func named(name string, parent int, secType int32, size uint32) ofs.FileHeader {
	var fh ofs.FileHeader
	fh.NameLen = uint8(copy(fh.RawName[:], name))
	fh.Parent = uint32(parent)
	fh.SecType = secType
	fh.ByteSize = size
	return fh
}
