// Package image loads disk images into memory, decompressing gzip (.adz),
// zstd, lz4 and snappy containers on the way.
package image

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	lz4 "github.com/pierrec/lz4/v4"

	"github.com/lvdlvd/ofsrescue/detect"
)

// MaxSize bounds the decompressed image. The largest floppy is 1.76 MiB;
// the headroom covers hard disk partition dumps.
const MaxSize = 64 << 20

// ErrTooLarge is returned when an image exceeds MaxSize
var ErrTooLarge = errors.New("image too large")

// Load reads the image at path
func Load(path string) ([]byte, detect.Container, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, detect.Raw, fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads an image from r, decompressing it if its leading bytes
// name a known container
func Decode(r io.Reader) ([]byte, detect.Container, error) {
	br := bufio.NewReader(r)
	header, err := br.Peek(detect.ContainerMagicLen)
	if err != nil && err != io.EOF {
		return nil, detect.Raw, fmt.Errorf("reading image: %w", err)
	}
	c := detect.DetectContainer(header)

	dr, err := decompressor(br, c)
	if err != nil {
		return nil, c, fmt.Errorf("%s: %w", c, err)
	}
	defer dr.Close()

	data, err := io.ReadAll(io.LimitReader(dr, MaxSize+1))
	if err != nil {
		return nil, c, fmt.Errorf("%s decompress error: %w", c, err)
	}
	if len(data) > MaxSize {
		return nil, c, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, MaxSize)
	}
	return data, c, nil
}

func decompressor(r io.Reader, c detect.Container) (io.ReadCloser, error) {
	switch c {
	case detect.Gzip:
		return gzip.NewReader(r)
	case detect.Zstd:
		d, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return d.IOReadCloser(), nil
	case detect.LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case detect.Snappy:
		return io.NopCloser(snappy.NewReader(r)), nil
	default:
		return io.NopCloser(r), nil
	}
}

// NewWriter returns a writer that compresses into w using container c.
// The caller must Close it to flush the stream.
func NewWriter(w io.Writer, c detect.Container) (io.WriteCloser, error) {
	switch c {
	case detect.Gzip:
		return gzip.NewWriter(w), nil
	case detect.Zstd:
		return zstd.NewWriter(w)
	case detect.LZ4:
		return lz4.NewWriter(w), nil
	case detect.Snappy:
		return snappy.NewBufferedWriter(w), nil
	default:
		return nopWriteCloser{w}, nil
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
