// Package salvagefs exposes the files recoverable from an OFS image as a
// read-only io/fs filesystem. Nothing is written; file contents are read
// straight from the image through their data block extents.
package salvagefs

import (
	"context"
	"io"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/lvdlvd/ofsrescue/fsys"
	"github.com/lvdlvd/ofsrescue/ofs"
	"github.com/lvdlvd/ofsrescue/salvage"
)

// FS is the recoverable tree of one image
type FS struct {
	r    io.ReaderAt
	rep  *salvage.Report
	root *node
}

type node struct {
	name     string
	file     *salvage.File // nil for directories
	children map[string]*node
}

func (n *node) isDir() bool { return n.file == nil }

// Open scans store and returns the tree it would recover
func Open(ctx context.Context, store *ofs.Store, opts salvage.Options) (*FS, error) {
	rep, err := salvage.Scan(ctx, store, opts)
	if err != nil {
		return nil, err
	}
	return New(store, rep), nil
}

// New builds the tree for a report produced from the image read by r.
// Where a file and a directory claim the same path the directory wins,
// as it would on disk once its first child is written.
func New(r io.ReaderAt, rep *salvage.Report) *FS {
	f := &FS{r: r, rep: rep, root: &node{name: ".", children: map[string]*node{}}}
	for _, file := range rep.Files {
		dir := f.root
		for _, d := range file.Dirs {
			child, ok := dir.children[d]
			if !ok || !child.isDir() {
				child = &node{name: d, children: map[string]*node{}}
				dir.children[d] = child
			}
			dir = child
		}
		if existing, ok := dir.children[file.Name]; ok && existing.isDir() {
			continue
		}
		dir.children[file.Name] = &node{name: file.Name, file: file}
	}
	return f
}

func (f *FS) Type() string            { return "OFS (salvaged)" }
func (f *FS) Close() error            { return nil }
func (f *FS) BaseReader() io.ReaderAt { return f.r }

// Report returns the scan report the tree was built from
func (f *FS) Report() *salvage.Report { return f.rep }

// FileExtents returns the image extents of a file's data blocks
func (f *FS) FileExtents(name string) ([]fsys.Extent, error) {
	n, err := f.lookup("extents", name)
	if err != nil {
		return nil, err
	}
	if n.isDir() {
		return nil, &fs.PathError{Op: "extents", Path: name, Err: fs.ErrInvalid}
	}
	return n.file.Extents(), nil
}

func (f *FS) lookup(op, name string) (*node, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: op, Path: name, Err: fs.ErrInvalid}
	}
	n := f.root
	if name == "." {
		return n, nil
	}
	for _, part := range strings.Split(name, "/") {
		child, ok := n.children[part]
		if !ok {
			return nil, &fs.PathError{Op: op, Path: name, Err: fs.ErrNotExist}
		}
		n = child
	}
	return n, nil
}

// fs.FS implementation

func (f *FS) Open(name string) (fs.File, error) {
	n, err := f.lookup("open", name)
	if err != nil {
		return nil, err
	}
	info := &fileInfo{n: n}
	if n.isDir() {
		return &dir{info: info, entries: n.sortedEntries()}, nil
	}
	size := n.file.Size()
	r := fsys.NewExtentReaderAt(f.r, n.file.Extents(), size)
	return &file{info: info, SectionReader: io.NewSectionReader(r, 0, size)}, nil
}

func (f *FS) ReadDir(name string) ([]fs.DirEntry, error) {
	n, err := f.lookup("readdir", name)
	if err != nil {
		return nil, err
	}
	if !n.isDir() {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	return n.sortedEntries(), nil
}

func (f *FS) Stat(name string) (fs.FileInfo, error) {
	n, err := f.lookup("stat", name)
	if err != nil {
		return nil, err
	}
	return &fileInfo{n: n}, nil
}

func (n *node) sortedEntries() []fs.DirEntry {
	entries := make([]fs.DirEntry, 0, len(n.children))
	for _, c := range n.children {
		entries = append(entries, fs.FileInfoToDirEntry(&fileInfo{n: c}))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries
}

// file implements fs.File, io.ReaderAt and io.Seeker for recovered files
type file struct {
	*io.SectionReader
	info *fileInfo
}

func (f *file) Stat() (fs.FileInfo, error) { return f.info, nil }
func (f *file) Close() error               { return nil }

// dir implements fs.ReadDirFile
type dir struct {
	info    *fileInfo
	entries []fs.DirEntry
	offset  int
}

func (d *dir) Stat() (fs.FileInfo, error) { return d.info, nil }
func (d *dir) Close() error               { return nil }

func (d *dir) Read(b []byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.info.Name(), Err: fs.ErrInvalid}
}

func (d *dir) ReadDir(n int) ([]fs.DirEntry, error) {
	if n <= 0 {
		entries := d.entries[d.offset:]
		d.offset = len(d.entries)
		return entries, nil
	}

	if d.offset >= len(d.entries) {
		return nil, io.EOF
	}

	end := min(d.offset+n, len(d.entries))
	entries := d.entries[d.offset:end]
	d.offset = end
	return entries, nil
}

// fileInfo implements fsys.FileInfo. Sys returns the *salvage.File.
type fileInfo struct {
	n *node
}

func (i *fileInfo) Name() string { return i.n.name }
func (i *fileInfo) IsDir() bool  { return i.n.isDir() }

func (i *fileInfo) Size() int64 {
	if i.n.isDir() {
		return 0
	}
	return i.n.file.Size()
}

func (i *fileInfo) ModTime() time.Time {
	if i.n.isDir() {
		return time.Time{}
	}
	return i.n.file.ModTime
}

func (i *fileInfo) Mode() fs.FileMode {
	if i.n.isDir() {
		return fs.ModeDir | 0o555
	}
	return 0o444
}

func (i *fileInfo) Sys() any {
	if i.n.isDir() {
		return nil
	}
	return i.n.file
}

// Inode returns the owning header sector, or 0 for synthesized directories
func (i *fileInfo) Inode() uint64 {
	if i.n.isDir() {
		return 0
	}
	return uint64(i.n.file.HeaderKey)
}

var (
	_ fsys.FS           = (*FS)(nil)
	_ fsys.ExtentMapper = (*FS)(nil)
	_ fsys.FileInfo     = (*fileInfo)(nil)
	_ fs.ReadDirFile    = (*dir)(nil)
)
