package salvage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring"

	"github.com/lvdlvd/ofsrescue/fsys"
	"github.com/lvdlvd/ofsrescue/ofs"
)

// Options controls a scan or a recovery run
type Options struct {
	RootSector   uint32
	MaxPathDepth int

	// Recovery only
	OutputDir    string
	OnWriteError Policy
	Workers      int

	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.Logger
}

// Block is one data sector assigned to a file
type Block struct {
	Sector  int
	Seq     uint32
	Payload []byte
}

// Offset is the byte position of the block within its file
func (b Block) Offset() int64 {
	return int64(b.Seq-1) * ofs.PayloadCapacity
}

// File collects the data blocks that resolve to one destination path.
// Several header keys can map to the same File when their paths collide.
type File struct {
	HeaderKey    uint32
	Dirs         []string
	Name         string
	Orphan       bool
	DeclaredSize uint32
	ModTime      time.Time
	Blocks       []Block // in scan order

	seqs   *roaring.Bitmap
	maxSeq uint32
	err    error
}

// Path returns the slash-separated path relative to the output root
func (f *File) Path() string {
	return path.Join(append(slices.Clone(f.Dirs), f.Name)...)
}

// Size returns the length the reconstructed file will have
func (f *File) Size() int64 {
	var size int64
	for _, b := range f.Blocks {
		if end := b.Offset() + int64(len(b.Payload)); end > size {
			size = end
		}
	}
	return size
}

// Written returns the number of distinct sequence numbers seen
func (f *File) Written() uint64 {
	return f.seqs.GetCardinality()
}

// Missing lists the sequence numbers no block was found for. The expected
// count comes from the declared size, or from the highest sequence seen
// when there is no header.
func (f *File) Missing() []uint32 {
	var expected uint64
	switch {
	case f.DeclaredSize > 0:
		expected = (uint64(f.DeclaredSize) + ofs.PayloadCapacity - 1) / ofs.PayloadCapacity
	case !f.seqs.IsEmpty():
		expected = uint64(f.seqs.Maximum())
	}
	if expected > uint64(f.maxSeq) {
		expected = uint64(f.maxSeq)
	}
	if expected == 0 {
		return nil
	}

	want := roaring.New()
	want.AddRange(1, expected+1)
	want.AndNot(f.seqs)
	return want.ToArray()
}

// Complete reports whether every expected block was found
func (f *File) Complete() bool {
	return f.DeclaredSize > 0 && len(f.Missing()) == 0
}

// Err returns the write error that made the run skip this file, if any
func (f *File) Err() error { return f.err }

// Extents maps the file onto the image, one extent per sequence number.
// A sequence number seen twice keeps the later block, matching the order
// blocks are written in.
func (f *File) Extents() []fsys.Extent {
	bySeq := make(map[uint32]Block, len(f.Blocks))
	for _, b := range f.Blocks {
		bySeq[b.Seq] = b
	}

	extents := make([]fsys.Extent, 0, len(bySeq))
	for _, b := range bySeq {
		if len(b.Payload) == 0 {
			continue
		}
		extents = append(extents, fsys.Extent{
			Logical:  b.Offset(),
			Physical: int64(b.Sector)*ofs.SectorSize + ofs.BlockHeaderSize,
			Length:   int64(len(b.Payload)),
		})
	}
	sort.Slice(extents, func(i, j int) bool { return extents[i].Logical < extents[j].Logical })
	return extents
}

func (f *File) add(b Block) {
	f.Blocks = append(f.Blocks, b)
	f.seqs.Add(b.Seq)
}

// Diagnostic is a non-fatal problem found at a sector
type Diagnostic struct {
	Sector int
	Err    error
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("sector %d: %v", d.Sector, d.Err)
}

// Counts tallies sectors by kind
type Counts struct {
	Header int `yaml:"header"`
	Data   int `yaml:"data"`
	List   int `yaml:"list"`
	Other  int `yaml:"other"`
}

func (c *Counts) add(k ofs.BlockKind) {
	switch k {
	case ofs.KindHeader:
		c.Header++
	case ofs.KindData:
		c.Data++
	case ofs.KindList:
		c.List++
	default:
		c.Other++
	}
}

// Report is the outcome of a scan or recovery run
type Report struct {
	Start  int
	End    int
	Root   uint32
	Counts Counts
	Files  []*File // sorted by path

	// Claimed holds the data sectors assigned to a file
	Claimed *roaring.Bitmap

	mu          sync.Mutex
	Diagnostics []Diagnostic
}

// Orphans returns the number of files whose header could not be resolved
func (r *Report) Orphans() int {
	n := 0
	for _, f := range r.Files {
		if f.Orphan {
			n++
		}
	}
	return n
}

// File returns the file with the given relative path, or nil
func (r *Report) File(p string) *File {
	i := sort.Search(len(r.Files), func(i int) bool { return r.Files[i].Path() >= p })
	if i < len(r.Files) && r.Files[i].Path() == p {
		return r.Files[i]
	}
	return nil
}

func (r *Report) diagnose(sector int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Diagnostics = append(r.Diagnostics, Diagnostic{Sector: sector, Err: err})
}

func (r *Report) sortDiagnostics() {
	sort.SliceStable(r.Diagnostics, func(i, j int) bool {
		return r.Diagnostics[i].Sector < r.Diagnostics[j].Sector
	})
}

// Visit describes one recovery-relevant sector as the scan reaches it
type Visit struct {
	Sector int
	Kind   ofs.BlockKind
	Block  ofs.BlockHeader

	// Header sectors: the decoded header and its own resolved path.
	// Data sectors: the resolution of the owning header.
	Header     *ofs.FileHeader
	Resolution ofs.Resolution

	// Data sectors accepted for reconstruction
	Data *ofs.DataBlock
	File *File

	// Err is a non-fatal problem with this sector
	Err error
}

// Scanner walks the scan window in ascending order and groups data blocks
// into files.
type Scanner struct {
	store    *ofs.Store
	resolver *ofs.Resolver
	log      *slog.Logger

	byKey  map[uint32]*File
	byPath map[string]*File
	report *Report
}

// NewScanner creates a scanner over store
func NewScanner(store *ofs.Store, opts Options) *Scanner {
	return &Scanner{
		store:    store,
		resolver: ofs.NewResolver(store, opts.RootSector, opts.MaxPathDepth),
		log:      opts.logger().With("component", "Scanner"),
		byKey:    make(map[uint32]*File),
		byPath:   make(map[string]*File),
		report: &Report{
			Start:   store.Start(),
			End:     store.End(),
			Root:    opts.RootSector,
			Claimed: roaring.New(),
		},
	}
}

// Walk classifies every sector of the window and calls visit for header,
// data and list sectors. Other sectors are counted and skipped. An error
// from visit or a cancelled context stops the walk; the report then covers
// the sectors seen so far.
func (s *Scanner) Walk(ctx context.Context, visit func(*Visit) error) (*Report, error) {
	defer s.finish()

	for i := s.store.Start(); i < s.store.End(); i++ {
		if err := ctx.Err(); err != nil {
			return s.report, err
		}

		sec, err := s.store.Sector(i)
		if err != nil {
			return s.report, err
		}
		kind := ofs.Classify(sec)
		s.report.Counts.add(kind)
		if kind == ofs.KindOther {
			continue
		}

		v := &Visit{Sector: i, Kind: kind}
		if v.Block, err = sec.Header(); err != nil {
			s.report.diagnose(i, err)
			continue
		}

		switch kind {
		case ofs.KindHeader:
			s.visitHeader(sec, v)
		case ofs.KindData:
			s.visitData(sec, v)
		}

		if visit != nil {
			if err := visit(v); err != nil {
				return s.report, err
			}
		}
	}
	return s.report, nil
}

func (s *Scanner) visitHeader(sec ofs.Sector, v *Visit) {
	fh, err := sec.FileHeader()
	if err != nil {
		v.Err = err
		return
	}
	v.Header = fh
	v.Resolution = s.resolver.Resolve(uint32(sec.Index))
}

func (s *Scanner) visitData(sec ofs.Sector, v *Visit) {
	d, err := sec.DataBlock()
	if err != nil {
		v.Err = err
		s.report.diagnose(sec.Index, err)
		return
	}
	v.Data = d

	seq := d.Block.SeqNum
	if seq < 1 || uint64(seq) > uint64(s.store.Len()) {
		v.Err = fmt.Errorf("%w: %d (header %d)", ofs.ErrBadSequence, seq, d.Block.HeaderKey)
		s.report.diagnose(sec.Index, v.Err)
		s.log.Warn("Skipping data block", "sector", sec.Index, "seq", seq, "error", v.Err)
		return
	}
	if d.Clamped {
		v.Err = fmt.Errorf("data size %d exceeds %d, clamped", d.Block.DataSize, ofs.PayloadCapacity)
		s.report.diagnose(sec.Index, v.Err)
	}

	f, res := s.file(sec.Index, d.Block.HeaderKey)
	v.Resolution = res
	v.File = f
	f.add(Block{Sector: sec.Index, Seq: seq, Payload: d.Payload})
	s.report.Claimed.Add(uint32(sec.Index))
}

// file returns the File for a header key, resolving it on first use.
// Resolution problems are reported once, at the first block that needs them.
func (s *Scanner) file(sector int, key uint32) (*File, ofs.Resolution) {
	if f, ok := s.byKey[key]; ok {
		return f, ofs.Resolution{Dirs: f.Dirs, Name: f.Name, Orphan: f.Orphan}
	}

	res := s.resolver.Resolve(key)
	if res.Err != nil {
		s.report.diagnose(sector, fmt.Errorf("header %d: %w", key, res.Err))
		s.log.Warn("Header not fully resolved", "sector", sector, "header", key, "path", res.Path(), "error", res.Err)
	}

	p := res.Path()
	f, ok := s.byPath[p]
	if !ok {
		f = &File{
			HeaderKey: key,
			Dirs:      res.Dirs,
			Name:      res.Name,
			Orphan:    res.Orphan,
			seqs:      roaring.New(),
			maxSeq:    uint32(s.store.Len()),
		}
		if res.Header != nil {
			f.DeclaredSize = res.Header.ByteSize
			f.ModTime = res.Header.ModTime()
		}
		s.byPath[p] = f
	}
	s.byKey[key] = f
	return f, res
}

func (s *Scanner) finish() {
	files := make([]*File, 0, len(s.byPath))
	for _, f := range s.byPath {
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path() < files[j].Path() })
	s.report.Files = files
}

// Scan runs a read-only scan of the window and returns the report
func Scan(ctx context.Context, store *ofs.Store, opts Options) (*Report, error) {
	return NewScanner(store, opts).Walk(ctx, nil)
}
