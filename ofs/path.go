package ofs

import (
	"fmt"
	"path"
	"slices"
)

// OrphanName is the file name used for data whose owning header cannot be
// resolved. Orphans are placed directly under the output root.
func OrphanName(headerKey uint32) string {
	return fmt.Sprintf("%04d.txt", headerKey)
}

// Resolution is the destination of a header's content
type Resolution struct {
	Dirs   []string // outermost first, root excluded
	Name   string
	Orphan bool
	Header *FileHeader // nil for orphans

	// Err is a non-fatal diagnostic: ErrIndexOutOfRange or ErrNotHeader
	// when the header or a parent is unusable, ErrUnresolvedParentChain
	// when the walk was cut short. Dirs holds whatever was resolved.
	Err error
}

// Path returns the slash-separated relative path
func (r Resolution) Path() string {
	return path.Join(append(slices.Clone(r.Dirs), r.Name)...)
}

// Resolver turns header sectors into paths by walking parent links up to
// the root sector.
type Resolver struct {
	store    *Store
	root     uint32
	maxDepth int
}

// NewResolver creates a resolver. maxDepth bounds the number of parent hops.
func NewResolver(store *Store, root uint32, maxDepth int) *Resolver {
	if maxDepth < 1 {
		maxDepth = DefaultMaxPathDepth
	}
	return &Resolver{store: store, root: root, maxDepth: maxDepth}
}

// Root returns the root sector index
func (r *Resolver) Root() uint32 { return r.root }

// Resolve returns the destination for content owned by the header at key.
// If key is not a usable header the result is an orphan. The walk stops at
// a zero parent or the root sector, neither of which contributes a name.
// It also stops when a parent repeats or the hop count reaches the depth
// bound, keeping the names collected so far.
func (r *Resolver) Resolve(key uint32) Resolution {
	fh, err := r.store.FileHeader(key)
	if err != nil {
		return Resolution{Name: OrphanName(key), Orphan: true, Err: err}
	}

	res := Resolution{Name: fh.SafeName(key), Header: fh}
	seen := map[uint32]struct{}{key: {}}
	cur := fh

	for hops := 0; ; hops++ {
		parent := cur.Parent
		if parent == 0 || parent == r.root {
			break
		}
		if hops >= r.maxDepth {
			res.Err = fmt.Errorf("%w: sector %d deeper than %d levels", ErrUnresolvedParentChain, key, r.maxDepth)
			break
		}
		if _, ok := seen[parent]; ok {
			res.Err = fmt.Errorf("%w: sector %d: parent %d repeats", ErrUnresolvedParentChain, key, parent)
			break
		}
		seen[parent] = struct{}{}

		pfh, err := r.store.FileHeader(parent)
		if err != nil {
			res.Err = fmt.Errorf("sector %d: parent: %w", key, err)
			break
		}
		res.Dirs = append(res.Dirs, pfh.SafeName(parent))
		cur = pfh
	}

	slices.Reverse(res.Dirs)
	return res
}
