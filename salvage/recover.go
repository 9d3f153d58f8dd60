package salvage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/lvdlvd/ofsrescue/ofs"
)

// Policy decides what a write failure does to the run
type Policy int

const (
	// Abort stops the run on the first directory or file error
	Abort Policy = iota
	// Skip drops the affected file, records a diagnostic and carries on
	Skip
)

func (p Policy) String() string {
	if p == Skip {
		return "skip"
	}
	return "abort"
}

// ParsePolicy parses "abort" or "skip"
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "", "abort":
		return Abort, nil
	case "skip":
		return Skip, nil
	default:
		return Abort, fmt.Errorf("invalid write error policy: %q", s)
	}
}

// Recoverer drives a recovery run: it scans the window and writes every
// data block into its reconstructed file under the output directory.
type Recoverer struct {
	store *ofs.Store
	opts  Options
	mat   *Materializer
	log   *slog.Logger
}

// NewRecoverer creates a recoverer writing below opts.OutputDir
func NewRecoverer(store *ofs.Store, opts Options) *Recoverer {
	dir := opts.OutputDir
	if dir == "" {
		dir = "."
	}
	return &Recoverer{
		store: store,
		opts:  opts,
		mat:   NewMaterializer(dir),
		log:   opts.logger().With("component", "Recoverer"),
	}
}

// Materializer returns the materializer used for output
func (r *Recoverer) Materializer() *Materializer { return r.mat }

// Run performs the recovery. With more than one worker the window is
// scanned first and files are then written concurrently, one goroutine per
// file; the output is the same either way.
func (r *Recoverer) Run(ctx context.Context) (*Report, error) {
	r.log.Info("Starting recovery",
		"start", r.store.Start(), "end", r.store.End(), "root", r.opts.RootSector,
		"output", r.mat.Root(), "workers", r.opts.Workers, "on_write_error", r.opts.OnWriteError.String())

	var (
		rep *Report
		err error
	)
	if r.opts.Workers > 1 {
		rep, err = r.runParallel(ctx)
	} else {
		rep, err = r.runSequential(ctx)
	}
	if err != nil {
		r.log.Error("Recovery aborted", "error", err)
		return rep, err
	}

	r.log.Info("Recovery finished",
		"files", len(rep.Files), "orphans", rep.Orphans(), "data_blocks", rep.Claimed.GetCardinality(),
		"diagnostics", len(rep.Diagnostics))
	return rep, nil
}

func (r *Recoverer) runSequential(ctx context.Context) (*Report, error) {
	sc := NewScanner(r.store, r.opts)
	return sc.Walk(ctx, func(v *Visit) error {
		r.logVisit(v)
		if v.File == nil {
			return nil
		}
		b := v.File.Blocks[len(v.File.Blocks)-1]
		return r.write(sc.report, v.File, b)
	})
}

func (r *Recoverer) runParallel(ctx context.Context) (*Report, error) {
	rep, err := NewScanner(r.store, r.opts).Walk(ctx, func(v *Visit) error {
		r.logVisit(v)
		return nil
	})
	if err != nil {
		return rep, err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for _, f := range rep.Files {
		g.Go(func() error {
			for _, b := range f.Blocks {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := r.write(rep, f, b); err != nil {
					return err
				}
			}
			return nil
		})
	}
	err = g.Wait()
	rep.sortDiagnostics()
	return rep, err
}

// write materializes one block. Under the Skip policy a failure marks the
// file and later blocks of that file are dropped.
func (r *Recoverer) write(rep *Report, f *File, b Block) error {
	if f.err != nil {
		return nil
	}

	err := r.mat.Materialize(f.Dirs, f.Name, b.Seq, b.Payload)
	if err == nil {
		return nil
	}

	err = fmt.Errorf("sector %d -> %s: %w", b.Sector, f.Path(), err)
	if r.opts.OnWriteError == Abort {
		return err
	}
	f.err = err
	rep.diagnose(b.Sector, err)
	r.log.Warn("Skipping file", "path", f.Path(), "header", f.HeaderKey, "error", err)
	return nil
}

func (r *Recoverer) logVisit(v *Visit) {
	if !r.log.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	attrs := []any{
		"sector", v.Sector, "kind", v.Kind.String(),
		"header_key", v.Block.HeaderKey, "seq", v.Block.SeqNum, "data_size", v.Block.DataSize,
		"next_data", v.Block.NextData, "checksum", fmt.Sprintf("%08x", v.Block.Checksum),
	}
	switch {
	case v.Header != nil:
		attrs = append(attrs, "name", v.Header.Name(), "byte_size", v.Header.ByteSize, "path", v.Resolution.Path())
	case v.Data != nil && v.File != nil:
		attrs = append(attrs, "path", v.File.Path(), "offset", v.Data.Offset(), "preview", Preview(v.Data.Payload, 16))
	}
	if v.Err != nil {
		attrs = append(attrs, "error", v.Err)
	}
	r.log.Debug("Sector", attrs...)
}

// Recover runs a recovery with the given options
func Recover(ctx context.Context, store *ofs.Store, opts Options) (*Report, error) {
	return NewRecoverer(store, opts).Run(ctx)
}
