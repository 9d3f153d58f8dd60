package cmd

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/lvdlvd/ofsrescue/ofs"
	"github.com/lvdlvd/ofsrescue/salvage"
)

// ScanOptions controls scan output
type ScanOptions struct {
	Hex bool // hex/ASCII preview of data payloads
}

// previewBytes is how much of each payload the hex preview shows
const previewBytes = 16

// Scan prints one line per classified sector of the window and a summary.
// Nothing is written to disk.
func Scan(ctx context.Context, store *ofs.Store, opts salvage.Options, out io.Writer, so ScanOptions) (*salvage.Report, error) {
	tw := tabwriter.NewWriter(out, 0, 8, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "sector\tkind\tkey\tseq\tsize\t")

	rep, err := salvage.NewScanner(store, opts).Walk(ctx, func(v *salvage.Visit) error {
		var detail string
		switch {
		case v.Header != nil:
			detail = fmt.Sprintf("%s (%s) -> %s", v.Header.Name(), secType(v.Header.SecType), v.Resolution.Path())
		case v.File != nil:
			detail = fmt.Sprintf("%s @%d", v.File.Path(), v.Data.Offset())
		}
		if v.Err != nil {
			detail += "  ! " + v.Err.Error()
		}

		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t  %s\n",
			v.Sector, v.Kind, v.Block.HeaderKey, v.Block.SeqNum, v.Block.DataSize, detail)

		if so.Hex && v.Data != nil {
			// tabwriter would realign the dump, so flush around it
			if err := tw.Flush(); err != nil {
				return err
			}
			dumpIndented(out, v.Data.Payload[:min(previewBytes, len(v.Data.Payload))])
		}
		return nil
	})
	if ferr := tw.Flush(); err == nil {
		err = ferr
	}
	if err != nil {
		return rep, err
	}

	fmt.Fprintln(out)
	Summary(rep, out)
	return rep, nil
}

func secType(t int32) string {
	switch t {
	case ofs.SecTypeRoot:
		return "root"
	case ofs.SecTypeUserDir:
		return "dir"
	case ofs.SecTypeFile:
		return "file"
	default:
		return fmt.Sprintf("type %d", t)
	}
}

func dumpIndented(out io.Writer, b []byte) {
	for _, line := range strings.SplitAfter(hex.Dump(b), "\n") {
		if line != "" {
			fmt.Fprintf(out, "        %s", line)
		}
	}
}

// Summary prints the totals of a run
func Summary(rep *salvage.Report, out io.Writer) {
	fmt.Fprintf(out, "Window: sectors %d-%d, root %d\n", rep.Start, rep.End-1, rep.Root)
	fmt.Fprintf(out, "Sectors: %d header, %d data, %d list, %d other\n",
		rep.Counts.Header, rep.Counts.Data, rep.Counts.List, rep.Counts.Other)

	incomplete := 0
	for _, f := range rep.Files {
		if !f.Orphan && len(f.Missing()) > 0 {
			incomplete++
		}
	}
	fmt.Fprintf(out, "Files: %d (%d orphaned, %d incomplete)\n", len(rep.Files), rep.Orphans(), incomplete)

	if len(rep.Diagnostics) == 0 {
		return
	}
	fmt.Fprintf(out, "Diagnostics: %d\n", len(rep.Diagnostics))
	for _, d := range rep.Diagnostics {
		fmt.Fprintf(out, "  %s\n", d)
	}
}
