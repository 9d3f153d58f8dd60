package cmd

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/lvdlvd/ofsrescue/ofs"
)

// Dump prints the decoded block header of one sector followed by a full
// hex/ASCII view of its bytes
func Dump(store *ofs.Store, sector int, out io.Writer) error {
	sec, err := store.Sector(sector)
	if err != nil {
		return err
	}
	h, err := sec.Header()
	if err != nil {
		return err
	}

	kind := sec.Kind()
	fmt.Fprintf(out, "Sector %d (offset 0x%x): %s\n", sector, int64(sector)*ofs.SectorSize, kind)
	fmt.Fprintf(out, "  type=%d header_key=%d seq=%d data_size=%d next_data=%d checksum=%08x\n",
		h.Type, h.HeaderKey, h.SeqNum, h.DataSize, h.NextData, h.Checksum)

	if kind == ofs.KindHeader {
		fh, err := sec.FileHeader()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  name=%q (%s) parent=%d byte_size=%d modified=%s\n",
			fh.Name(), secType(fh.SecType), fh.Parent, fh.ByteSize, fh.ModTime().Format("2006-01-02 15:04:05"))
		if c := fh.CommentText(); c != "" {
			fmt.Fprintf(out, "  comment=%q\n", c)
		}
	}

	fmt.Fprintln(out)
	_, err = io.WriteString(out, hex.Dump(sec.Bytes()))
	return err
}
