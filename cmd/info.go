package cmd

import (
	"bytes"
	"fmt"
	"io"

	"github.com/lvdlvd/ofsrescue/detect"
	"github.com/lvdlvd/ofsrescue/ofs"
)

// Info describes an image: container, boot block dialect, geometry and
// the scan window that suits it
func Info(img []byte, container detect.Container, out io.Writer) error {
	r := bytes.NewReader(img)

	fsType, err := detect.Detect(r)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Container: %s\n", container)
	fmt.Fprintf(out, "Size: %d bytes (%d sectors)\n", len(img), len(img)/ofs.SectorSize)
	fmt.Fprintf(out, "Boot block: %s\n", fsType)
	if fsType.IsFFS() {
		fmt.Fprintln(out, "  warning: FFS data blocks carry no block header; only OFS volumes can be salvaged")
	}

	geom, ok := detect.GeometryForSize(int64(len(img)))
	if !ok {
		fmt.Fprintln(out, "Geometry: non-standard")
		return nil
	}

	root := "not found"
	if detect.HasRoot(r, geom.RootSector) {
		root = "ok"
	}
	fmt.Fprintf(out, "Geometry: %s floppy, root block at %d (%s)\n", geom.Name, geom.RootSector, root)
	fmt.Fprintf(out, "Suggested window: --start %d --end %d --root %d\n", ofs.DefaultStartSector, geom.Sectors, geom.RootSector)
	return nil
}
