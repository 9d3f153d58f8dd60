//go:build ignore

// mkadf writes damaged sample OFS images for trying the commands by hand:
//
//	go run testdata/mkadf.go
package main

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/lvdlvd/ofsrescue/detect"
	"github.com/lvdlvd/ofsrescue/image"
	"github.com/lvdlvd/ofsrescue/internal/adftest"
	"github.com/lvdlvd/ofsrescue/ofs"
)

func main() {
	b := build()
	for _, out := range []struct {
		path string
		c    detect.Container
	}{
		{"testdata/damaged.adf", detect.Raw},
		{"testdata/damaged.adz", detect.Gzip},
	} {
		if err := write(out.path, b, out.c); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", out.path, err)
			os.Exit(1)
		}
	}
}

func build() *adftest.Builder {
	b := adftest.NewDD()
	copy(b.Sector(0), "DOS\x00")
	b.Root(880, "Workbench1.3")

	b.Dir(882, "s", 880)
	b.File(883, "startup-sequence", 882, []byte("SetPatch >NIL:\nLoadWB\nEndCLI >NIL:\n"), 884)

	b.Dir(900, "DEVS", 880)
	b.Dir(901, "Printers", 900)
	b.File(910, "generic", 901, adftest.Pattern(3000, 7), 915, 911, 913, 912, 914, 916, 917)

	// Lost header: the data survives as an orphan
	b.Data(1200, 1234, 1, []byte("orphaned text\n"))

	// A directory loop
	b.Dir(1300, "loop-a", 1301)
	b.Dir(1301, "loop-b", 1300)
	b.File(1310, "trapped", 1300, []byte("still recoverable\n"), 1311)

	// One block of a file wiped, another with an oversized data_size
	b.File(1400, "Readme", 880, adftest.Pattern(2*ofs.PayloadCapacity+10, 3), 1401, 1402, 1403)
	clear(b.Sector(1402))
	binary.BigEndian.PutUint32(b.Sector(1403)[12:16], 4096)
	return b
}

func write(path string, b *adftest.Builder, c detect.Container) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := image.NewWriter(f, c)
	if err != nil {
		return err
	}
	if _, err := w.Write(b.Bytes()); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return f.Close()
}
