package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvdlvd/ofsrescue/detect"
	"github.com/lvdlvd/ofsrescue/fsys/salvagefs"
	"github.com/lvdlvd/ofsrescue/internal/adftest"
	"github.com/lvdlvd/ofsrescue/ofs"
	"github.com/lvdlvd/ofsrescue/salvage"
)

type fixture struct {
	image    []byte
	store    *ofs.Store
	startup  []byte
	printers []byte
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	b := adftest.NewDD()
	copy(b.Sector(0), "DOS\x00")
	b.Root(880, "Workbench")
	b.Dir(890, "s", 880)
	b.Dir(900, "DEVS", 880)
	b.Dir(905, "Printers", 900)
	startup := b.File(920, "startup-sequence", 890, adftest.Pattern(1200, 1), 921, 940, 922)
	printers := b.File(1100, "generic", 905, []byte("printer driver"), 1101)
	b.File(600, "readme", 880, []byte("hello\n"), 601)
	b.FileHeader(700, "broken", 880, 2*ofs.PayloadCapacity)
	b.Data(701, 700, 2, []byte("tail"))
	b.Data(1300, 1500, 1, []byte("lost"))

	store, err := ofs.Load(b.Bytes(), ofs.DefaultStartSector, ofs.DefaultEndSector)
	require.NoError(t, err)
	return fixture{image: b.Bytes(), store: store, startup: startup, printers: printers}
}

func (f fixture) options() salvage.Options {
	return salvage.Options{RootSector: ofs.DefaultRootSector, MaxPathDepth: ofs.DefaultMaxPathDepth}
}

func (f fixture) fs(t *testing.T) *salvagefs.FS {
	t.Helper()
	sfs, err := salvagefs.Open(context.Background(), f.store, f.options())
	require.NoError(t, err)
	return sfs
}

func TestLs(t *testing.T) {
	sfs := newFixture(t).fs(t)

	tests := []struct {
		name string
		path string
		opts LsOptions
		want []string
	}{
		{"root", "/", LsOptions{}, []string{"1500.txt", "DEVS/", "broken", "readme", "s/"}},
		{"subdir", "DEVS/Printers", LsOptions{}, []string{"generic"}},
		{"file", "/readme", LsOptions{}, []string{"readme"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			require.NoError(t, Ls(sfs, tt.path, &out, tt.opts))
			assert.Equal(t, strings.Join(tt.want, "\n")+"\n", out.String())
		})
	}

	t.Run("long", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, Ls(sfs, ".", &out, LsOptions{Long: true}))
		s := out.String()
		assert.Contains(t, s, "  600 -r--r--r--        6 ")
		assert.Contains(t, s, "broken  (1 blocks missing)")
		assert.Contains(t, s, "1500.txt  (orphan)")
	})

	t.Run("recursive", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, Ls(sfs, ".", &out, LsOptions{Recursive: true}))
		assert.Contains(t, out.String(), "\nDEVS/Printers:\ngeneric\n")
		assert.Contains(t, out.String(), "\ns:\nstartup-sequence\n")
	})

	t.Run("missing", func(t *testing.T) {
		assert.Error(t, Ls(sfs, "nope", &bytes.Buffer{}, LsOptions{}))
	})
}

func TestCat(t *testing.T) {
	fx := newFixture(t)
	sfs := fx.fs(t)

	var out bytes.Buffer
	require.NoError(t, Cat(sfs, "/s/startup-sequence", &out))
	assert.Equal(t, fx.startup, out.Bytes())

	out.Reset()
	require.NoError(t, Cat(sfs, "DEVS/Printers/generic", &out))
	assert.Equal(t, fx.printers, out.Bytes())

	// First block missing: zeros, then the tail
	out.Reset()
	require.NoError(t, Cat(sfs, "broken", &out))
	assert.Equal(t, append(make([]byte, ofs.PayloadCapacity), "tail"...), out.Bytes())

	err := Cat(sfs, "DEVS", &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is a directory")
}

func TestStat(t *testing.T) {
	sfs := newFixture(t).fs(t)

	var out bytes.Buffer
	require.NoError(t, Stat(sfs, "broken", &out))
	s := out.String()
	assert.Contains(t, s, "   File: broken\n")
	assert.Contains(t, s, " Header: 700\n")
	assert.Contains(t, s, "Declared size: 976\n")
	assert.Contains(t, s, "Missing: [1]\n")
	assert.Contains(t, s, "sector 701")

	out.Reset()
	require.NoError(t, Stat(sfs, "1500.txt", &out))
	assert.Contains(t, out.String(), " Orphan: header block 1500 not found\n")

	out.Reset()
	require.NoError(t, Stat(sfs, "DEVS", &out))
	assert.NotContains(t, out.String(), "Header:")
}

func TestScan(t *testing.T) {
	fx := newFixture(t)

	var out bytes.Buffer
	rep, err := Scan(context.Background(), fx.store, fx.options(), &out, ScanOptions{})
	require.NoError(t, err)
	assert.Len(t, rep.Files, 5)

	s := out.String()
	assert.Contains(t, s, "startup-sequence (file) -> s/startup-sequence")
	assert.Contains(t, s, "s/startup-sequence @976")
	assert.Contains(t, s, "Workbench (root) -> Workbench")
	assert.Contains(t, s, "Sectors: 8 header, 7 data, 0 list")
	assert.Contains(t, s, "Files: 5 (1 orphaned, 1 incomplete)")
	assert.Contains(t, s, "Diagnostics: 1\n  sector 1300: header 1500:")
	assert.NotContains(t, s, "00000000  ")

	out.Reset()
	_, err = Scan(context.Background(), fx.store, fx.options(), &out, ScanOptions{Hex: true})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "        00000000  68 65 6c 6c 6f 0a")
}

func TestDump(t *testing.T) {
	fx := newFixture(t)

	var out bytes.Buffer
	require.NoError(t, Dump(fx.store, 880, &out))
	s := out.String()
	assert.Contains(t, s, "Sector 880 (offset 0x6e000): header\n")
	assert.Contains(t, s, `name="Workbench" (root) parent=0`)
	assert.Contains(t, s, "00000000  00 00 00 02 00 00 03 70")

	out.Reset()
	require.NoError(t, Dump(fx.store, 601, &out))
	assert.Contains(t, out.String(), ": data\n")
	assert.Contains(t, out.String(), "hello.")

	assert.ErrorIs(t, Dump(fx.store, 5000, &out), ofs.ErrIndexOutOfRange)
}

func TestInfo(t *testing.T) {
	fx := newFixture(t)

	var out bytes.Buffer
	require.NoError(t, Info(fx.image, detect.Gzip, &out))
	s := out.String()
	assert.Contains(t, s, "Container: gzip\n")
	assert.Contains(t, s, "Boot block: OFS\n")
	assert.Contains(t, s, "Geometry: DD floppy, root block at 880 (ok)\n")
	assert.Contains(t, s, "--start 513 --end 1760 --root 880")

	out.Reset()
	require.NoError(t, Info(fx.image[:4096], detect.Raw, &out))
	assert.Contains(t, out.String(), "Geometry: non-standard\n")
}
