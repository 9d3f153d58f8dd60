package salvagefs_test

import (
	"context"
	"io"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvdlvd/ofsrescue/fsys"
	"github.com/lvdlvd/ofsrescue/fsys/salvagefs"
	"github.com/lvdlvd/ofsrescue/internal/adftest"
	"github.com/lvdlvd/ofsrescue/ofs"
	"github.com/lvdlvd/ofsrescue/salvage"
)

func openFS(t *testing.T, b *adftest.Builder) *salvagefs.FS {
	t.Helper()
	store, err := ofs.Load(b.Bytes(), ofs.DefaultStartSector, ofs.DefaultEndSector)
	require.NoError(t, err)
	f, err := salvagefs.Open(context.Background(), store, salvage.Options{RootSector: ofs.DefaultRootSector})
	require.NoError(t, err)
	return f
}

func TestTree(t *testing.T) {
	b := adftest.NewDD()
	b.Root(880, "Workbench")
	b.Dir(900, "DEVS", 880)
	b.Dir(905, "Printers", 900)
	seq := b.File(920, "startup-sequence", 880, adftest.Pattern(700, 1), 922, 921)
	generic := b.File(1000, "generic", 905, adftest.Pattern(20, 2), 1001)
	b.Data(1200, 1500, 1, []byte("orphan"))

	f := openFS(t, b)
	require.NoError(t, fstest.TestFS(f, "startup-sequence", "DEVS/Printers/generic", "1500.txt"))

	got, err := fs.ReadFile(f, "startup-sequence")
	require.NoError(t, err)
	assert.Equal(t, seq, got)

	got, err = fs.ReadFile(f, "DEVS/Printers/generic")
	require.NoError(t, err)
	assert.Equal(t, generic, got)

	entries, err := f.ReadDir(".")
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"1500.txt", "DEVS", "startup-sequence"}, names)

	info, err := f.Stat("startup-sequence")
	require.NoError(t, err)
	fi, ok := info.(fsys.FileInfo)
	require.True(t, ok)
	assert.Equal(t, uint64(920), fi.Inode())
	assert.IsType(t, &salvage.File{}, info.Sys())

	_, err = f.Open("DEVS/missing")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	_, err = f.Open("startup-sequence/x")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestHolesReadAsZeros(t *testing.T) {
	b := adftest.NewDD()
	b.Root(880, "Workbench")
	b.FileHeader(920, "holey", 880, 3*ofs.PayloadCapacity)
	b.Data(921, 920, 1, adftest.Pattern(ofs.PayloadCapacity, 1))
	b.Data(922, 920, 3, adftest.Pattern(ofs.PayloadCapacity, 3))

	f := openFS(t, b)
	got, err := fs.ReadFile(f, "holey")
	require.NoError(t, err)
	require.Len(t, got, 3*ofs.PayloadCapacity)
	assert.Equal(t, make([]byte, ofs.PayloadCapacity), got[ofs.PayloadCapacity:2*ofs.PayloadCapacity])

	ext, err := f.FileExtents("holey")
	require.NoError(t, err)
	assert.Len(t, ext, 2)

	file, err := f.Open("holey")
	require.NoError(t, err)
	defer file.Close()
	ra, ok := file.(io.ReaderAt)
	require.True(t, ok)
	buf := make([]byte, 4)
	_, err = ra.ReadAt(buf, 2*ofs.PayloadCapacity)
	require.NoError(t, err)
	assert.Equal(t, adftest.Pattern(4, 3), buf)
}

func TestDirectoryWinsOverFile(t *testing.T) {
	b := adftest.NewDD()
	b.Root(880, "Workbench")
	b.FileHeader(900, "C", 880, 4)
	b.Data(901, 900, 1, []byte("file"))
	b.File(920, "dir", 900, []byte("child"), 921)

	f := openFS(t, b)
	info, err := f.Stat("C")
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	got, err := fs.ReadFile(f, "C/dir")
	require.NoError(t, err)
	assert.Equal(t, "child", string(got))

	_, err = f.FileExtents("C")
	assert.ErrorIs(t, err, fs.ErrInvalid)
}
