package salvage

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvdlvd/ofsrescue/ofs"
)

func TestMaterializeCreatesPath(t *testing.T) {
	root := t.TempDir()
	m := NewMaterializer(root)

	require.NoError(t, m.Materialize([]string{"DEVS", "Printers"}, "generic", 1, []byte("hello")))

	got, err := os.ReadFile(filepath.Join(root, "DEVS", "Printers", "generic"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestMaterializeOffsets(t *testing.T) {
	root := t.TempDir()
	m := NewMaterializer(root)

	second := bytes.Repeat([]byte{'b'}, 100)
	first := bytes.Repeat([]byte{'a'}, ofs.PayloadCapacity)

	// Out of order: block 3 first leaves a hole for block 2
	require.NoError(t, m.Materialize(nil, "f", 3, second))
	require.NoError(t, m.Materialize(nil, "f", 1, first))

	got, err := os.ReadFile(filepath.Join(root, "f"))
	require.NoError(t, err)
	require.Len(t, got, 2*ofs.PayloadCapacity+100)
	assert.Equal(t, first, got[:ofs.PayloadCapacity])
	assert.Equal(t, make([]byte, ofs.PayloadCapacity), got[ofs.PayloadCapacity:2*ofs.PayloadCapacity])
	assert.Equal(t, second, got[2*ofs.PayloadCapacity:])
}

func TestMaterializeIdempotent(t *testing.T) {
	root := t.TempDir()
	m := NewMaterializer(root)

	for i := 0; i < 3; i++ {
		require.NoError(t, m.Materialize([]string{"C"}, "dir", 1, []byte("same")))
	}
	got, err := os.ReadFile(filepath.Join(root, "C", "dir"))
	require.NoError(t, err)
	assert.Equal(t, "same", string(got))
}

func TestMaterializeRejectsSequenceZero(t *testing.T) {
	err := NewMaterializer(t.TempDir()).Materialize(nil, "f", 0, []byte("x"))
	require.ErrorIs(t, err, ofs.ErrBadSequence)
}

func TestMaterializeDirectoryBlockedByFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "Libs"), []byte("file"), 0o644))

	err := NewMaterializer(root).Materialize([]string{"Libs"}, "x.library", 1, []byte("x"))
	require.ErrorIs(t, err, ErrDirectoryCreate)
}

func TestMaterializeOpenFails(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "busy"), 0o755))

	// The destination name is taken by a directory
	err := NewMaterializer(root).Materialize(nil, "busy", 1, []byte("x"))
	require.ErrorIs(t, err, ErrFileOpen)
}

func TestMaterializeConcurrentDirectories(t *testing.T) {
	root := t.TempDir()
	m := NewMaterializer(root)

	var wg sync.WaitGroup
	errs := make([]error, 16)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := string(rune('a' + i))
			errs[i] = m.Materialize([]string{"S", "shared"}, name, 1, []byte(name))
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	entries, err := os.ReadDir(filepath.Join(root, "S", "shared"))
	require.NoError(t, err)
	assert.Len(t, entries, 16)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "AB\t<0x00><0xff>", Preview([]byte("AB\t\x00\xffCD"), 5))
	assert.Equal(t, "x", Preview([]byte("x"), 16))
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("SKIP")
	require.NoError(t, err)
	assert.Equal(t, Skip, p)

	p, err = ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, Abort, p)

	_, err = ParsePolicy("retry")
	assert.Error(t, err)
}
