package salvage

import (
	"bytes"
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"
)

func TestBuildManifest(t *testing.T) {
	vol := sampleVolume()
	out := t.TempDir()

	rep, err := Recover(context.Background(), loadStore(t, vol.image), defaultOptions(out))
	require.NoError(t, err)

	m, err := BuildManifest(rep, out)
	require.NoError(t, err)
	assert.Equal(t, [2]int{513, 1760}, m.Window)
	assert.Equal(t, uint32(880), m.Root)
	require.Len(t, m.Files, len(vol.files))

	for _, mf := range m.Files {
		want := blake2b.Sum256(vol.files[mf.Path])
		assert.Equal(t, hex.EncodeToString(want[:]), mf.Digest, mf.Path)
		assert.Equal(t, int64(len(vol.files[mf.Path])), mf.Size, mf.Path)
		assert.Empty(t, mf.Missing, mf.Path)
	}
}

func TestManifestMissingOutput(t *testing.T) {
	rep, err := Scan(context.Background(), loadStore(t, sampleVolume().image), defaultOptions(""))
	require.NoError(t, err)

	// Nothing was written, so there is nothing to digest
	m, err := BuildManifest(rep, t.TempDir())
	require.NoError(t, err)
	for _, mf := range m.Files {
		assert.Empty(t, mf.Digest)
	}
}

func TestManifestOutputNotRegular(t *testing.T) {
	vol := sampleVolume()
	rep, err := Scan(context.Background(), loadStore(t, vol.image), defaultOptions(""))
	require.NoError(t, err)

	// A directory sits where the readme would have been written
	out := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(out, "readme"), 0o755))

	m, err := BuildManifest(rep, out)
	require.NoError(t, err)
	require.Len(t, m.Files, len(vol.files))
	for _, mf := range m.Files {
		assert.Empty(t, mf.Digest, mf.Path)
		if mf.Path == "readme" {
			assert.Contains(t, mf.Error, "not a regular file")
		} else {
			assert.Empty(t, mf.Error, mf.Path)
		}
	}
}

func TestWriteManifest(t *testing.T) {
	m := &Manifest{
		Output: "out",
		Window: [2]int{513, 1760},
		Root:   880,
		Files: []ManifestFile{
			{Path: "DEVS/generic", HeaderKey: 1100, Size: 10, Blocks: 1, Missing: []uint32{2, 3}},
		},
		Diagnostics: []string{"sector 700: header 1500: not a header block"},
	}

	path := filepath.Join(t.TempDir(), "manifest.yaml")
	require.NoError(t, WriteManifest(path, m))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.Contains(raw, []byte("window: [513, 1760]")), string(raw))
	assert.True(t, bytes.Contains(raw, []byte("missing: [2, 3]")), string(raw))

	var back Manifest
	require.NoError(t, yaml.Unmarshal(raw, &back))
	assert.Equal(t, *m, back)
}
