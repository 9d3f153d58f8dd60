package image

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvdlvd/ofsrescue/detect"
	"github.com/lvdlvd/ofsrescue/internal/adftest"
)

func sample() []byte {
	b := adftest.NewDD()
	copy(b.Sector(0), "DOS\x00")
	b.Root(880, "Workbench")
	b.File(920, "readme", 880, adftest.Pattern(1000, 1), 921, 922, 923)
	return b.Bytes()
}

func compress(t *testing.T, data []byte, c detect.Container) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewWriter(&buf, c)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestDecodeContainers(t *testing.T) {
	want := sample()
	for _, c := range []detect.Container{detect.Raw, detect.Gzip, detect.Zstd, detect.LZ4, detect.Snappy} {
		t.Run(c.String(), func(t *testing.T) {
			packed := compress(t, want, c)
			if c != detect.Raw {
				assert.Less(t, len(packed), len(want))
			}

			got, kind, err := Decode(bytes.NewReader(packed))
			require.NoError(t, err)
			assert.Equal(t, c, kind)
			assert.Equal(t, want, got)
		})
	}
}

func TestLoad(t *testing.T) {
	want := sample()
	path := filepath.Join(t.TempDir(), "disk.adz")
	require.NoError(t, os.WriteFile(path, compress(t, want, detect.Gzip), 0o644))

	got, kind, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, detect.Gzip, kind)
	assert.Equal(t, want, got)

	_, _, err = Load(filepath.Join(t.TempDir(), "missing.adf"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDecodeShortInput(t *testing.T) {
	got, kind, err := Decode(bytes.NewReader([]byte("DOS")))
	require.NoError(t, err)
	assert.Equal(t, detect.Raw, kind)
	assert.Equal(t, []byte("DOS"), got)
}

func TestDecodeTooLarge(t *testing.T) {
	huge := compress(t, make([]byte, MaxSize+1), detect.Zstd)
	_, _, err := Decode(bytes.NewReader(huge))
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestDecodeCorrupt(t *testing.T) {
	_, _, err := Decode(bytes.NewReader([]byte{0x1f, 0x8b, 0xff, 0xff, 0xff}))
	assert.Error(t, err)
}
