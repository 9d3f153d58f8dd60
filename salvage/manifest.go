package salvage

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"
)

// Manifest is the YAML record of a recovery run
type Manifest struct {
	Image       string         `yaml:"image,omitempty"`
	Output      string         `yaml:"output"`
	Window      [2]int         `yaml:"window,flow"`
	Root        uint32         `yaml:"root_sector"`
	Counts      Counts         `yaml:"sectors"`
	Orphans     int            `yaml:"orphans"`
	Files       []ManifestFile `yaml:"files"`
	Diagnostics []string       `yaml:"diagnostics,omitempty"`
}

// ManifestFile describes one recovered file
type ManifestFile struct {
	Path         string   `yaml:"path"`
	HeaderKey    uint32   `yaml:"header_key"`
	Orphan       bool     `yaml:"orphan,omitempty"`
	DeclaredSize uint32   `yaml:"declared_size,omitempty"`
	Size         int64    `yaml:"size"`
	Blocks       uint64   `yaml:"blocks"`
	Missing      []uint32 `yaml:"missing,omitempty,flow"`
	Digest       string   `yaml:"blake2b,omitempty"`
	Error        string   `yaml:"error,omitempty"`
}

// BuildManifest describes rep. Digests are computed from the files as
// written below root; a file that is absent gets no digest, and a path
// taken by something other than a regular file is recorded as an error.
func BuildManifest(rep *Report, root string) (*Manifest, error) {
	mat := NewMaterializer(root)
	m := &Manifest{
		Output:  root,
		Window:  [2]int{rep.Start, rep.End},
		Root:    rep.Root,
		Counts:  rep.Counts,
		Orphans: rep.Orphans(),
		Files:   make([]ManifestFile, 0, len(rep.Files)),
	}

	for _, f := range rep.Files {
		mf := ManifestFile{
			Path:         f.Path(),
			HeaderKey:    f.HeaderKey,
			Orphan:       f.Orphan,
			DeclaredSize: f.DeclaredSize,
			Size:         f.Size(),
			Blocks:       f.Written(),
			Missing:      f.Missing(),
		}
		if f.Err() != nil {
			mf.Error = f.Err().Error()
		} else {
			sum, err := digestFile(mat.Destination(f.Dirs, f.Name))
			switch {
			case err == nil:
				mf.Digest = sum
			case errors.Is(err, errNotRegular):
				mf.Error = err.Error()
			case !errors.Is(err, fs.ErrNotExist):
				return nil, fmt.Errorf("digest %s: %w", mf.Path, err)
			}
		}
		m.Files = append(m.Files, mf)
	}

	for _, d := range rep.Diagnostics {
		m.Diagnostics = append(m.Diagnostics, d.String())
	}
	return m, nil
}

// WriteManifest encodes m as YAML to path
func WriteManifest(path string, m *Manifest) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create manifest %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return EncodeManifest(f, m)
}

// EncodeManifest writes m as YAML
func EncodeManifest(w io.Writer, m *Manifest) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	return enc.Close()
}

var errNotRegular = errors.New("not a regular file")

func digestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return "", err
	}
	if !fi.Mode().IsRegular() {
		return "", fmt.Errorf("%s: %w (%s)", path, errNotRegular, fi.Mode().Type())
	}

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
