// Package cmd implements the ofsrescue commands.
package cmd

import (
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/lvdlvd/ofsrescue/fsys"
	"github.com/lvdlvd/ofsrescue/salvage"
)

// LsOptions controls ls behavior
type LsOptions struct {
	Long      bool // Long format (-l)
	Recursive bool // Descend into directories (-R)
}

// Ls lists the contents of a path in the filesystem.
// If the path is a file, it shows file information.
// If the path is a directory, it lists its contents.
func Ls(filesystem fsys.FS, fsPath string, out io.Writer, opts LsOptions) error {
	// Normalize path
	fsPath = normalizePath(fsPath)

	info, err := fs.Stat(filesystem, fsPath)
	if err != nil {
		return err
	}

	// If it's a file, show its info
	if !info.IsDir() {
		return showFileInfo(info, out, opts.Long)
	}
	if !opts.Recursive {
		return listDirectory(filesystem, fsPath, out, opts)
	}

	// Recursive listing prints one block per directory
	return fs.WalkDir(filesystem, fsPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != fsPath {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "%s:\n", p)
		return listDirectory(filesystem, p, out, opts)
	})
}

func normalizePath(p string) string {
	// Remove leading /
	p = strings.TrimPrefix(p, "/")

	// Handle empty path
	if p == "" {
		return "."
	}

	// Clean the path
	return path.Clean(p)
}

func listDirectory(filesystem fsys.FS, dirPath string, out io.Writer, opts LsOptions) error {
	entries, err := fs.ReadDir(filesystem, dirPath)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if opts.Long {
			info, err := entry.Info()
			if err != nil {
				fmt.Fprintf(out, "%-10s %12s %s %s\n", "?????????", "?", "????????????", entry.Name())
				continue
			}
			printLongFormat(info, out)
			continue
		}

		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		fmt.Fprintln(out, name)
	}

	return nil
}

func showFileInfo(info fs.FileInfo, out io.Writer, long bool) error {
	if long {
		printLongFormat(info, out)
	} else {
		fmt.Fprintln(out, info.Name())
	}
	return nil
}

func printLongFormat(info fs.FileInfo, out io.Writer) {
	mode := info.Mode()
	size := info.Size()
	modTime := info.ModTime().Format("Jan _2  2006")
	name := info.Name()

	// Check if we have inode info
	var inode string
	if fi, ok := info.(fsys.FileInfo); ok {
		inode = fmt.Sprintf("%5d ", fi.Inode())
	}

	// Flag orphans and files with gaps
	var note string
	if f, ok := info.Sys().(*salvage.File); ok {
		switch missing := len(f.Missing()); {
		case f.Orphan:
			note = "  (orphan)"
		case missing > 0:
			note = fmt.Sprintf("  (%d blocks missing)", missing)
		}
	}

	fmt.Fprintf(out, "%s%s %8d %s %s%s\n", inode, mode, size, modTime, name, note)
}
