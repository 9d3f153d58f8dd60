package cmd

import (
	"fmt"
	"io"
	"io/fs"

	"github.com/lvdlvd/ofsrescue/fsys"
	"github.com/lvdlvd/ofsrescue/ofs"
	"github.com/lvdlvd/ofsrescue/salvage"
)

// Cat copies the contents of a file to the given writer.
// When the filesystem supports extent mapping, it streams directly
// from the underlying image without loading the file into memory.
func Cat(filesystem fsys.FS, fsPath string, out io.Writer) error {
	// Normalize path
	fsPath = normalizePath(fsPath)

	info, err := fs.Stat(filesystem, fsPath)
	if err != nil {
		return err
	}

	// Check if it's a directory
	if info.IsDir() {
		return fmt.Errorf("%s: is a directory", fsPath)
	}

	fileSize := info.Size()

	// Try extent-based streaming first
	if em, ok := filesystem.(fsys.ExtentMapper); ok {
		if br, ok := filesystem.(interface{ BaseReader() io.ReaderAt }); ok {
			extents, err := em.FileExtents(fsPath)
			if err == nil && len(extents) > 0 {
				reader := fsys.NewExtentReaderAt(br.BaseReader(), extents, fileSize)
				return streamFromReaderAt(reader, fileSize, out)
			}
		}
	}

	// Fall back to standard file reading
	file, err := filesystem.Open(fsPath)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = io.Copy(out, file)
	return err
}

// streamFromReaderAt copies data from a ReaderAt to a Writer in chunks
func streamFromReaderAt(r io.ReaderAt, size int64, out io.Writer) error {
	const bufSize = 64 * 1024 // 64KB chunks
	buf := make([]byte, bufSize)
	offset := int64(0)

	for offset < size {
		toRead := int64(bufSize)
		if offset+toRead > size {
			toRead = size - offset
		}

		// Partial reads still carry data
		n, err := r.ReadAt(buf[:toRead], offset)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return werr
			}
			offset += int64(n)
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
	}

	return nil
}

// Stat shows detailed information about a file or directory.
func Stat(filesystem fsys.FS, fsPath string, out io.Writer) error {
	// Normalize path
	fsPath = normalizePath(fsPath)

	info, err := fs.Stat(filesystem, fsPath)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "   File: %s\n", info.Name())
	fmt.Fprintf(out, "   Size: %d\n", info.Size())
	fmt.Fprintf(out, "   Mode: %s\n", info.Mode())
	if !info.IsDir() {
		fmt.Fprintf(out, "ModTime: %s\n", info.ModTime().Format("2006-01-02 15:04:05"))
	}

	if fi, ok := info.(fsys.FileInfo); ok && fi.Inode() != 0 {
		fmt.Fprintf(out, " Header: %d\n", fi.Inode())
	}

	// Salvage details only exist for recovered files
	f, ok := info.Sys().(*salvage.File)
	if !ok {
		return nil
	}
	if f.Orphan {
		fmt.Fprintf(out, " Orphan: header block %d not found\n", f.HeaderKey)
	} else {
		fmt.Fprintf(out, "Declared size: %d\n", f.DeclaredSize)
	}
	fmt.Fprintf(out, " Blocks: %d\n", f.Written())
	if missing := f.Missing(); len(missing) > 0 {
		fmt.Fprintf(out, "Missing: %v\n", missing)
	}
	fmt.Fprintln(out, "Extents:")
	for _, e := range f.Extents() {
		fmt.Fprintf(out, "  %8d +%-4d  sector %d\n", e.Logical, e.Length, e.Physical/ofs.SectorSize)
	}

	return nil
}
