// Package archive unpacks package archives into a store directory.
package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

// Format is an archive container detected from its leading bytes.
type Format string

const (
	FormatTarGzip Format = "tar+gzip"
	FormatTarZstd Format = "tar+zstd"
	FormatTar     Format = "tar"
	FormatZip     Format = "zip"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported archive format")
	ErrUnsafePath        = errors.New("archive entry escapes the destination")
)

const (
	stagingPattern = ".bitey-extract-*"
	tarMagicOffset = 257
	sniffLen       = 512
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	zipMagic  = []byte("PK\x03\x04")
	tarMagic  = []byte("ustar")
)

// Detect identifies the format from the first bytes of an archive.
func Detect(head []byte) (Format, error) {
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		return FormatTarGzip, nil
	case bytes.HasPrefix(head, zstdMagic):
		return FormatTarZstd, nil
	case bytes.HasPrefix(head, zipMagic):
		return FormatZip, nil
	case len(head) >= tarMagicOffset+len(tarMagic) && bytes.Equal(head[tarMagicOffset:tarMagicOffset+len(tarMagic)], tarMagic):
		return FormatTar, nil
	}
	return "", ErrUnsupportedFormat
}

// Extract unpacks the archive at src into dest, which must exist. When every
// entry lives under one top-level directory that directory is stripped, the
// way tar --strip-components=1 would. Existing files in dest with the same
// names are replaced. Entries whose paths would land outside dest, or that
// would be written through a symlink, fail the whole extraction before
// anything is moved into dest.
func Extract(src, dest string) (Format, error) {
	f, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer f.Close()

	br := bufio.NewReaderSize(f, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading %s: %w", src, err)
	}
	format, err := Detect(head)
	if err != nil {
		return "", err
	}

	staging, err := os.MkdirTemp(dest, stagingPattern)
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(staging)

	root, err := os.OpenRoot(staging)
	if err != nil {
		return "", err
	}
	defer root.Close()

	switch format {
	case FormatTarGzip:
		zr, gerr := gzip.NewReader(br)
		if gerr != nil {
			return format, fmt.Errorf("opening gzip stream: %w", gerr)
		}
		defer zr.Close()
		err = extractTar(zr, root)
	case FormatTarZstd:
		zr, zerr := zstd.NewReader(br)
		if zerr != nil {
			return format, fmt.Errorf("opening zstd stream: %w", zerr)
		}
		defer zr.Close()
		err = extractTar(zr, root)
	case FormatTar:
		err = extractTar(br, root)
	case FormatZip:
		err = extractZip(f, root)
	}
	if err != nil {
		return format, err
	}

	content, err := contentRoot(staging)
	if err != nil {
		return format, err
	}
	return format, moveEntries(content, dest)
}

// entryPath validates an archive entry name and returns it relative to the
// extraction root. ok is false for the root entry itself.
func entryPath(name string) (rel string, ok bool, err error) {
	name = strings.TrimPrefix(strings.ReplaceAll(name, "\\", "/"), "./")
	name = strings.TrimSuffix(name, "/")
	if name == "" || name == "." {
		return "", false, nil
	}

	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return "", false, fmt.Errorf("%w: %q", ErrUnsafePath, name)
		}
	}

	clean := path.Clean(name)
	if strings.HasPrefix(clean, "/") {
		return "", false, fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	osPath := filepath.FromSlash(clean)
	if filepath.IsAbs(osPath) || filepath.VolumeName(osPath) != "" {
		return "", false, fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	return osPath, true, nil
}

// checkLink rejects symlink targets that resolve outside the extraction
// root when followed from the link's directory.
func checkLink(rel, target string) error {
	if filepath.IsAbs(target) {
		return fmt.Errorf("%w: link %q -> %q", ErrUnsafePath, rel, target)
	}
	resolved := filepath.Join(filepath.Dir(rel), filepath.FromSlash(target))
	if resolved == ".." || strings.HasPrefix(resolved, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: link %q -> %q", ErrUnsafePath, rel, target)
	}
	return nil
}

// checkNoLinks rejects an entry when its path, or any directory above it,
// is already a symlink in the staging tree. Links are only ever created,
// never written through.
func checkNoLinks(root *os.Root, rel string) error {
	var prefix string
	for _, seg := range strings.Split(rel, string(filepath.Separator)) {
		prefix = filepath.Join(prefix, seg)
		info, err := root.Lstat(prefix)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return fmt.Errorf("%w: %q goes through link %q", ErrUnsafePath, rel, prefix)
		}
	}
	return nil
}

func extractTar(r io.Reader, root *os.Root) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, tar.ErrInsecurePath) {
			return fmt.Errorf("%w: %q", ErrUnsafePath, hdr.Name)
		}
		if err != nil {
			return fmt.Errorf("reading tar entry: %w", err)
		}

		rel, ok, err := entryPath(hdr.Name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := checkNoLinks(root, rel); err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := root.MkdirAll(rel, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			perm := os.FileMode(hdr.Mode).Perm()
			if perm == 0 {
				perm = 0o644
			}
			if err := writeFile(root, rel, tr, perm); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := checkLink(rel, hdr.Linkname); err != nil {
				return err
			}
			if err := mkdirParent(root, rel); err != nil {
				return err
			}
			if err := root.Symlink(hdr.Linkname, rel); err != nil {
				return err
			}
		default:
			// Hard links, devices and fifos are not meaningful in a package.
		}
	}
}

func extractZip(f *os.File, root *os.Root) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		return fmt.Errorf("opening zip: %w", err)
	}

	for _, zf := range zr.File {
		rel, ok, err := entryPath(zf.Name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := checkNoLinks(root, rel); err != nil {
			return err
		}

		if zf.FileInfo().IsDir() {
			if err := root.MkdirAll(rel, 0o755); err != nil {
				return err
			}
			continue
		}
		if !zf.Mode().IsRegular() {
			continue
		}

		rc, err := zf.Open()
		if err != nil {
			return fmt.Errorf("opening %s: %w", zf.Name, err)
		}
		perm := zf.Mode().Perm()
		if perm == 0 {
			perm = 0o644
		}
		err = writeFile(root, rel, rc, perm)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func mkdirParent(root *os.Root, rel string) error {
	dir := filepath.Dir(rel)
	if dir == "." {
		return nil
	}
	return root.MkdirAll(dir, 0o755)
}

func writeFile(root *os.Root, rel string, r io.Reader, perm os.FileMode) error {
	if err := mkdirParent(root, rel); err != nil {
		return err
	}
	out, err := root.OpenFile(rel, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("writing %s: %w", rel, err)
	}
	return out.Close()
}

// contentRoot returns the single top-level directory of the staging tree,
// or the staging directory itself when there is more than one entry.
func contentRoot(staging string) (string, error) {
	entries, err := os.ReadDir(staging)
	if err != nil {
		return "", err
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(staging, entries[0].Name()), nil
	}
	return staging, nil
}

func moveEntries(from, dest string) error {
	entries, err := os.ReadDir(from)
	if err != nil {
		return err
	}
	for _, e := range entries {
		target := filepath.Join(dest, e.Name())
		if err := os.RemoveAll(target); err != nil {
			return err
		}
		if err := os.Rename(filepath.Join(from, e.Name()), target); err != nil {
			return err
		}
	}
	return nil
}
