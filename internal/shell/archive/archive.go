// Package archive moves file trees in and out of containers: tar streams for
// build contexts and container copies, gzip files for data exports, and
// plain tree copies for staging.
package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// =============================================================================
// Tar
// =============================================================================

// TarDir writes the tree under dir as a tar stream with slash-separated
// names relative to dir.
func TarDir(dir string, w io.Writer) error {
	tw := tar.NewWriter(w)
	if err := walkInto(tw, dir, ""); err != nil {
		return err
	}
	return tw.Close()
}

// TarPath writes src, a file or a directory, as a tar stream whose single
// top-level entry is called name.
func TarPath(src, name string, w io.Writer) error {
	tw := tar.NewWriter(w)
	if err := walkInto(tw, src, name); err != nil {
		return err
	}
	return tw.Close()
}

// walkInto adds the tree under root, prefixing entry names with prefix. An
// empty prefix omits root itself.
func walkInto(tw *tar.Writer, root, prefix string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		name := path.Join(prefix, filepath.ToSlash(rel))
		if rel == "." {
			if prefix == "" {
				return nil
			}
			name = prefix
		}
		info, err := d.Info()
		if err != nil {
			return err
		}

		link := ""
		if info.Mode()&fs.ModeSymlink != 0 {
			if link, err = os.Readlink(p); err != nil {
				return err
			}
		}
		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = name
		if d.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
}

// FirstEntry returns the top-level name of the first entry of a tar stream.
func FirstEntry(r io.Reader) (string, error) {
	hdr, err := tar.NewReader(r).Next()
	if errors.Is(err, io.EOF) {
		return "", errors.New("empty archive")
	}
	if err != nil {
		return "", err
	}
	head, _, _ := strings.Cut(strings.TrimPrefix(hdr.Name, "./"), "/")
	return head, nil
}

// Rebase copies a tar stream, replacing the first path element of every
// entry with root. Filestores exported under one database name are
// imported under another this way.
func Rebase(r io.Reader, w io.Writer, root string) error {
	tr := tar.NewReader(r)
	tw := tar.NewWriter(w)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		name := strings.TrimPrefix(hdr.Name, "./")
		if _, rest, ok := strings.Cut(name, "/"); ok {
			hdr.Name = root + "/" + rest
		} else {
			hdr.Name = root
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if _, err := io.Copy(tw, tr); err != nil {
			return err
		}
	}
	return tw.Close()
}

// =============================================================================
// Gzip Files
// =============================================================================

// WriteGzipFile compresses r into the file at p.
func WriteGzipFile(p string, r io.Reader) error {
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	zw, err := gzip.NewWriterLevel(f, gzip.BestSpeed)
	if err != nil {
		f.Close()
		return err
	}
	if _, err := io.Copy(zw, r); err != nil {
		zw.Close()
		f.Close()
		return fmt.Errorf("compress %s: %w", p, err)
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

type gzipFile struct {
	*gzip.Reader
	f *os.File
}

func (g *gzipFile) Close() error {
	err := g.Reader.Close()
	if ferr := g.f.Close(); err == nil {
		err = ferr
	}
	return err
}

// OpenGzipFile opens a gzip file for decompressed reading.
func OpenGzipFile(p string) (io.ReadCloser, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	zr, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open %s: %w", p, err)
	}
	return &gzipFile{Reader: zr, f: f}, nil
}

// IsGzipTar reports whether p is named like a compressed tarball.
func IsGzipTar(p string) bool {
	return strings.HasSuffix(p, ".tar.gz") || strings.HasSuffix(p, ".tgz")
}

// =============================================================================
// Tree Copies
// =============================================================================

// CopyTree copies the directory src into dst, keeping modes and symlinks.
func CopyTree(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", src)
	}
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case d.IsDir():
			return os.MkdirAll(target, 0o755)
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(p)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case d.Type().IsRegular():
			return CopyFile(p, target)
		}
		return nil
	})
}

// CopyFile copies one regular file, creating parent directories.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
