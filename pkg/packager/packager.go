// Package packager builds the zip archives served as template downloads.
package packager

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// DefaultExcludes are the names left out of every archive: the catalog
// manifest and version control metadata.
var DefaultExcludes = []string{"info.json", ".git"}

// Packager zips template directories.
type Packager struct {
	exclude map[string]struct{}
}

// New returns a packager skipping any file or directory whose base name is
// in exclude. With no names given, DefaultExcludes is used.
func New(exclude ...string) *Packager {
	if len(exclude) == 0 {
		exclude = DefaultExcludes
	}
	p := &Packager{exclude: make(map[string]struct{}, len(exclude))}
	for _, name := range exclude {
		p.exclude[name] = struct{}{}
	}
	return p
}

// Write streams the contents of dir into a zip archive on w. Entry names are
// relative to dir and use forward slashes. Symlinks and other non-regular
// files are skipped. It returns the number of files added.
func (p *Packager) Write(ctx context.Context, dir string, w io.Writer) (int, error) {
	zw := zip.NewWriter(w)
	added := 0

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err = ctx.Err(); err != nil {
			return err
		}
		if path == dir {
			return nil
		}
		if _, skip := p.exclude[d.Name()]; skip {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if err = addFile(zw, path, filepath.ToSlash(rel)); err != nil {
			return err
		}
		added++
		return nil
	})
	if err != nil {
		_ = zw.Close()
		return added, fmt.Errorf("failed to package %q: %w", dir, err)
	}
	if err = zw.Close(); err != nil {
		return added, fmt.Errorf("failed to finish archive for %q: %w", dir, err)
	}
	return added, nil
}

// WriteTemp packages dir into a new temporary file and returns it rewound to
// the start. The caller must close and remove it.
func (p *Packager) WriteTemp(ctx context.Context, dir string) (*os.File, int64, error) {
	f, err := os.CreateTemp("", "template_*.zip")
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create temp archive: %w", err)
	}
	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(f.Name())
	}

	if _, err = p.Write(ctx, dir, f); err != nil {
		cleanup()
		return nil, 0, err
	}
	size, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		cleanup()
		return nil, 0, fmt.Errorf("failed to size temp archive: %w", err)
	}
	if _, err = f.Seek(0, io.SeekStart); err != nil {
		cleanup()
		return nil, 0, fmt.Errorf("failed to rewind temp archive: %w", err)
	}
	return f, size, nil
}

func addFile(zw *zip.Writer, path, name string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func(src *os.File) {
		_ = src.Close()
	}(src)

	info, err := src.Stat()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate

	dst, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	return err
}
