package bundler

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// defaultExcludes are left out of every bundle unless the configuration
// supplies its own exclude list.
var defaultExcludes = []string{".git", ".venv", ".idea", "__pycache__", ".pytest_cache"}

// effectiveExcludes returns the configured exclude list, or the defaults
// when nothing is configured.
func effectiveExcludes(configured []string) []string {
	if len(configured) == 0 {
		return defaultExcludes
	}
	return configured
}

// excluded reports whether any segment of the slash-separated relative
// path matches one of the exclude patterns. Patterns use filepath.Match
// syntax, so "*.bin" excludes by suffix and ".git" by exact name.
func excluded(rel string, excludes []string) bool {
	for _, part := range strings.Split(rel, "/") {
		for _, pattern := range excludes {
			if ok, _ := filepath.Match(pattern, part); ok {
				return true
			}
		}
	}
	return false
}

// packWorkspace archives the tree under root into a temp file, honoring
// excludes, and returns the file positioned at the start together with
// its size. The caller removes the file when done with it.
func packWorkspace(root string, excludes []string, compress bool) (*os.File, int64, error) {
	f, err := os.CreateTemp("", "skiff-bundle-*")
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create bundle scratch file: %w", err)
	}

	var w io.Writer = f
	var gz *gzip.Writer
	if compress {
		gz = gzip.NewWriter(f)
		w = gz
	}
	tw := tar.NewWriter(w)

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		name := filepath.ToSlash(rel)
		if excluded(name, excludes) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		return addEntry(tw, path, name, d)
	})
	if walkErr == nil {
		walkErr = tw.Close()
	}
	if walkErr == nil && gz != nil {
		walkErr = gz.Close()
	}
	if walkErr != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, 0, fmt.Errorf("failed to pack %s: %w", root, walkErr)
	}

	info, err := f.Stat()
	if err == nil {
		_, err = f.Seek(0, io.SeekStart)
	}
	if err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, 0, fmt.Errorf("failed to finalize bundle: %w", err)
	}
	return f, info.Size(), nil
}

// addEntry writes one directory entry to the archive. Sockets and other
// irregular files are skipped.
func addEntry(tw *tar.Writer, path, name string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	link := ""
	switch {
	case d.Type()&fs.ModeSymlink != 0:
		if link, err = os.Readlink(path); err != nil {
			return err
		}
	case !d.IsDir() && !d.Type().IsRegular():
		return nil
	}

	header, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	header.Name = name
	if d.IsDir() {
		header.Name += "/"
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	if !d.Type().IsRegular() {
		return nil
	}
	src, err := os.Open(path) // #nosec G304 -- path comes from walking the workspace
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()
	_, err = io.Copy(tw, src)
	return err
}
