package bundler

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeWorkspace lays out a small training workspace with entries the
// default excludes should drop.
func writeWorkspace(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	files := map[string]string{
		"Dockerfile":                     "FROM scratch\n",
		"train.py":                       "print('training')\n",
		"data/weights.bin":               "0123456789",
		"nested/deep/config.yaml":        "lr: 0.001\n",
		".git/HEAD":                      "ref: refs/heads/main\n",
		"__pycache__/train.cpython.pyc":  "bytecode",
		".pytest_cache/v/cache/lastfail": "{}",
	}
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return root
}

// readEntries returns archive entry names mapped to file contents.
// Directory entries map to an empty string.
func readEntries(t *testing.T, r io.Reader, compressed bool) map[string]string {
	t.Helper()
	if compressed {
		gz, err := gzip.NewReader(r)
		if err != nil {
			t.Fatalf("gzip reader: %v", err)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	entries := make(map[string]string)
	tr := tar.NewReader(r)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("tar next: %v", err)
		}
		content := ""
		if header.Typeflag == tar.TypeReg {
			data, err := io.ReadAll(tr)
			if err != nil {
				t.Fatalf("tar read %s: %v", header.Name, err)
			}
			content = string(data)
		}
		entries[header.Name] = content
	}
	return entries
}

func TestPackWorkspace_DefaultExcludes(t *testing.T) {
	root := writeWorkspace(t)

	f, size, err := packWorkspace(root, defaultExcludes, true)
	if err != nil {
		t.Fatalf("packWorkspace() error = %v", err)
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(f.Name())
	}()

	if size <= 0 {
		t.Errorf("size = %d, want > 0", size)
	}

	entries := readEntries(t, f, true)

	for _, want := range []string{"Dockerfile", "train.py", "data/weights.bin", "nested/deep/config.yaml"} {
		if _, ok := entries[want]; !ok {
			t.Errorf("archive missing %s, have %v", want, entries)
		}
	}
	if got := entries["train.py"]; got != "print('training')\n" {
		t.Errorf("train.py content = %q", got)
	}
	for name := range entries {
		for _, bad := range []string{".git", "__pycache__", ".pytest_cache"} {
			if strings.Contains(name, bad) {
				t.Errorf("excluded entry %s made it into the archive", name)
			}
		}
	}
}

func TestPackWorkspace_CustomExcludes(t *testing.T) {
	root := writeWorkspace(t)

	f, _, err := packWorkspace(root, []string{"*.bin", "nested"}, true)
	if err != nil {
		t.Fatalf("packWorkspace() error = %v", err)
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(f.Name())
	}()

	entries := readEntries(t, f, true)

	if _, ok := entries["data/weights.bin"]; ok {
		t.Error("*.bin pattern did not exclude data/weights.bin")
	}
	if _, ok := entries["nested/deep/config.yaml"]; ok {
		t.Error("nested directory was not excluded")
	}
	// Custom list replaces the defaults entirely.
	if _, ok := entries[".git/HEAD"]; !ok {
		t.Error("custom exclude list should not drop .git")
	}
}

func TestPackWorkspace_PlainTar(t *testing.T) {
	root := writeWorkspace(t)

	f, _, err := packWorkspace(root, defaultExcludes, false)
	if err != nil {
		t.Fatalf("packWorkspace() error = %v", err)
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(f.Name())
	}()

	entries := readEntries(t, f, false)
	if _, ok := entries["Dockerfile"]; !ok {
		t.Errorf("uncompressed archive missing Dockerfile, have %v", entries)
	}
}

func TestPackWorkspace_MissingRoot(t *testing.T) {
	_, _, err := packWorkspace(filepath.Join(t.TempDir(), "nope"), nil, true)
	if err == nil {
		t.Fatal("packWorkspace() on a missing root should fail")
	}
}

func TestExcluded(t *testing.T) {
	tests := []struct {
		rel      string
		excludes []string
		want     bool
	}{
		{"train.py", defaultExcludes, false},
		{".git/HEAD", defaultExcludes, true},
		{"sub/__pycache__/mod.pyc", defaultExcludes, true},
		{"data/weights.bin", []string{"*.bin"}, true},
		{"data/weights.bin", []string{"*.txt"}, false},
		{"checkpoints", []string{"checkpoints"}, true},
	}
	for _, tt := range tests {
		if got := excluded(tt.rel, tt.excludes); got != tt.want {
			t.Errorf("excluded(%q, %v) = %v, want %v", tt.rel, tt.excludes, got, tt.want)
		}
	}
}

func TestEffectiveExcludes(t *testing.T) {
	if got := effectiveExcludes(nil); len(got) != len(defaultExcludes) {
		t.Errorf("effectiveExcludes(nil) = %v, want defaults", got)
	}
	custom := []string{"checkpoints"}
	if got := effectiveExcludes(custom); len(got) != 1 || got[0] != "checkpoints" {
		t.Errorf("effectiveExcludes(custom) = %v, want %v", got, custom)
	}
}
