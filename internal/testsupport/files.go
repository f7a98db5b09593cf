package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile fills path with size bytes of filler content, creating parent
// directories as needed. Sizes below one are rounded up to a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	size = max(size, 1)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("testsupport: mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("testsupport: create %s: %v", path, err)
	}
	defer f.Close()

	chunk := bytes.Repeat([]byte{0x42}, 32*1024)
	for size > 0 {
		n := min(size, int64(len(chunk)))
		if _, err := f.Write(chunk[:n]); err != nil {
			t.Fatalf("testsupport: write %s: %v", path, err)
		}
		size -= n
	}
}

// WriteTree materializes a staged download directory: keys are paths
// relative to root, values are file sizes in bytes. Import and cleanup tests
// use it to build realistic staging contents.
func WriteTree(t testing.TB, root string, files map[string]int64) {
	t.Helper()

	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", root, err)
	}
	for rel, size := range files {
		WriteFile(t, filepath.Join(root, rel), size)
	}
}
