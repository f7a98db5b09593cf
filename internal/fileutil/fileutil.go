package fileutil

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

// copyConcurrency bounds the parallel per-file copies of a cross-device
// directory move.
const copyConcurrency = 4

// CopyFileVerified streams src to dst with SHA256 + size integrity
// verification, preserving the source permission bits. Removes dst on
// mismatch.
func CopyFileVerified(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	srcSize := srcInfo.Size()

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, srcInfo.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
	}()

	srcHasher := sha256.New()
	dstHasher := sha256.New()
	tee := io.TeeReader(in, srcHasher)
	multi := io.MultiWriter(out, dstHasher)

	written, err := io.Copy(multi, tee)
	if err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	if written != srcSize {
		_ = os.Remove(dst)
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", srcSize, written)
	}

	if !bytes.Equal(srcHasher.Sum(nil), dstHasher.Sum(nil)) {
		_ = os.Remove(dst)
		return fmt.Errorf("copy hash mismatch: file corrupted during copy")
	}

	return nil
}

// CopyDirVerified replicates a directory tree with per-file verification.
// Special files are skipped; regular file copies run in parallel.
func CopyDirVerified(src, dst string) error {
	if src == "" || dst == "" {
		return errors.New("copy dir: empty path")
	}
	type pendingCopy struct {
		src string
		dst string
	}
	var files []pendingCopy
	err := filepath.WalkDir(src, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if entry.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		files = append(files, pendingCopy{src: path, dst: target})
		return nil
	})
	if err != nil {
		return err
	}

	group := new(errgroup.Group)
	group.SetLimit(copyConcurrency)
	for _, file := range files {
		file := file
		group.Go(func() error {
			return CopyFileVerified(file.src, file.dst)
		})
	}
	return group.Wait()
}

// MoveDir relocates a directory, preferring an atomic rename and falling
// back to a verified copy plus source delete when the destination is on a
// different filesystem. A failed fallback removes the partial destination
// and leaves the source untouched.
func MoveDir(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !isCrossDevice(err) {
		return err
	}
	if copyErr := CopyDirVerified(src, dst); copyErr != nil {
		_ = os.RemoveAll(dst)
		return copyErr
	}
	return os.RemoveAll(src)
}

// isCrossDevice reports whether err is rename's EXDEV failure mode.
func isCrossDevice(err error) bool {
	var linkErr *os.LinkError
	return errors.As(err, &linkErr) && errors.Is(linkErr.Err, syscall.EXDEV)
}

// UniquePath returns path when nothing occupies it, otherwise a variant
// with a UTC timestamp suffix inserted before any extension. Repeated
// same-second collisions fall back to a counter.
func UniquePath(path string) (string, error) {
	const maxAttempts = 10000
	free, err := pathFree(path)
	if err != nil {
		return "", err
	}
	if free {
		return path, nil
	}

	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	stamp := time.Now().UTC().Format("20060102-150405")

	candidate := base + "-" + stamp + ext
	free, err = pathFree(candidate)
	if err != nil {
		return "", err
	}
	if free {
		return candidate, nil
	}

	for attempt := 2; attempt <= maxAttempts; attempt++ {
		candidate := fmt.Sprintf("%s-%s-%d%s", base, stamp, attempt, ext)
		free, err := pathFree(candidate)
		if err != nil {
			return "", err
		}
		if free {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("exhausted unique name slots for %s", path)
}

func pathFree(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return false, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	return false, err
}

// DirSize returns the total size in bytes of all regular files under root.
// Unlike a best-effort scan, walk errors propagate: callers size a payload
// before moving it and must not trust a partial answer.
func DirSize(root string) (int64, error) {
	var size int64
	err := filepath.WalkDir(root, func(_ string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !entry.Type().IsRegular() {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		size += info.Size()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return size, nil
}
