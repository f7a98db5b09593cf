package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const (
	scanBufferInitial = 64 * 1024
	scanBufferMax     = 1024 * 1024
	followPollEvery   = 250 * time.Millisecond
)

// TailOptions controls one tail request. A negative Offset means "backfill
// the last Limit lines and report where the file ends"; a non-negative
// Offset reads forward from that byte position. Follow with a positive Wait
// blocks up to Wait for new lines when the immediate read comes back empty.
type TailOptions struct {
	Offset int64
	Limit  int
	Follow bool
	Wait   time.Duration
}

// TailResult carries the lines read and the offset a caller should pass on
// its next request to continue without gaps.
type TailResult struct {
	Lines  []string
	Offset int64
}

// Tail reads daemon log lines by byte offset. A missing file is not an
// error: the daemon may not have written anything yet, so the caller gets an
// empty result with offset zero and can simply poll again.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	result := TailResult{Offset: opts.Offset}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			result.Offset = 0
			return result, nil
		}
		return result, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return result, fmt.Errorf("log path %q is a directory", path)
	}
	if opts.Wait < 0 {
		opts.Wait = 0
	}

	if opts.Offset < 0 {
		lines, offset, err := lastLines(path, opts.Limit)
		if err != nil {
			return result, err
		}
		result.Lines = lines
		result.Offset = offset
		if opts.Follow && opts.Wait > 0 && len(lines) == 0 {
			return awaitAppend(ctx, path, result.Offset, opts.Wait)
		}
		return result, nil
	}

	offset := opts.Offset
	if offset > info.Size() {
		// The file was rotated or truncated under the cursor; restart at
		// the current end rather than replaying the whole file.
		offset = info.Size()
	}
	lines, next, err := scanFrom(path, offset)
	if err != nil {
		return result, err
	}
	result.Lines = lines
	result.Offset = next
	if opts.Follow && opts.Wait > 0 && len(lines) == 0 {
		return awaitAppend(ctx, path, next, opts.Wait)
	}
	return result, nil
}

// lastLines returns up to limit trailing lines plus the end-of-file offset.
func lastLines(path string, limit int) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if limit <= 0 {
		end, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, fmt.Errorf("seek log file: %w", err)
		}
		return nil, end, nil
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, scanBufferInitial), scanBufferMax)

	ring := make([]string, limit)
	count := 0
	idx := 0
	for scanner.Scan() {
		ring[idx] = scanner.Text()
		idx = (idx + 1) % limit
		if count < limit {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read log file: %w", err)
	}

	end, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, 0, fmt.Errorf("seek log file: %w", err)
	}

	lines := make([]string, count)
	if count == limit {
		for i := 0; i < count; i++ {
			lines[i] = ring[(idx+i)%limit]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines, end, nil
}

// scanFrom reads every complete line between offset and the current end of
// file, returning the new end offset.
func scanFrom(path string, offset int64) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, 0, fmt.Errorf("seek log file: %w", err)
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, scanBufferInitial), scanBufferMax)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read log file: %w", err)
	}

	next, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, 0, fmt.Errorf("determine log offset: %w", err)
	}
	return lines, next, nil
}

// awaitAppend polls the file until new lines land, the wait expires, or the
// context is cancelled. The returned offset always reflects the last read so
// the caller can resume cleanly in every case.
func awaitAppend(ctx context.Context, path string, offset int64, wait time.Duration) (TailResult, error) {
	deadline := time.Now().Add(wait)

	ticker := time.NewTicker(followPollEvery)
	defer ticker.Stop()

	result := TailResult{Offset: offset}
	for {
		lines, next, err := scanFrom(path, offset)
		if err != nil {
			return result, err
		}
		if len(lines) > 0 {
			result.Lines = lines
			result.Offset = next
			return result, nil
		}
		if time.Now().After(deadline) {
			result.Offset = next
			return result, nil
		}

		select {
		case <-ctx.Done():
			result.Offset = next
			return result, ctx.Err()
		case <-ticker.C:
		}
	}
}
