package logs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const (
	chunkSize    = 32 * 1024
	maxReadBytes = 4 << 20
	pollInterval = 250 * time.Millisecond
)

// TailOptions selects what Tail returns. A negative Offset means "the last
// Limit lines"; otherwise lines after Offset are returned. With Follow and a
// positive Wait, Tail polls until at least one new line appears or Wait ends.
type TailOptions struct {
	Offset int64
	Limit  int
	Follow bool
	Wait   time.Duration
}

// TailResult carries the lines read and the offset to resume from.
type TailResult struct {
	Lines  []string
	Offset int64
}

// Tail reads complete lines from path according to opts. A missing file is
// not an error and yields offset 0.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return TailResult{}, nil
	}
	if err != nil {
		return TailResult{Offset: opts.Offset}, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return TailResult{Offset: opts.Offset}, fmt.Errorf("log path %q is a directory", path)
	}

	var result TailResult
	if opts.Offset < 0 {
		result, err = lastLines(path, opts.Limit)
	} else {
		result, err = linesAfter(path, opts.Offset)
	}
	if err != nil || len(result.Lines) > 0 || !opts.Follow || opts.Wait <= 0 {
		return result, err
	}
	return follow(ctx, path, result.Offset, opts.Wait)
}

// lastLines reads backwards in chunks until limit complete lines are found.
func lastLines(path string, limit int) (TailResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return TailResult{}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	size, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return TailResult{}, fmt.Errorf("seek log file: %w", err)
	}
	end := completeEnd(file, size)
	if limit <= 0 || end == 0 {
		return TailResult{Offset: end}, nil
	}

	var (
		buf   []byte
		start = end
	)
	for start > 0 && bytes.Count(buf, []byte{'\n'}) <= limit && int64(len(buf)) < maxReadBytes {
		n := int64(chunkSize)
		if start < n {
			n = start
		}
		start -= n
		chunk := make([]byte, n)
		if _, err := file.ReadAt(chunk, start); err != nil && !errors.Is(err, io.EOF) {
			return TailResult{}, fmt.Errorf("read log file: %w", err)
		}
		buf = append(chunk, buf...)
	}

	lines := splitLines(buf)
	if start > 0 && len(lines) > 0 {
		// The first line is a fragment when we stopped mid-file.
		lines = lines[1:]
	}
	if len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	return TailResult{Lines: lines, Offset: end}, nil
}

// linesAfter returns complete lines between offset and the last newline.
func linesAfter(path string, offset int64) (TailResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return TailResult{Offset: offset}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	size, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return TailResult{Offset: offset}, fmt.Errorf("seek log file: %w", err)
	}
	if offset > size {
		// Rotated or truncated; start over from the top.
		offset = 0
	}
	end := completeEnd(file, size)
	if end <= offset {
		return TailResult{Offset: offset}, nil
	}
	if end-offset > maxReadBytes {
		end = offset + maxReadBytes
	}
	buf := make([]byte, end-offset)
	if _, err := file.ReadAt(buf, offset); err != nil && !errors.Is(err, io.EOF) {
		return TailResult{Offset: offset}, fmt.Errorf("read log file: %w", err)
	}
	if idx := bytes.LastIndexByte(buf, '\n'); idx >= 0 {
		buf = buf[:idx+1]
	}
	return TailResult{Lines: splitLines(buf), Offset: offset + int64(len(buf))}, nil
}

func follow(ctx context.Context, path string, offset int64, wait time.Duration) (TailResult, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return TailResult{Offset: offset}, ctx.Err()
		case <-timer.C:
			return TailResult{Offset: offset}, nil
		case <-ticker.C:
			result, err := linesAfter(path, offset)
			if err != nil || len(result.Lines) > 0 {
				return result, err
			}
			offset = result.Offset
		}
	}
}

// completeEnd returns the offset just past the last newline in file.
func completeEnd(file *os.File, size int64) int64 {
	end := size
	var b [1]byte
	for end > 0 {
		if _, err := file.ReadAt(b[:], end-1); err != nil {
			return end
		}
		if b[0] == '\n' {
			return end
		}
		end--
		if size-end > maxReadBytes {
			return size
		}
	}
	return 0
}

func splitLines(buf []byte) []string {
	buf = bytes.TrimSuffix(buf, []byte{'\n'})
	if len(buf) == 0 {
		return nil
	}
	parts := bytes.Split(buf, []byte{'\n'})
	lines := make([]string, len(parts))
	for i, p := range parts {
		lines[i] = string(bytes.TrimSuffix(p, []byte{'\r'}))
	}
	return lines
}
