package queue

import (
	"fmt"

	"golang.org/x/sys/unix"
)

const bytesPerMB = 1024 * 1024

// freeBytes reports the space available to unprivileged writers on the
// filesystem holding dir.
func freeBytes(dir string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", dir, err)
	}
	return st.Bavail * uint64(st.Bsize), nil
}

// check rejects a Put of size bytes when it would break a configured limit.
func (l limits) check(dir string, pending int, pendingBytes int64, size int) error {
	if l.maxItems > 0 && pending+1 > l.maxItems {
		return fmt.Errorf("%w: %d items pending, limit %d", ErrQuotaExceeded, pending, l.maxItems)
	}
	if l.maxBytes > 0 && pendingBytes+int64(size) > l.maxBytes {
		return fmt.Errorf("%w: %d bytes pending plus %d exceeds limit %d", ErrQuotaExceeded, pendingBytes, size, l.maxBytes)
	}
	if l.minFreeMB > 0 && dir != "" {
		free, err := freeBytes(dir)
		if err != nil {
			return err
		}
		headroom := uint64(l.minFreeMB) * bytesPerMB
		if free < headroom+uint64(size) {
			return fmt.Errorf("%w: %d MB free, need %d MB headroom", ErrQuotaExceeded, free/bytesPerMB, l.minFreeMB)
		}
	}
	return nil
}
