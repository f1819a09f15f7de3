//go:build unix

package physmem

import (
	"errors"

	"golang.org/x/sys/unix"
)

// mapAnon maps size bytes of zeroed, private, anonymous memory.
func mapAnon(size int) ([]byte, func([]byte) error, error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, err
	}
	release := func(b []byte) error {
		err := unix.Munmap(b)
		if errors.Is(err, unix.EINVAL) {
			// Treat double-unmap as no-op for callers.
			return nil
		}
		return err
	}
	return data, release, nil
}
