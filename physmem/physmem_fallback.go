//go:build !unix

package physmem

// mapAnon allocates from the Go heap when mmap is not available.
func mapAnon(size int) ([]byte, func([]byte) error, error) {
	return make([]byte, size), func([]byte) error { return nil }, nil
}
