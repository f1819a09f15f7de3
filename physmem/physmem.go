// Package physmem simulates a physical address space backed by host memory.
package physmem

import (
	"errors"
	"fmt"

	"github.com/QuangTung97/kalloc/frame"
)

// ErrClosed is returned when a closed Memory is used or closed again.
var ErrClosed = errors.New("physmem: memory closed")

// Memory maps physical addresses [Base, Base+Size) to host bytes.
type Memory struct {
	base    frame.Addr
	data    []byte
	release func([]byte) error
}

// New reserves size bytes of host memory to stand in for the physical range
// starting at base.
func New(base frame.Addr, size uint64) (*Memory, error) {
	if size == 0 {
		return nil, errors.New("physmem: size must > 0")
	}
	if size > uint64(^uint(0)>>1) {
		return nil, fmt.Errorf("physmem: size too large to map (%d bytes)", size)
	}
	if uint64(base)+size < uint64(base) {
		return nil, fmt.Errorf("physmem: range %v+%d overflows", base, size)
	}

	data, release, err := mapAnon(int(size))
	if err != nil {
		return nil, fmt.Errorf("physmem: map %d bytes: %w", size, err)
	}
	return &Memory{base: base, data: data, release: release}, nil
}

// Base ...
func (m *Memory) Base() frame.Addr {
	return m.base
}

// End returns the first address past the mapped range.
func (m *Memory) End() frame.Addr {
	return m.base + frame.Addr(len(m.data))
}

// Bytes returns the n bytes starting at addr. The range must be mapped.
func (m *Memory) Bytes(addr frame.Addr, n uint64) []byte {
	if m.data == nil {
		panic(ErrClosed)
	}
	if addr < m.base || uint64(addr-m.base)+n > uint64(len(m.data)) {
		panic(fmt.Sprintf("physmem: range %v+%d outside [%v, %v)", addr, n, m.base, m.End()))
	}
	off := uint64(addr - m.base)
	return m.data[off : off+n : off+n]
}

// Close releases the host memory. Slices returned by Bytes must not be used
// afterwards.
func (m *Memory) Close() error {
	if m.data == nil {
		return ErrClosed
	}
	data := m.data
	m.data = nil
	return m.release(data)
}

// Fill sets every byte of b to v.
func Fill(b []byte, v byte) {
	if len(b) == 0 {
		return
	}
	b[0] = v
	for filled := 1; filled < len(b); filled *= 2 {
		copy(b[filled:], b[:filled])
	}
}
