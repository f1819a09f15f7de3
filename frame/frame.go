// Package frame contains the bookkeeping structures of the physical frame
// allocator: the frame table and the free list threaded through it.
package frame

import "fmt"

// Addr is a physical address. Frame addresses are multiples of the frame size.
type Addr uint64

// String ...
func (a Addr) String() string {
	return fmt.Sprintf("%#x", uint64(a))
}

// Owner tags a frame as free, held by the kernel or billed to a process.
type Owner int32

const (
	// OwnerFree marks a frame that is linked in the free list.
	OwnerFree Owner = 0
	// OwnerKernel marks a frame allocated but not yet billed to a process.
	OwnerKernel Owner = -2
)

// IsProcess reports whether o is a process identifier.
func (o Owner) IsProcess() bool {
	return o > 0
}

// Valid reports whether o can own a frame.
func (o Owner) Valid() bool {
	return o == OwnerKernel || o.IsProcess()
}

// String ...
func (o Owner) String() string {
	switch {
	case o == OwnerFree:
		return "free"
	case o == OwnerKernel:
		return "kernel"
	case o.IsProcess():
		return fmt.Sprintf("pid %d", int32(o))
	default:
		return fmt.Sprintf("owner(%d)", int32(o))
	}
}

// Descriptor ...
type Descriptor struct {
	Addr  Addr
	Owner Owner
}

// nullIndex terminates free list chains.
const nullIndex uint32 = ^uint32(0)
