package kalloc

import (
	"errors"
	"fmt"
)

var (
	// ErrNoFrame is returned by Allocate when no free frame satisfies the
	// placement policy.
	ErrNoFrame = errors.New("kalloc: no frame available")

	// ErrInvalidArgument is returned by the diagnostic calls on nil or empty
	// output buffers.
	ErrInvalidArgument = errors.New("kalloc: invalid argument")
)

// Violation describes a broken caller contract. It is raised with panic and
// must not be recovered: the allocator state can no longer be trusted.
type Violation struct {
	Op     string
	Addr   Addr
	Reason string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("kalloc: %s %v: %s", v.Op, v.Addr, v.Reason)
}
