// Package placement decides which free frame satisfies an allocation request.
package placement

import (
	"fmt"
	"strings"

	"github.com/QuangTung97/kalloc/frame"
)

// Policy selects a free slot of t for owner. It must not mutate t or free;
// the caller unlinks and tags the chosen slot under its own lock.
type Policy interface {
	Select(t *frame.Table, free *frame.FreeList, owner frame.Owner) (uint32, bool)
	Name() string
}

// ByName ...
func ByName(name string) (Policy, error) {
	switch strings.ToLower(name) {
	case "anyfree", "any-free", "any":
		return AnyFree{}, nil
	case "cluster", "clusterbyowner", "cluster-by-owner":
		return ClusterByOwner{}, nil
	default:
		return nil, fmt.Errorf("placement: unknown policy %q", name)
	}
}

// AnyFree hands out the head of the free list, ignoring ownership.
type AnyFree struct{}

var _ Policy = AnyFree{}

// Select ...
func (AnyFree) Select(_ *frame.Table, free *frame.FreeList, _ frame.Owner) (uint32, bool) {
	return free.Head()
}

// Name ...
func (AnyFree) Name() string {
	return "anyfree"
}

// ClusterByOwner scans the table for a free slot whose neighbours do not
// belong to another process, so frames of one process end up adjacent in
// table index space.
//
// The scan is O(N) in the table size and runs under the allocator lock.
type ClusterByOwner struct{}

var _ Policy = ClusterByOwner{}

// Name ...
func (ClusterByOwner) Name() string {
	return "cluster"
}

// Select ...
func (ClusterByOwner) Select(t *frame.Table, _ *frame.FreeList, owner frame.Owner) (uint32, bool) {
	n := t.Len()
	if n == 0 {
		return 0, false
	}

	// Slot 0 has no left neighbour and does not share with the kernel.
	if t.Owner(0) == frame.OwnerFree {
		right := t.Owner(1)
		if n == 1 || right == frame.OwnerFree || right == owner {
			return 0, true
		}
	}

	if owner == frame.OwnerKernel {
		return firstFree(t)
	}

	for i := 1; i < n; i++ {
		if t.Owner(i) != frame.OwnerFree {
			continue
		}
		if !compatible(t.Owner(i-1), owner) {
			continue
		}
		if i+1 < n && !compatible(t.Owner(i+1), owner) {
			continue
		}
		return uint32(i), true
	}
	return 0, false
}

func compatible(neighbour frame.Owner, owner frame.Owner) bool {
	return neighbour == frame.OwnerFree || neighbour == owner || neighbour == frame.OwnerKernel
}

func firstFree(t *frame.Table) (uint32, bool) {
	for i := 0; i < t.Len(); i++ {
		if t.Owner(i) == frame.OwnerFree {
			return uint32(i), true
		}
	}
	return 0, false
}
