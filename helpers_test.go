package kalloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QuangTung97/kalloc/physmem"
	"github.com/QuangTung97/kalloc/placement"
)

const testKernelEnd Addr = 0x100000

func frameAt(i int) Addr {
	return testKernelEnd + Addr(i)*DefaultFrameSize
}

func newTestMemory(t *testing.T, frames int) *physmem.Memory {
	t.Helper()
	mem, err := physmem.New(testKernelEnd, uint64(frames)*DefaultFrameSize)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mem.Close() })
	return mem
}

func newTestAllocator(t *testing.T, frames int, policy placement.Policy) (*Allocator, *physmem.Memory) {
	t.Helper()
	mem := newTestMemory(t, frames)
	a := New(Config{
		MaxFrames: frames,
		KernelEnd: testKernelEnd,
		PhysTop:   mem.End(),
		Policy:    policy,
	}, mem)
	return a, mem
}

// newReadyAllocator registers the first half of memory in phase 1 and the
// rest in phase 2.
func newReadyAllocator(t *testing.T, frames int, policy placement.Policy) *Allocator {
	t.Helper()
	a, mem := newTestAllocator(t, frames, policy)
	a.InitPhase1(Range{Start: testKernelEnd, End: frameAt(frames / 2)})
	a.InitPhase2(Range{Start: frameAt(frames / 2), End: mem.End()})
	return a
}

func assertViolation(t *testing.T, reason string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected contract violation %q", reason)
		v, ok := r.(*Violation)
		require.True(t, ok, "unexpected panic value %v", r)
		assert.Equal(t, reason, v.Reason)
	}()
	fn()
}

func allBytes(b []byte, v byte) bool {
	for _, x := range b {
		if x != v {
			return false
		}
	}
	return true
}
