package kalloc

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QuangTung97/kalloc/physmem"
	"github.com/QuangTung97/kalloc/placement"
)

func TestInitPhases(t *testing.T) {
	a, mem := newTestAllocator(t, 8, nil)
	assert.False(t, a.Ready())

	n := a.InitPhase1(Range{Start: testKernelEnd, End: frameAt(3)})
	assert.Equal(t, 3, n)
	assert.False(t, a.Ready())

	n = a.InitPhase2(Range{Start: frameAt(3), End: mem.End()})
	assert.Equal(t, 5, n)
	assert.True(t, a.Ready())

	assert.Equal(t, 8, a.free.Walk(nil))
	assert.Equal(t, 8, a.table.FreeCount())
	assert.Equal(t, Stats{
		FrameSize:  DefaultFrameSize,
		Capacity:   8,
		Registered: 8,
		Free:       8,
	}, a.Stats())

	for i := 0; i < 8; i++ {
		assert.Equal(t, frameAt(i), a.table.At(uint32(i)).Addr)
	}
}

func TestInitZeroFillsFrames(t *testing.T) {
	a, mem := newTestAllocator(t, 4, nil)
	physmem.Fill(mem.Bytes(testKernelEnd, 4*DefaultFrameSize), 0xff)

	a.InitPhase1(Range{Start: testKernelEnd, End: frameAt(2)})
	a.InitPhase2(Range{Start: frameAt(2), End: frameAt(3)})

	assert.True(t, allBytes(mem.Bytes(testKernelEnd, 3*DefaultFrameSize), 0))
	assert.True(t, allBytes(mem.Bytes(frameAt(3), DefaultFrameSize), 0xff))
}

func TestInitRoundsStartUp(t *testing.T) {
	a, mem := newTestAllocator(t, 4, nil)

	n := a.InitPhase1(Range{Start: testKernelEnd + 1, End: frameAt(3) + 100})
	assert.Equal(t, 2, n)
	a.InitPhase2(Range{Start: mem.End(), End: mem.End()})

	_, ok := a.table.Lookup(testKernelEnd)
	assert.False(t, ok)
	_, ok = a.table.Lookup(frameAt(1))
	assert.True(t, ok)
	_, ok = a.table.Lookup(frameAt(3))
	assert.False(t, ok)
}

func TestInitDropsFramesPastCapacity(t *testing.T) {
	mem := newTestMemory(t, 6)
	var buf bytes.Buffer
	a := New(Config{
		MaxFrames: 4,
		KernelEnd: testKernelEnd,
		PhysTop:   mem.End(),
		Logger:    slog.New(slog.NewTextHandler(&buf, nil)),
	}, mem)

	n := a.InitPhase1(Range{Start: testKernelEnd, End: mem.End()})
	assert.Equal(t, 4, n)
	n = a.InitPhase2(Range{Start: mem.End(), End: mem.End()})
	assert.Equal(t, 0, n)

	s := a.Stats()
	assert.Equal(t, 4, s.Registered)
	assert.Equal(t, 2, s.Dropped)
	assert.Equal(t, 4, s.Free)

	assert.Contains(t, buf.String(), "frame table full, frames dropped")
	assert.Contains(t, buf.String(), "dropped=2")
	assert.Contains(t, buf.String(), "locking enabled")
}

func TestInitViolations(t *testing.T) {
	t.Run("phase-2-before-phase-1", func(t *testing.T) {
		a, mem := newTestAllocator(t, 4, nil)
		assertViolation(t, "init phase 1 not done or phase 2 repeated", func() {
			a.InitPhase2(Range{Start: testKernelEnd, End: mem.End()})
		})
	})

	t.Run("phase-1-twice", func(t *testing.T) {
		a, _ := newTestAllocator(t, 4, nil)
		a.InitPhase1(Range{Start: testKernelEnd, End: frameAt(1)})
		assertViolation(t, "allocator already initialised", func() {
			a.InitPhase1(Range{Start: frameAt(1), End: frameAt(2)})
		})
	})

	t.Run("phase-2-twice", func(t *testing.T) {
		a := newReadyAllocator(t, 4, nil)
		assertViolation(t, "init phase 1 not done or phase 2 repeated", func() {
			a.InitPhase2(Range{Start: frameAt(4), End: frameAt(4)})
		})
	})

	t.Run("overlapping-ranges", func(t *testing.T) {
		a, mem := newTestAllocator(t, 4, nil)
		a.InitPhase1(Range{Start: testKernelEnd, End: frameAt(2)})
		assertViolation(t, "frame registered twice", func() {
			a.InitPhase2(Range{Start: frameAt(1), End: mem.End()})
		})
	})

	t.Run("below-kernel-end", func(t *testing.T) {
		a, _ := newTestAllocator(t, 4, nil)
		assertViolation(t, "range starts below kernel end", func() {
			a.InitPhase1(Range{Start: 0, End: frameAt(1)})
		})
	})

	t.Run("above-phys-top", func(t *testing.T) {
		a, mem := newTestAllocator(t, 4, nil)
		assertViolation(t, "range ends above physical top", func() {
			a.InitPhase1(Range{Start: testKernelEnd, End: mem.End() + DefaultFrameSize})
		})
	})
}

func TestAllocateDuringBootstrapPopsHead(t *testing.T) {
	a, mem := newTestAllocator(t, 6, placement.ClusterByOwner{})
	a.InitPhase1(Range{Start: testKernelEnd, End: frameAt(3)})

	addr, err := a.Allocate(OwnerKernel)
	require.NoError(t, err)
	assert.Equal(t, frameAt(2), addr)

	addr, err = a.Allocate(5)
	require.NoError(t, err)
	assert.Equal(t, frameAt(1), addr)

	a.InitPhase2(Range{Start: frameAt(3), End: mem.End()})

	s := a.Stats()
	assert.Equal(t, 6, s.Registered)
	assert.Equal(t, 4, s.Free)
	assert.Equal(t, 1, s.Kernel)
	assert.Equal(t, 1, s.Process)
	assert.Equal(t, 4, a.free.Walk(nil))

	a.Free(frameAt(2))
	assert.Equal(t, 5, a.Stats().Free)
}

func TestAllocateBeforeInit(t *testing.T) {
	a, _ := newTestAllocator(t, 2, nil)
	_, err := a.Allocate(OwnerKernel)
	assert.ErrorIs(t, err, ErrNoFrame)
}

func TestNewValidatesConfig(t *testing.T) {
	mem := newTestMemory(t, 1)

	table := []struct {
		name string
		conf Config
		msg  string
	}{
		{
			name: "frame-size-not-power-of-two",
			conf: Config{FrameSize: 3000, KernelEnd: testKernelEnd, PhysTop: mem.End()},
			msg:  "FrameSize must be a power of two",
		},
		{
			name: "negative-max-frames",
			conf: Config{MaxFrames: -1, KernelEnd: testKernelEnd, PhysTop: mem.End()},
			msg:  "MaxFrames must > 0",
		},
		{
			name: "empty-physical-range",
			conf: Config{KernelEnd: testKernelEnd, PhysTop: testKernelEnd},
			msg:  "PhysTop must > KernelEnd",
		},
	}

	for _, e := range table {
		t.Run(e.name, func(t *testing.T) {
			assert.PanicsWithValue(t, e.msg, func() { New(e.conf, mem) })
		})
	}

	assert.PanicsWithValue(t, "Memory must not be nil", func() {
		New(Config{KernelEnd: testKernelEnd, PhysTop: mem.End()}, nil)
	})
}

func TestNewDefaults(t *testing.T) {
	mem := newTestMemory(t, 1)
	a := New(Config{KernelEnd: testKernelEnd, PhysTop: mem.End()}, mem)

	assert.Equal(t, uint64(DefaultFrameSize), a.FrameSize())
	assert.Equal(t, uint(12), a.frameShift)
	assert.Equal(t, DefaultMaxFrames, a.table.Cap())
	assert.Equal(t, placement.ClusterByOwner{}, a.Policy())
}
