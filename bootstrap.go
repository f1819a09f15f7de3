package kalloc

// Range is a physical address range [Start, End) handed over by the boot code.
type Range struct {
	Start Addr
	End   Addr
}

func (a *Allocator) roundUp(addr Addr) Addr {
	mask := Addr(a.frameSize - 1)
	return (addr + mask) &^ mask
}

// registerRange zero-fills every whole frame of r and links it into the free
// list, in ascending address order. Frames that do not fit in the table are
// counted in a.dropped.
func (a *Allocator) registerRange(op string, r Range) int {
	start := a.roundUp(r.Start)
	if start < a.kernelEnd {
		a.violate(op, r.Start, "range starts below kernel end")
	}
	if r.End > a.physTop {
		a.violate(op, r.End, "range ends above physical top")
	}

	count := 0
	dropped := 0
	for p := start; p+Addr(a.frameSize) <= r.End && p+Addr(a.frameSize) > p; p += Addr(a.frameSize) {
		if a.table.Full() {
			dropped = int(uint64(r.End-p) / a.frameSize)
			break
		}
		if _, existed := a.table.Lookup(p); existed {
			a.violate(op, p, "frame registered twice")
		}

		clear(a.mem.Bytes(p, a.frameSize))
		a.free.Push(a.table.Append(p))
		count++
	}

	a.logger.Info("registered range",
		"op", op, "start", start, "end", r.End, "frames", count)
	if dropped > 0 {
		a.dropped += dropped
		a.logger.Warn("frame table full, frames dropped",
			"op", op, "dropped", dropped, "capacity", a.table.Cap())
	}
	return count
}

// InitPhase1 registers the first range while the allocator is still
// single-threaded. No locking is done until InitPhase2; the caller must
// guarantee exclusive access. It returns the number of frames registered.
func (a *Allocator) InitPhase1(r Range) int {
	if a.phase != phaseNew {
		a.violate("init phase 1", r.Start, "allocator already initialised")
	}
	n := a.registerRange("init phase 1", r)
	a.phase = phaseEarly
	return n
}

// InitPhase2 registers the remaining range, checks that the free list and
// the frame table agree, and turns locking on. Locking stays on for the
// lifetime of the allocator.
func (a *Allocator) InitPhase2(r Range) int {
	if a.phase != phaseEarly {
		a.violate("init phase 2", r.Start, "init phase 1 not done or phase 2 repeated")
	}
	n := a.registerRange("init phase 2", r)

	linked := a.free.Walk(func(i uint32) {
		if a.table.At(i).Owner != OwnerFree {
			a.violate("init phase 2", a.table.At(i).Addr, "owned frame linked in free list")
		}
	})
	if linked != a.table.FreeCount() {
		a.violate("init phase 2", 0, "free list and frame table disagree")
	}

	a.phase = phaseReady
	a.useLock.Store(true)
	a.logger.Info("locking enabled",
		"frames", a.table.Len(), "free", linked, "policy", a.policy.Name())
	return n
}

// Ready reports whether InitPhase2 has completed.
func (a *Allocator) Ready() bool {
	return a.useLock.Load()
}
