package frame

// Table is the fixed-capacity array of frame descriptors. Slots are appended
// during bootstrap and never removed; only owner tags change afterwards.
type Table struct {
	slots []Descriptor
	index map[Addr]uint32
	free  int
}

// NewTable ...
func NewTable(capacity int) *Table {
	if capacity <= 0 {
		panic("table capacity must > 0")
	}
	return &Table{
		slots: make([]Descriptor, 0, capacity),
		index: make(map[Addr]uint32, capacity),
	}
}

// Cap returns the maximum number of frames the table can describe.
func (t *Table) Cap() int {
	return cap(t.slots)
}

// Len returns the number of registered frames.
func (t *Table) Len() int {
	return len(t.slots)
}

// Full ...
func (t *Table) Full() bool {
	return len(t.slots) == cap(t.slots)
}

// FreeCount returns the number of slots tagged OwnerFree.
func (t *Table) FreeCount() int {
	return t.free
}

// Append registers a free frame at addr and returns its slot.
// Duplicate addresses and appends past capacity panic.
func (t *Table) Append(addr Addr) uint32 {
	if t.Full() {
		panic("frame table is full")
	}
	if _, existed := t.index[addr]; existed {
		panic("frame " + addr.String() + " registered twice")
	}

	i := uint32(len(t.slots))
	t.slots = append(t.slots, Descriptor{Addr: addr, Owner: OwnerFree})
	t.index[addr] = i
	t.free++
	return i
}

// Lookup returns the slot describing addr.
func (t *Table) Lookup(addr Addr) (uint32, bool) {
	i, ok := t.index[addr]
	return i, ok
}

// At ...
func (t *Table) At(i uint32) Descriptor {
	return t.slots[i]
}

// Owner returns the owner of slot i. Out of range slots report OwnerFree,
// so callers can probe neighbours at both edges without bounds checks.
func (t *Table) Owner(i int) Owner {
	if i < 0 || i >= len(t.slots) {
		return OwnerFree
	}
	return t.slots[i].Owner
}

// SetOwner retags slot i and keeps the free counter in step.
func (t *Table) SetOwner(i uint32, owner Owner) {
	prev := t.slots[i].Owner
	if prev == OwnerFree && owner != OwnerFree {
		t.free--
	} else if prev != OwnerFree && owner == OwnerFree {
		t.free++
	}
	t.slots[i].Owner = owner
}

// Each calls fn for every slot in index order until fn returns false.
func (t *Table) Each(fn func(i uint32, d Descriptor) bool) {
	for i, d := range t.slots {
		if !fn(uint32(i), d) {
			return
		}
	}
}
