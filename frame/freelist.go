package frame

// FreeList chains the free slots of a Table through index arrays instead of
// through the frames themselves. Pushing and popping happen at the head, so
// allocation order is LIFO. Links are kept in both directions so a placement
// policy can unlink any slot in O(1).
type FreeList struct {
	head   uint32
	next   []uint32
	prev   []uint32
	linked []uint64
	size   int
}

type freeListHead struct {
	next uint32
	prev uint32
}

func makeBitSet(capacity int) []uint64 {
	return make([]uint64, (capacity+63)>>6)
}

// NewFreeList returns an empty list able to hold slots [0, capacity).
func NewFreeList(capacity int) *FreeList {
	if capacity <= 0 {
		panic("free list capacity must > 0")
	}
	return &FreeList{
		head:   nullIndex,
		next:   make([]uint32, capacity),
		prev:   make([]uint32, capacity),
		linked: makeBitSet(capacity),
	}
}

func (l *FreeList) setBit(i uint32) {
	l.linked[i>>6] |= 1 << (i & 0x3f)
}

func (l *FreeList) clearBit(i uint32) {
	l.linked[i>>6] &^= 1 << (i & 0x3f)
}

func (l *FreeList) isBitSet(i uint32) bool {
	return l.linked[i>>6]&(1<<(i&0x3f)) != 0
}

// Len returns the number of linked slots.
func (l *FreeList) Len() int {
	return l.size
}

// Contains reports whether slot i is linked.
func (l *FreeList) Contains(i uint32) bool {
	if int(i) >= len(l.next) {
		return false
	}
	return l.isBitSet(i)
}

// Head returns the most recently pushed slot without unlinking it.
func (l *FreeList) Head() (uint32, bool) {
	if l.head == nullIndex {
		return 0, false
	}
	return l.head, true
}

// Push links slot i at the head. Linking a slot twice panics.
func (l *FreeList) Push(i uint32) {
	if l.isBitSet(i) {
		panic("free list: slot linked twice")
	}

	if l.head != nullIndex {
		l.prev[l.head] = i
	}
	l.next[i] = l.head
	l.prev[i] = nullIndex
	l.head = i

	l.setBit(i)
	l.size++
}

// Pop unlinks and returns the head slot.
func (l *FreeList) Pop() (uint32, bool) {
	i, ok := l.Head()
	if !ok {
		return 0, false
	}
	l.Remove(i)
	return i, true
}

// Remove unlinks slot i from anywhere in the list. Removing a slot that is
// not linked panics.
func (l *FreeList) Remove(i uint32) {
	if !l.Contains(i) {
		panic("free list: removing unlinked slot")
	}

	h := freeListHead{next: l.next[i], prev: l.prev[i]}
	if h.next != nullIndex {
		l.prev[h.next] = h.prev
	}
	if h.prev != nullIndex {
		l.next[h.prev] = h.next
	} else {
		l.head = h.next
	}

	l.next[i] = nullIndex
	l.prev[i] = nullIndex
	l.clearBit(i)
	l.size--
}

func (l *FreeList) contentOfList() []uint32 {
	var result []uint32
	for n := l.head; n != nullIndex; n = l.next[n] {
		result = append(result, n)
	}
	return result
}

// Walk calls fn for each linked slot from head to tail and returns the
// number of slots visited.
func (l *FreeList) Walk(fn func(i uint32)) int {
	count := 0
	for n := l.head; n != nullIndex; n = l.next[n] {
		if fn != nil {
			fn(n)
		}
		count++
	}
	return count
}
