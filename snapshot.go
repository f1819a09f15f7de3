package kalloc

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/QuangTung97/kalloc/frame"
)

// Entry is one owned frame in a snapshot. Frame is the page number of the
// frame truncated to 16 bits.
type Entry struct {
	Frame uint16
	Owner Owner
}

func (a *Allocator) frameID(addr Addr) uint16 {
	return uint16(uint64(addr) >> a.frameShift)
}

// snapshot walks owned frames in table order. Must be called with the lock held.
func (a *Allocator) snapshot(limit int, fn func(k int, e Entry)) int {
	k := 0
	a.table.Each(func(_ uint32, d frame.Descriptor) bool {
		if k == limit {
			return false
		}
		if d.Owner == OwnerFree {
			return true
		}
		fn(k, Entry{Frame: a.frameID(d.Addr), Owner: d.Owner})
		k++
		return true
	})
	return k
}

// SnapshotInto copies up to min(len(frames), len(owners)) owned frames into
// the two buffers and returns how many were written. Empty buffers are
// rejected with ErrInvalidArgument.
func (a *Allocator) SnapshotInto(frames []uint16, owners []Owner) (int, error) {
	if len(frames) == 0 {
		return 0, fmt.Errorf("%w: empty frame buffer", ErrInvalidArgument)
	}
	if len(owners) == 0 {
		return 0, fmt.Errorf("%w: empty owner buffer", ErrInvalidArgument)
	}
	limit := min(len(frames), len(owners))

	a.acquire()
	defer a.release()

	return a.snapshot(limit, func(k int, e Entry) {
		frames[k] = e.Frame
		owners[k] = e.Owner
	}), nil
}

// Snapshot returns at most capacity owned frames.
func (a *Allocator) Snapshot(capacity int) ([]Entry, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must > 0, got %d", ErrInvalidArgument, capacity)
	}

	a.acquire()
	defer a.release()

	result := make([]Entry, 0, min(capacity, a.table.Len()-a.table.FreeCount()))
	a.snapshot(capacity, func(_ int, e Entry) {
		result = append(result, e)
	})
	return result, nil
}

// Stats ...
type Stats struct {
	FrameSize  uint64
	Capacity   int // Size of the frame table
	Registered int // Frames registered at boot
	Dropped    int // Frames that did not fit in the table
	Free       int
	Kernel     int // Frames held as OwnerKernel
	Process    int // Frames billed to processes
}

// Stats returns a consistent view of the frame counters.
func (a *Allocator) Stats() Stats {
	a.acquire()
	defer a.release()

	s := Stats{
		FrameSize:  a.frameSize,
		Capacity:   a.table.Cap(),
		Registered: a.table.Len(),
		Dropped:    a.dropped,
		Free:       a.table.FreeCount(),
	}
	a.table.Each(func(_ uint32, d frame.Descriptor) bool {
		switch {
		case d.Owner == OwnerKernel:
			s.Kernel++
		case d.Owner.IsProcess():
			s.Process++
		}
		return true
	})
	return s
}

// OwnerCounts returns the number of frames held by each owner, free frames
// under OwnerFree.
func (a *Allocator) OwnerCounts() map[Owner]int {
	a.acquire()
	defer a.release()

	result := map[Owner]int{}
	a.table.Each(func(_ uint32, d frame.Descriptor) bool {
		result[d.Owner]++
		return true
	})
	return result
}

var statsPrinter = message.NewPrinter(language.English)

// String ...
func (s Stats) String() string {
	return statsPrinter.Sprintf(
		"%d/%d frames registered (%d bytes each, %d dropped): %d free, %d kernel, %d process",
		s.Registered, s.Capacity, s.FrameSize, s.Dropped, s.Free, s.Kernel, s.Process)
}
